package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mlcommons/mobile-results/pkg/config"
)

// ErrUnauthorized is returned by a Verifier when a token is not
// accepted.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier checks an upload token and resolves the principal it
// belongs to. Token issuance happens outside this service.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// newVerifier builds a Verifier from the auth configuration.
func newVerifier(
	cfg *config.AuthConfig, timeout time.Duration,
) (Verifier, error) {
	switch cfg.Mode {
	case "static":
		return newStaticVerifier(cfg.Tokens), nil
	case "remote":
		return newRemoteVerifier(cfg.Remote.Endpoint, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Compile-time interface checks.
var (
	_ Verifier = (*staticVerifier)(nil)
	_ Verifier = (*remoteVerifier)(nil)
)

// staticVerifier checks tokens against bcrypt hashes seeded from
// config.
type staticVerifier struct {
	tokens []config.StaticAuthToken
}

func newStaticVerifier(tokens []config.StaticAuthToken) *staticVerifier {
	return &staticVerifier{tokens: tokens}
}

// Verify compares the token against every configured hash. The token
// set is small, so the linear scan is fine.
func (v *staticVerifier) Verify(
	_ context.Context, token string,
) (string, error) {
	for _, entry := range v.tokens {
		if bcrypt.CompareHashAndPassword(
			[]byte(entry.Hash), []byte(token),
		) == nil {
			return entry.Principal, nil
		}
	}

	return "", ErrUnauthorized
}

const defaultVerifyTimeout = 10 * time.Second

// remoteVerifier asks an external authenticator whether a token is
// valid.
type remoteVerifier struct {
	endpoint string
	client   *http.Client
}

func newRemoteVerifier(
	endpoint string, timeout time.Duration,
) *remoteVerifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}

	return &remoteVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Verify POSTs the token to the verification endpoint. A 200 response
// with a principal accepts the upload; anything else rejects it.
func (v *remoteVerifier) Verify(
	ctx context.Context, token string,
) (string, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", fmt.Errorf("encoding verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, v.endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("building verification request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling authenticator: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", ErrUnauthorized
	}

	var out struct {
		Principal string `json:"principal"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding verification response: %w", err)
	}

	if out.Principal == "" {
		return "", ErrUnauthorized
	}

	return out.Principal, nil
}
