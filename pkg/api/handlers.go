package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mlcommons/mobile-results/pkg/ingest"
	"github.com/mlcommons/mobile-results/pkg/result"
	"github.com/mlcommons/mobile-results/pkg/store"
)

// maxUploadBytes caps a single result document upload.
const maxUploadBytes = 8 << 20

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts one result document from an authenticated
// client. A document whose uuid is already stored is rejected with a
// conflict and the stored document is left untouched.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"reading request body"})

		return
	}

	if len(body) > maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			errorResponse{"result document too large"})

		return
	}

	receipt, err := s.pipeline.Ingest(
		r.Context(), principalFromContext(r.Context()), body,
	)
	if err != nil {
		var verr *ingest.ValidationError

		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest,
				errorResponse{verr.Error()})
		case errors.Is(err, ingest.ErrUploadDateSet),
			errors.Is(err, ingest.ErrMissingUUID):
			writeJSON(w, http.StatusBadRequest,
				errorResponse{err.Error()})
		default:
			s.log.WithError(err).Error("Upload failed")
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"storing result"})
		}

		return
	}

	if !receipt.Created {
		writeJSON(w, http.StatusConflict,
			errorResponse{"result already uploaded"})

		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"uuid": receipt.UUID,
	})
}

// listResponse is the payload of the result listing endpoint.
type listResponse struct {
	Results    []json.RawMessage `json:"results"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// handleListResults serves one page of stored documents, newest first.
// Pagination state lives entirely in the cursor; filters that the
// store cannot index are applied to the decoded documents after the
// page is fetched, so a filtered page may come back short.
func (s *server) handleListResults(w http.ResponseWriter, r *http.Request) {
	opts, err := parsePageOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	rows, err := s.store.Page(r.Context(), *opts)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidPageSize),
			errors.Is(err, store.ErrPageSizeTooLarge),
			errors.Is(err, store.ErrInvalidCursor),
			errors.Is(err, store.ErrUnknownFilterKey):
			writeJSON(w, http.StatusBadRequest,
				errorResponse{err.Error()})
		default:
			s.log.WithError(err).Error("Listing results failed")
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"listing results"})
		}

		return
	}

	resp := listResponse{Results: make([]json.RawMessage, 0, len(rows))}

	for _, row := range rows {
		if filter != nil {
			_, rec, err := result.ParseWire([]byte(row.Document))
			if err != nil {
				s.log.WithError(err).
					WithField("uuid", row.UUID).
					Warn("Stored document failed to decode, skipping")

				continue
			}

			if !filter.Match(rec) || !anyRunMatches(filter, rec) {
				continue
			}
		}

		resp.Results = append(resp.Results, json.RawMessage(row.Document))
	}

	// A full page may have more behind it; hand back the last row's
	// uuid so the client can continue the walk.
	if len(rows) == opts.Size {
		resp.NextCursor = rows[len(rows)-1].UUID
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetResult serves one stored document by uuid.
func (s *server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")

	row, err := s.store.Get(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"result not found"})

			return
		}

		s.log.WithError(err).Error("Getting result failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting result"})

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(row.Document))
}

// parsePageOptions builds store paging options from query parameters.
func parsePageOptions(r *http.Request) (*store.PageOptions, error) {
	q := r.URL.Query()

	opts := &store.PageOptions{
		Cursor: q.Get("cursor"),
	}

	// page_size is mandatory: clamping or defaulting would hide client
	// bugs, so its absence is an error like any other bad value.
	raw := q.Get("page_size")
	if raw == "" {
		return nil, errPageSizeRequired
	}

	size, err := strconv.Atoi(raw)
	if err != nil {
		return nil, store.ErrInvalidPageSize
	}

	opts.Size = size

	if raw := q.Get("exclude_platforms"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			key, ok := result.FlagKeyForPlatform(name)
			if !ok {
				return nil, store.ErrUnknownFilterKey
			}

			opts.ExcludeFlags = append(opts.ExcludeFlags, key)
		}
	}

	return opts, nil
}

// parseFilter builds the post-decode compound filter from query
// parameters. It returns nil when no filter clause is present.
func parseFilter(r *http.Request) (*result.Filter, error) {
	q := r.URL.Query()

	filter := &result.Filter{
		Platform:     q.Get("platform"),
		Backend:      q.Get("backend"),
		DeviceModel:  q.Get("device_model"),
		Manufacturer: q.Get("manufacturer"),
		SoC:          q.Get("soc"),
		BenchmarkID:  q.Get("benchmark_id"),
	}

	empty := filter.Platform == "" && filter.Backend == "" &&
		filter.DeviceModel == "" && filter.Manufacturer == "" &&
		filter.SoC == "" && filter.BenchmarkID == ""

	if raw := q.Get("from_creation_date"); raw != "" {
		from, err := parseDateParam(raw)
		if err != nil {
			return nil, err
		}

		filter.FromCreationDate = &from
		empty = false
	}

	if raw := q.Get("to_creation_date"); raw != "" {
		to, err := parseDateParam(raw)
		if err != nil {
			return nil, err
		}

		filter.ToCreationDate = &to
		empty = false
	}

	if empty {
		return nil, nil
	}

	return filter, nil
}

// anyRunMatches applies the per-run benchmark-id clause: the record
// passes when at least one of its runs does. Records with no runs
// pass only when the clause is empty.
func anyRunMatches(filter *result.Filter, rec *result.Record) bool {
	if filter.BenchmarkID == "" {
		return true
	}

	for i := range rec.Results {
		if filter.MatchRun(&rec.Results[i]) {
			return true
		}
	}

	return false
}

var errPageSizeRequired = errors.New("page_size is required")

var errBadDateParam = errors.New(
	"date parameters must be YYYY-MM-DD or RFC 3339",
)

func parseDateParam(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errBadDateParam
}
