package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlcommons/mobile-results/pkg/config"
	"github.com/mlcommons/mobile-results/pkg/ingest"
	"github.com/mlcommons/mobile-results/pkg/store"
)

const testToken = "upload-token-1"

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword(
		[]byte(testToken), bcrypt.MinCost,
	)
	require.NoError(t, err)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			Mode: "static",
			Tokens: []config.StaticAuthToken{
				{Hash: string(hash), Principal: "ci-device"},
			},
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{Path: ":memory:"},
		},
	}
	cfg.Query.MaxPageSize = 100

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := &server{
		log: log,
		cfg: cfg,
	}

	srv.store = store.NewStore(log, &cfg.Database, cfg.Query.MaxPageSize)
	require.NoError(t, srv.store.Start(context.Background()))

	t.Cleanup(func() { _ = srv.store.Stop() })

	srv.pipeline = ingest.NewPipeline(log, srv.store)
	srv.verifier = newStaticVerifier(cfg.Auth.Tokens)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return ts
}

func uploadDocument(uuid, platform string) string {
	value := `{
		"android": {
			"os_version": "13",
			"manufacturer": "Google",
			"model_code": "panther",
			"model_name": "Pixel 7",
			"board_code": "gs201",
			"proc_cpuinfo_soc_name": "Tensor G2",
			"props": []
		}
	}`

	if platform == "ios" {
		value = `{
			"ios": {
				"os_version": "16.5",
				"model_code": "iPhone15,2",
				"model_name": "iPhone 14 Pro",
				"soc_name": "A16 Bionic"
			}
		}`
	}

	return fmt.Sprintf(`{
		"meta": {
			"uuid": %q,
			"upload_date": null,
			"creation_date": "2023-06-14T10:30:00Z"
		},
		"results": [
			{
				"benchmark_id": "image_classification_v2",
				"benchmark_name": "Image Classification v2",
				"loadgen_scenario": "SingleStream",
				"backend_settings": {
					"accelerator_code": "npu",
					"accelerator_desc": "NPU",
					"framework": "TFLite",
					"delegate": "NNAPI",
					"model_path": "https://example.org/model.tflite",
					"batch_size": 1,
					"extra_settings": []
				},
				"backend_info": {
					"filename": "libtflitebackend",
					"vendor_name": "Google",
					"backend_name": "TFLite",
					"accelerator_name": "NPU"
				},
				"min_duration": 60,
				"min_samples": 1024
			}
		],
		"environment_info": {
			"platform": %q,
			"value": %s
		},
		"build_info": {
			"version": "2.1.0",
			"build_number": "421",
			"official_release_flag": true,
			"dev_test_flag": false,
			"backend_list": ["libtflitebackend"],
			"git_branch": "master",
			"git_commit": "4be9f5e",
			"git_dirty_flag": "0"
		}
	}`, uuid, platform, value)
}

func postResult(
	t *testing.T, ts *httptest.Server, token, body string,
) *http.Response {
	t.Helper()

	req, err := http.NewRequest(
		http.MethodPost, ts.URL+"/api/v0/results",
		strings.NewReader(body),
	)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()

	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestHandleHealth(t *testing.T) {
	ts := setupTestServer(t)

	var out map[string]string

	code := getJSON(t, ts, "/api/v0/health", &out)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])
}

func TestHandleUpload_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t)

	const id = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"

	resp := postResult(t, ts, "", uploadDocument(id, "android"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postResult(t, ts, "wrong-token", uploadDocument(id, "android"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleUpload_CreatedThenConflict(t *testing.T) {
	ts := setupTestServer(t)

	const id = "1b2c3d4e-5f6a-4b7c-8d9e-0f1a2b3c4d5e"

	resp := postResult(t, ts, testToken, uploadDocument(id, "android"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, id, created["uuid"])

	// Re-upload of the same uuid is refused and changes nothing.
	resp = postResult(t, ts, testToken, uploadDocument(id, "ios"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var doc map[string]any

	code := getJSON(t, ts, "/api/v0/results/"+id, &doc)
	require.Equal(t, http.StatusOK, code)

	env, ok := doc["environment_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "android", env["platform"])
}

func TestHandleUpload_BadRequests(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "nope"},
		{name: "missing meta", body: `{"results":[]}`},
		{
			name: "client-set upload_date",
			body: strings.Replace(
				uploadDocument(
					"2c3d4e5f-6a7b-4c8d-9e0f-1a2b3c4d5e6f", "android",
				),
				`"upload_date": null`,
				`"upload_date": "2023-06-14T10:30:00Z"`, 1,
			),
		},
		{
			name: "empty uuid",
			body: uploadDocument("", "android"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postResult(t, ts, testToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleGetResult_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	code := getJSON(
		t, ts, "/api/v0/results/3d4e5f6a-7b8c-4d9e-0f1a-2b3c4d5e6f70", nil,
	)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleListResults_PagingAndExclusion(t *testing.T) {
	ts := setupTestServer(t)

	uuids := []string{
		"4e5f6a7b-8c9d-4e0f-9a1b-3c4d5e6f7081",
		"5f6a7b8c-9d0e-4f1a-8b2c-4d5e6f708192",
		"6a7b8c9d-0e1f-4a2b-9c3d-5e6f708192a3",
	}

	for i, id := range uuids {
		platform := "android"
		if i == 2 {
			platform = "ios"
		}

		resp := postResult(t, ts, testToken, uploadDocument(id, platform))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// First page of two plus a cursor to continue from.
	var page listResponse

	code := getJSON(t, ts, "/api/v0/results?page_size=2", &page)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, page.Results, 2)
	require.NotEmpty(t, page.NextCursor)

	code = getJSON(
		t, ts, "/api/v0/results?page_size=2&cursor="+page.NextCursor, &page,
	)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, page.Results, 1)

	// Excluding ios leaves the two android documents.
	code = getJSON(
		t, ts, "/api/v0/results?page_size=10&exclude_platforms=ios", &page,
	)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, page.Results, 2)

	for _, raw := range page.Results {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))

		env, ok := doc["environment_info"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "android", env["platform"])
	}
}

func TestHandleListResults_Filters(t *testing.T) {
	ts := setupTestServer(t)

	const (
		androidID = "7b8c9d0e-1f2a-4b3c-8d4e-6f708192a3b4"
		iosID     = "8c9d0e1f-2a3b-4c4d-9e5f-708192a3b4c5"
	)

	resp := postResult(t, ts, testToken, uploadDocument(androidID, "android"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postResult(t, ts, testToken, uploadDocument(iosID, "ios"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Case-insensitive substring match on the device model.
	var page listResponse

	code := getJSON(t, ts, "/api/v0/results?page_size=10&device_model=pixel", &page)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, page.Results, 1)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(page.Results[0], &doc))

	meta, ok := doc["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, androidID, meta["uuid"])

	// iOS records match manufacturer Apple without carrying the field.
	code = getJSON(t, ts, "/api/v0/results?page_size=10&manufacturer=apple", &page)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, page.Results, 1)

	// benchmark_id must match a run inside the document.
	code = getJSON(
		t, ts, "/api/v0/results?page_size=10&benchmark_id=image_classification_v2", &page,
	)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, page.Results, 2)

	code = getJSON(
		t, ts, "/api/v0/results?page_size=10&benchmark_id=no_such_benchmark", &page,
	)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, page.Results)
}

func TestHandleListResults_BadParameters(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing page size", query: "device_model=pixel"},
		{name: "zero page size", query: "page_size=0"},
		{name: "non-numeric page size", query: "page_size=lots"},
		{name: "page size over maximum", query: "page_size=101"},
		{name: "unknown cursor", query: "page_size=5&cursor=not-stored"},
		{name: "unknown excluded platform", query: "page_size=5&exclude_platforms=tvos"},
		{name: "bad date parameter", query: "page_size=5&from_creation_date=tomorrow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := getJSON(t, ts, "/api/v0/results?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}
