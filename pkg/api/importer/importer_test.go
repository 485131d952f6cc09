package importer_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlcommons/mobile-results/pkg/api/importer"
	"github.com/mlcommons/mobile-results/pkg/api/storage"
	"github.com/mlcommons/mobile-results/pkg/config"
	"github.com/mlcommons/mobile-results/pkg/ingest"
	"github.com/mlcommons/mobile-results/pkg/store"
)

func legacyBlob(uuid string) string {
	return fmt.Sprintf(`{
		"meta": {
			"uuid": %q,
			"upload_date": null,
			"creation_date": "2022-11-03T09:00:00Z"
		},
		"results": [],
		"environment_info": {
			"platform": "android",
			"value": {
				"android": {
					"os_version": "13",
					"manufacturer": "Google",
					"model_code": "panther",
					"model_name": "Pixel 7",
					"board_code": "gs201",
					"proc_cpuinfo_soc_name": "Tensor G2",
					"props": []
				}
			}
		},
		"build_info": {
			"version": "2.0.1",
			"build_number": "380",
			"official_release_flag": true,
			"dev_test_flag": false,
			"backend_list": ["libtflitebackend"],
			"git_branch": "master",
			"git_commit": "deadbeef",
			"git_dirty_flag": "0"
		}
	}`, uuid)
}

func setupStore(t *testing.T) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}, 100)
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func TestImporter_ReplaysLegacyBlobs(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	pipeline := ingest.NewPipeline(log, st)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alice"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bob"), 0o755))

	const (
		uuidA = "7f64a3b8-0d6e-4a5f-8c4b-91d2e30f41aa"
		uuidB = "8e75b4c9-1e7f-4b60-9d5c-a2e3f4015bbb"
	)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "alice", uuidA+".json"),
		[]byte(legacyBlob(uuidA)), 0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "bob", uuidB+".json"),
		[]byte(legacyBlob(uuidB)), 0o644,
	))

	// One blob that fails validation: it must be logged and skipped
	// without stopping the pass.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "bob", "broken.json"),
		[]byte(`{"meta":{}}`), 0o644,
	))

	imp := importer.NewImporter(
		log, pipeline, storage.NewLocalReader(dir), time.Hour, 2,
	)

	require.NoError(t, imp.Start(ctx))

	// The first pass runs asynchronously. Wait for both rows.
	require.Eventually(t, func() bool {
		n, err := st.Count(ctx)

		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, imp.Stop())

	rowA, err := st.Get(ctx, uuidA)
	require.NoError(t, err)
	assert.Equal(t, "alice", rowA.Principal)
	assert.True(t, rowA.OS01Android)

	rowB, err := st.Get(ctx, uuidB)
	require.NoError(t, err)
	assert.Equal(t, "bob", rowB.Principal)
}

func TestImporter_IsIdempotentAcrossPasses(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	pipeline := ingest.NewPipeline(log, st)

	const id = "9f86c5da-2f80-4c71-ae6d-b3f4a5126ccc"

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, id+".json"), []byte(legacyBlob(id)), 0o644,
	))

	// Seed the row first so the importer's replay hits the conflict
	// path instead of creating.
	receipt, err := pipeline.Ingest(ctx, "uploader", []byte(legacyBlob(id)))
	require.NoError(t, err)
	require.True(t, receipt.Created)

	imp := importer.NewImporter(
		log, pipeline, storage.NewLocalReader(dir), time.Hour, 1,
	)

	require.NoError(t, imp.Start(ctx))

	// Give the pass time to run, then confirm nothing was duplicated
	// and the original row survived untouched.
	require.Eventually(t, func() bool {
		n, err := st.Count(ctx)

		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, imp.Stop())

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "uploader", row.Principal)
}
