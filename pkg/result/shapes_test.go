package result_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlcommons/mobile-results/pkg/result"
	"github.com/mlcommons/mobile-results/pkg/schema"
)

// sampleDocument returns a complete wire document as produced by an
// iOS build of the app. Callers may mutate the returned map freely.
func sampleDocument(t *testing.T) map[string]any {
	t.Helper()

	const doc = `{
		"meta": {
			"uuid": "1f70a348-9b0b-4a6b-b00c-3c31bb06979e",
			"upload_date": null,
			"creation_date": "2023-06-14T10:30:00Z"
		},
		"results": [
			{
				"benchmark_id": "image_classification",
				"benchmark_name": "Image Classification",
				"loadgen_scenario": "SingleStream",
				"backend_settings": {
					"accelerator_code": "ane",
					"accelerator_desc": "Apple Neural Engine",
					"framework": "Core ML",
					"delegate": "NNAPI",
					"model_path": "https://example.com/mobilenet.tflite",
					"batch_size": 1,
					"extra_settings": []
				},
				"backend_info": {
					"filename": "libcoremlbackend",
					"vendor_name": "Apple",
					"backend_name": "Core ML",
					"accelerator_name": "ane"
				},
				"performance_run": {
					"throughput": {"value": 512.4},
					"dataset": {
						"name": "Imagenet classification validation",
						"type": "IMAGENET",
						"data_path": "app:///datasets/imagenet",
						"groundtruth_path": ""
					},
					"measured_duration": 60183.2,
					"measured_samples": 1024,
					"start_datetime": "2023-06-14T10:28:11Z",
					"loadgen_info": {"validity": true}
				},
				"min_duration": 60000,
				"min_samples": 1024
			}
		],
		"environment_info": {
			"platform": "ios",
			"value": {
				"ios": {
					"os_version": "16.5",
					"model_code": "iPhone15,2",
					"model_name": "iPhone 14 Pro",
					"soc_name": "A16 Bionic"
				}
			}
		},
		"build_info": {
			"version": "2.1.0",
			"build_number": "421",
			"official_release_flag": true,
			"dev_test_flag": false,
			"backend_list": ["libcoremlbackend", "libtflitebackend"],
			"git_branch": "master",
			"git_commit": "4be9f5e",
			"git_dirty_flag": "0"
		}
	}`

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))

	return m
}

func TestDecodeDocument_RoundTrip(t *testing.T) {
	t.Parallel()

	wire := sampleDocument(t)

	doc, err := result.DecodeDocument(wire)
	require.NoError(t, err)

	back, err := result.EncodeDocument(doc)
	require.NoError(t, err)

	// Every declared field survives the round trip unchanged,
	// including the wire-side spelling of renamed keys.
	assert.Equal(t, wire, back)
}

func TestDecodeDocument_TypedView(t *testing.T) {
	t.Parallel()

	doc, err := result.DecodeDocument(sampleDocument(t))
	require.NoError(t, err)

	rec, err := result.FromDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, "1f70a348-9b0b-4a6b-b00c-3c31bb06979e", rec.Meta.UUID)
	assert.Nil(t, rec.Meta.UploadDate)
	assert.Equal(t, "ios", rec.EnvironmentInfo.Platform)

	require.NotNil(t, rec.EnvironmentInfo.Value.IOS)
	assert.Nil(t, rec.EnvironmentInfo.Value.Android)
	assert.Nil(t, rec.EnvironmentInfo.Value.Windows)
	assert.Equal(t, "iPhone 14 Pro", rec.EnvironmentInfo.Value.IOS.ModelName)

	require.Len(t, rec.Results, 1)
	run := rec.Results[0]
	assert.Equal(t, "image_classification", run.BenchmarkID)
	require.NotNil(t, run.PerformanceRun)
	require.NotNil(t, run.PerformanceRun.Throughput)
	assert.Equal(t, 512.4, run.PerformanceRun.Throughput.Value)
	assert.Nil(t, run.AccuracyRun)
}

func TestDecodeDocument_AccuracyKeyRename(t *testing.T) {
	t.Parallel()

	wire := sampleDocument(t)
	runs := wire["results"].([]any)
	run := runs[0].(map[string]any)
	run["accuracy_run"] = map[string]any{
		"accuracy": map[string]any{
			// Historical wire spelling.
			"normilezed": 0.987,
			"formatted":  "98.7%",
		},
		"dataset": map[string]any{
			"name":             "d",
			"type":             "IMAGENET",
			"data_path":        "p",
			"groundtruth_path": "g",
		},
		"measured_duration": 100.0,
		"measured_samples":  10.0,
		"start_datetime":    "2023-06-14T10:29:00Z",
		"loadgen_info":      nil,
	}

	doc, err := result.DecodeDocument(wire)
	require.NoError(t, err)

	rec, err := result.FromDocument(doc)
	require.NoError(t, err)

	require.NotNil(t, rec.Results[0].AccuracyRun)
	require.NotNil(t, rec.Results[0].AccuracyRun.Accuracy)
	assert.Equal(t, 0.987, rec.Results[0].AccuracyRun.Accuracy.Normalized)

	// On the way back out the historical spelling reappears.
	back, err := result.EncodeDocument(doc)
	require.NoError(t, err)

	acc := back.(map[string]any)["results"].([]any)[0].(map[string]any)["accuracy_run"].(map[string]any)["accuracy"].(map[string]any)
	assert.Contains(t, acc, "normilezed")
	assert.NotContains(t, acc, "normalized")
}

func TestDecodeDocument_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		path   string
		kind   schema.ErrorKind
	}{
		{
			name: "missing uuid",
			mutate: func(doc map[string]any) {
				delete(doc["meta"].(map[string]any), "uuid")
			},
			path: "meta.uuid",
			kind: schema.TypeMismatch,
		},
		{
			name: "uuid wrong kind",
			mutate: func(doc map[string]any) {
				doc["meta"].(map[string]any)["uuid"] = 42.0
			},
			path: "meta.uuid",
			kind: schema.TypeMismatch,
		},
		{
			name: "bad platform enum",
			mutate: func(doc map[string]any) {
				doc["environment_info"].(map[string]any)["platform"] = "linux"
			},
			path: "environment_info.platform",
			kind: schema.InvalidEnumValue,
		},
		{
			name: "unparseable creation date",
			mutate: func(doc map[string]any) {
				doc["meta"].(map[string]any)["creation_date"] = "yesterday"
			},
			path: "meta.creation_date",
			kind: schema.InvalidDate,
		},
		{
			name: "numeric creation date",
			mutate: func(doc map[string]any) {
				doc["meta"].(map[string]any)["creation_date"] = 1686738600.0
			},
			path: "meta.creation_date",
			kind: schema.InvalidDate,
		},
		{
			name: "results not an array",
			mutate: func(doc map[string]any) {
				doc["results"] = "many"
			},
			path: "results",
			kind: schema.TypeMismatch,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := sampleDocument(t)
			tt.mutate(doc)

			_, err := result.DecodeDocument(doc)

			var serr *schema.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.path, serr.Path)
			assert.Equal(t, tt.kind, serr.Kind)
		})
	}
}

func TestDecodeDocument_KeepsUnknownKeys(t *testing.T) {
	t.Parallel()

	wire := sampleDocument(t)
	wire["experimental_section"] = map[string]any{"k": "v"}

	doc, err := result.DecodeDocument(wire)
	require.NoError(t, err)

	back, err := result.EncodeDocument(doc)
	require.NoError(t, err)
	assert.Equal(t,
		map[string]any{"k": "v"},
		back.(map[string]any)["experimental_section"],
	)
}

func TestParseWire(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(sampleDocument(t))
	require.NoError(t, err)

	doc, rec, err := result.ParseWire(data)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ios", rec.EnvironmentInfo.Platform)

	_, _, err = result.ParseWire([]byte("{not json"))
	assert.Error(t, err)
}
