// Package result defines the benchmark result document: its wire
// schema, a typed view of the normalized form, the derived index
// flags, and the compound filter used to narrow decoded records.
package result

import "github.com/mlcommons/mobile-results/pkg/schema"

// DocumentShape is the registry name of the top-level result shape.
const DocumentShape = "BenchmarkResult"

// shapes holds the descriptor graph for benchmark result documents.
// Unknown keys on the top-level objects are kept verbatim: old app
// builds ship fields the schema does not know yet, and dropping or
// rejecting them would lose data we may want after a schema update.
var shapes = buildShapes()

func buildShapes() *schema.Registry {
	r := schema.NewRegistry()

	r.Register(DocumentShape, schema.OpenObject([]schema.Property{
		schema.P("meta", schema.Ref("Meta")),
		schema.P("results", schema.ArrayOf(schema.Ref("Run"))),
		schema.P("environment_info", schema.Ref("EnvironmentInfo")),
		schema.P("build_info", schema.Ref("BuildInfo")),
	}, nil))

	r.Register("Meta", schema.OpenObject([]schema.Property{
		schema.P("uuid", schema.String()),
		// upload_date is server-assigned: clients send null or nothing.
		schema.P("upload_date", schema.Optional(schema.Date())),
		schema.P("creation_date", schema.Date()),
	}, nil))

	r.Register("Run", schema.OpenObject([]schema.Property{
		schema.P("benchmark_id", schema.String()),
		schema.P("benchmark_name", schema.String()),
		schema.P("loadgen_scenario", schema.String()),
		schema.P("backend_settings", schema.Ref("BackendSettings")),
		schema.P("backend_info", schema.Ref("BackendInfo")),
		schema.P("performance_run", schema.Optional(schema.Ref("RunResult"))),
		schema.P("accuracy_run", schema.Optional(schema.Ref("RunResult"))),
		schema.P("min_duration", schema.Number()),
		schema.P("min_samples", schema.Number()),
	}, nil))

	r.Register("BackendSettings", schema.OpenObject([]schema.Property{
		schema.P("accelerator_code", schema.String()),
		schema.P("accelerator_desc", schema.String()),
		schema.P("framework", schema.String()),
		schema.P("delegate", schema.String()),
		schema.P("model_path", schema.String()),
		schema.P("batch_size", schema.Number()),
		schema.P("extra_settings", schema.ArrayOf(schema.Any())),
	}, nil))

	r.Register("BackendInfo", schema.OpenObject([]schema.Property{
		schema.P("filename", schema.String()),
		schema.P("vendor_name", schema.String()),
		schema.P("backend_name", schema.String()),
		schema.P("accelerator_name", schema.String()),
	}, nil))

	r.Register("RunResult", schema.OpenObject([]schema.Property{
		schema.P("throughput", schema.Optional(schema.Ref("Throughput"))),
		schema.P("accuracy", schema.Optional(schema.Ref("Accuracy"))),
		schema.P("dataset", schema.Ref("Dataset")),
		schema.P("measured_duration", schema.Number()),
		schema.P("measured_samples", schema.Number()),
		schema.P("start_datetime", schema.Date()),
		schema.P("loadgen_info", schema.Any()),
	}, nil))

	r.Register("Throughput", schema.OpenObject([]schema.Property{
		schema.P("value", schema.Number()),
	}, nil))

	// The wire key carries a historical misspelling; only the internal
	// key is corrected, so stored documents stay readable by old
	// clients.
	r.Register("Accuracy", schema.OpenObject([]schema.Property{
		schema.PR("normilezed", "normalized", schema.Number()),
		schema.P("formatted", schema.String()),
	}, nil))

	r.Register("Dataset", schema.OpenObject([]schema.Property{
		schema.P("name", schema.String()),
		schema.P("type", schema.String()),
		schema.P("data_path", schema.String()),
		schema.P("groundtruth_path", schema.String()),
	}, nil))

	r.Register("EnvironmentInfo", schema.OpenObject([]schema.Property{
		schema.P("platform", schema.Enum(
			PlatformAndroid, PlatformIOS, PlatformWindows,
		)),
		schema.P("value", schema.Ref("EnvironmentValue")),
	}, nil))

	// Exactly one branch is populated per record; absent branches stay
	// structurally absent rather than decoding to empty objects.
	r.Register("EnvironmentValue", schema.OpenObject([]schema.Property{
		schema.P("android", schema.Optional(schema.Ref("AndroidInfo"))),
		schema.P("ios", schema.Optional(schema.Ref("IOSInfo"))),
		schema.P("windows", schema.Optional(schema.Ref("WindowsInfo"))),
	}, nil))

	r.Register("AndroidInfo", schema.OpenObject([]schema.Property{
		schema.P("os_version", schema.String()),
		schema.P("manufacturer", schema.Optional(schema.String())),
		schema.P("model_code", schema.String()),
		schema.P("model_name", schema.Optional(schema.String())),
		schema.P("board_code", schema.String()),
		schema.P("proc_cpuinfo_soc_name", schema.Optional(schema.String())),
		schema.P("props", schema.ArrayOf(schema.Any())),
	}, nil))

	r.Register("IOSInfo", schema.OpenObject([]schema.Property{
		schema.P("os_version", schema.String()),
		schema.P("model_code", schema.String()),
		schema.P("model_name", schema.Optional(schema.String())),
		schema.P("soc_name", schema.Optional(schema.String())),
	}, nil))

	r.Register("WindowsInfo", schema.OpenObject([]schema.Property{
		schema.P("os_version", schema.String()),
		schema.P("cpu_full_name", schema.Optional(schema.String())),
	}, nil))

	r.Register("BuildInfo", schema.OpenObject([]schema.Property{
		schema.P("version", schema.String()),
		schema.P("build_number", schema.String()),
		schema.P("build_date", schema.Optional(schema.Date())),
		schema.P("official_release_flag", schema.Bool()),
		schema.P("dev_test_flag", schema.Bool()),
		schema.P("backend_list", schema.ArrayOf(schema.String())),
		schema.P("git_branch", schema.String()),
		schema.P("git_commit", schema.String()),
		schema.P("git_dirty_flag", schema.String()),
	}, nil))

	return r
}

// DecodeDocument validates a decoded JSON value against the benchmark
// result shape and returns the normalized internal form.
func DecodeDocument(raw any) (any, error) {
	return shapes.Decode(raw, schema.Ref(DocumentShape))
}

// EncodeDocument renders a normalized document back to wire form.
func EncodeDocument(doc any) (any, error) {
	return shapes.Encode(doc, schema.Ref(DocumentShape))
}
