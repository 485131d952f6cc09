package result

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform wire names.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWindows = "windows"
)

// Unknown is the display value substituted for device attributes a
// platform does not report. It is a real, matchable value: filtering
// for the substring "unknown" finds such records.
const Unknown = "unknown"

// Record is the typed view of one normalized benchmark result
// document. It is built from the transformer's output, never directly
// from untrusted JSON.
type Record struct {
	Meta            Meta            `json:"meta"`
	Results         []Run           `json:"results"`
	EnvironmentInfo EnvironmentInfo `json:"environment_info"`
	BuildInfo       BuildInfo       `json:"build_info"`
}

// Meta identifies one submission.
type Meta struct {
	UUID         string     `json:"uuid"`
	UploadDate   *time.Time `json:"upload_date,omitempty"`
	CreationDate time.Time  `json:"creation_date"`
}

// Run is a single benchmark scenario execution within a record.
type Run struct {
	BenchmarkID     string          `json:"benchmark_id"`
	BenchmarkName   string          `json:"benchmark_name"`
	LoadgenScenario string          `json:"loadgen_scenario"`
	BackendSettings BackendSettings `json:"backend_settings"`
	BackendInfo     BackendInfo     `json:"backend_info"`
	PerformanceRun  *RunResult      `json:"performance_run,omitempty"`
	AccuracyRun     *RunResult      `json:"accuracy_run,omitempty"`
	MinDuration     float64         `json:"min_duration"`
	MinSamples      float64         `json:"min_samples"`
}

// BackendSettings describes how the backend was configured for a run.
type BackendSettings struct {
	AcceleratorCode string  `json:"accelerator_code"`
	AcceleratorDesc string  `json:"accelerator_desc"`
	Framework       string  `json:"framework"`
	Delegate        string  `json:"delegate"`
	ModelPath       string  `json:"model_path"`
	BatchSize       float64 `json:"batch_size"`
	ExtraSettings   []any   `json:"extra_settings"`
}

// BackendInfo identifies the backend binary that produced a run.
type BackendInfo struct {
	Filename        string `json:"filename"`
	VendorName      string `json:"vendor_name"`
	BackendName     string `json:"backend_name"`
	AcceleratorName string `json:"accelerator_name"`
}

// RunResult holds the measured outcome of a performance or accuracy
// pass.
type RunResult struct {
	Throughput       *Throughput `json:"throughput,omitempty"`
	Accuracy         *Accuracy   `json:"accuracy,omitempty"`
	Dataset          Dataset     `json:"dataset"`
	MeasuredDuration float64     `json:"measured_duration"`
	MeasuredSamples  float64     `json:"measured_samples"`
	StartDatetime    time.Time   `json:"start_datetime"`
	LoadgenInfo      any         `json:"loadgen_info"`
}

// Throughput is samples per second.
type Throughput struct {
	Value float64 `json:"value"`
}

// Accuracy is the normalized and display form of an accuracy score.
type Accuracy struct {
	Normalized float64 `json:"normalized"`
	Formatted  string  `json:"formatted"`
}

// Dataset describes the input data a run was measured against.
type Dataset struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	DataPath        string `json:"data_path"`
	GroundtruthPath string `json:"groundtruth_path"`
}

// EnvironmentInfo carries the platform tag and the matching
// platform-specific payload. Exactly one branch is non-nil.
type EnvironmentInfo struct {
	Platform string           `json:"platform"`
	Value    EnvironmentValue `json:"value"`
}

// EnvironmentValue holds the per-platform device description branches.
type EnvironmentValue struct {
	Android *AndroidInfo `json:"android,omitempty"`
	IOS     *IOSInfo     `json:"ios,omitempty"`
	Windows *WindowsInfo `json:"windows,omitempty"`
}

// AndroidInfo describes an Android device.
type AndroidInfo struct {
	OSVersion          string `json:"os_version"`
	Manufacturer       string `json:"manufacturer,omitempty"`
	ModelCode          string `json:"model_code"`
	ModelName          string `json:"model_name,omitempty"`
	BoardCode          string `json:"board_code"`
	ProcCpuinfoSocName string `json:"proc_cpuinfo_soc_name,omitempty"`
	Props              []any  `json:"props"`
}

// IOSInfo describes an Apple device.
type IOSInfo struct {
	OSVersion string `json:"os_version"`
	ModelCode string `json:"model_code"`
	ModelName string `json:"model_name,omitempty"`
	SocName   string `json:"soc_name,omitempty"`
}

// WindowsInfo describes a Windows machine.
type WindowsInfo struct {
	OSVersion   string `json:"os_version"`
	CPUFullName string `json:"cpu_full_name,omitempty"`
}

// BuildInfo describes the app build that produced the record.
type BuildInfo struct {
	Version             string     `json:"version"`
	BuildNumber         string     `json:"build_number"`
	BuildDate           *time.Time `json:"build_date,omitempty"`
	OfficialReleaseFlag bool       `json:"official_release_flag"`
	DevTestFlag         bool       `json:"dev_test_flag"`
	BackendList         []string   `json:"backend_list"`
	GitBranch           string     `json:"git_branch"`
	GitCommit           string     `json:"git_commit"`
	GitDirtyFlag        string     `json:"git_dirty_flag"`
}

// FromDocument converts a normalized document tree (the output of
// DecodeDocument) into the typed Record used by the index deriver and
// the filter matcher. Unknown passthrough keys are dropped from the
// typed view; they remain in the stored document.
func FromDocument(doc any) (*Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling normalized document: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("building typed record: %w", err)
	}

	return &rec, nil
}

// ParseWire decodes raw wire JSON, validates it against the document
// shape, and returns both the normalized tree and the typed record.
func ParseWire(data []byte) (any, *Record, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing json: %w", err)
	}

	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	rec, err := FromDocument(doc)
	if err != nil {
		return nil, nil, err
	}

	return doc, rec, nil
}
