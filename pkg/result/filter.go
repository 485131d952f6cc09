package result

import (
	"strings"
	"time"
)

// Filter is a compound predicate over decoded records. Every field is
// optional; a zero field does not constrain. All supplied clauses must
// hold (logical AND). It complements the store's flag exclusions:
// these clauses reach into fields the store cannot index.
type Filter struct {
	// Creation date bounds. From is exclusive; To is inclusive through
	// the end of the given day.
	FromCreationDate *time.Time
	ToCreationDate   *time.Time

	// Exact matches.
	Platform string
	Backend  string // against the first run's backend_info.filename

	// Case-insensitive substring matches over per-platform display
	// values.
	DeviceModel  string
	Manufacturer string
	SoC          string

	// BenchmarkID narrows individual runs via MatchRun, independently
	// of the whole-record clauses above.
	BenchmarkID string
}

// Match reports whether the record satisfies every supplied clause.
func (f *Filter) Match(rec *Record) bool {
	model, manufacturer, soc := deviceDetails(&rec.EnvironmentInfo)

	if !f.creationDateInRange(rec.Meta.CreationDate) {
		return false
	}

	if f.Platform != "" && f.Platform != rec.EnvironmentInfo.Platform {
		return false
	}

	if f.Backend != "" {
		if len(rec.Results) == 0 ||
			f.Backend != rec.Results[0].BackendInfo.Filename {
			return false
		}
	}

	return containsFold(model, f.DeviceModel) &&
		containsFold(manufacturer, f.Manufacturer) &&
		containsFold(soc, f.SoC)
}

// MatchRun reports whether a single benchmark run passes the
// benchmark-id clause.
func (f *Filter) MatchRun(run *Run) bool {
	return f.BenchmarkID == "" || run.BenchmarkID == f.BenchmarkID
}

// creationDateInRange checks date > from and date < to + one day, so
// the upper bound includes the whole named day.
func (f *Filter) creationDateInRange(date time.Time) bool {
	if f.FromCreationDate != nil && !date.After(*f.FromCreationDate) {
		return false
	}

	if f.ToCreationDate != nil &&
		!date.Before(f.ToCreationDate.Add(24*time.Hour)) {
		return false
	}

	return true
}

// deviceDetails derives the display strings the substring clauses
// match against. Attributes a platform does not report fall back to
// the Unknown sentinel. iOS devices always report Apple as the
// manufacturer; Windows identifies both model and SoC by the CPU name.
func deviceDetails(env *EnvironmentInfo) (model, manufacturer, soc string) {
	switch env.Platform {
	case PlatformAndroid:
		if a := env.Value.Android; a != nil {
			return orUnknown(a.ModelName),
				orUnknown(a.Manufacturer),
				orUnknown(a.ProcCpuinfoSocName)
		}
	case PlatformIOS:
		if i := env.Value.IOS; i != nil {
			return orUnknown(i.ModelName), "Apple", orUnknown(i.SocName)
		}
	case PlatformWindows:
		if w := env.Value.Windows; w != nil {
			return orUnknown(w.CPUFullName), Unknown,
				orUnknown(w.CPUFullName)
		}
	}

	return Unknown, Unknown, Unknown
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}

	return s
}

// containsFold reports whether value contains pattern, ignoring case.
// An empty pattern matches anything.
func containsFold(value, pattern string) bool {
	return strings.Contains(
		strings.ToLower(value), strings.ToLower(pattern),
	)
}
