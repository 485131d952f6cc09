package result

// FlagKey is a stable identifier for one derived boolean index flag.
// Keys are chosen independently of the human-readable platform names
// so a platform rename never requires migrating historical flags.
type FlagKey string

const (
	FlagOSAndroid FlagKey = "01_android"
	FlagOSIOS     FlagKey = "02_ios"
	FlagOSWindows FlagKey = "03_windows"

	// Reserved for operating systems we may need to support later.
	// The flag set cardinality is fixed at schema-definition time, so
	// the slots exist now and stay false until assigned.
	FlagOSReserved4 FlagKey = "04"
	FlagOSReserved5 FlagKey = "05"
	FlagOSReserved6 FlagKey = "06"
)

// osFlags maps each flag key to the platform wire name it marks.
// Reserved slots map to the empty string and never match.
var osFlags = map[FlagKey]string{
	FlagOSAndroid:   PlatformAndroid,
	FlagOSIOS:       PlatformIOS,
	FlagOSWindows:   PlatformWindows,
	FlagOSReserved4: "",
	FlagOSReserved5: "",
	FlagOSReserved6: "",
}

// flagKeysByPlatform is the reverse lookup used to turn a platform
// name from a query into its flag key. Built once at init; reserved
// slots are excluded.
var flagKeysByPlatform = func() map[string]FlagKey {
	m := make(map[string]FlagKey, len(osFlags))

	for key, platform := range osFlags {
		if platform != "" {
			m[platform] = key
		}
	}

	return m
}()

// FlagKeys returns every flag key, reserved slots included, in key
// order.
func FlagKeys() []FlagKey {
	return []FlagKey{
		FlagOSAndroid, FlagOSIOS, FlagOSWindows,
		FlagOSReserved4, FlagOSReserved5, FlagOSReserved6,
	}
}

// DeriveFlags computes the index flag map for a record's platform tag.
// It is total: an unrecognized platform yields every flag false, since
// flags are a read-path optimization and must never block ingestion of
// otherwise-valid data.
func DeriveFlags(platform string) map[FlagKey]bool {
	flags := make(map[FlagKey]bool, len(osFlags))

	for key, name := range osFlags {
		flags[key] = name != "" && name == platform
	}

	return flags
}

// FlagKeyForPlatform returns the flag key marking the given platform
// wire name. The second return is false for names no flag marks.
func FlagKeyForPlatform(platform string) (FlagKey, bool) {
	key, ok := flagKeysByPlatform[platform]

	return key, ok
}
