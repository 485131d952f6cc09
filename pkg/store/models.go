package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlcommons/mobile-results/pkg/result"
)

// Row is a persisted benchmark result envelope. The full wire document
// is kept as JSON in Document; the remaining columns exist so the
// database can order, deduplicate and filter without parsing it.
type Row struct {
	UUID       string    `gorm:"primaryKey"`
	UploadDate time.Time `gorm:"index:idx_rows_upload_date"`
	Principal  string
	Document   string `gorm:"type:text"`

	// Platform exclusion flags, one fixed column per flag key.
	OS01Android bool `gorm:"column:os_01_android"`
	OS02IOS     bool `gorm:"column:os_02_ios"`
	OS03Windows bool `gorm:"column:os_03_windows"`
	OS04        bool `gorm:"column:os_04"`
	OS05        bool `gorm:"column:os_05"`
	OS06        bool `gorm:"column:os_06"`
}

// TableName keeps the historical table name.
func (Row) TableName() string {
	return "results"
}

// flagColumns maps a flag key to its column for exclusion queries.
var flagColumns = map[result.FlagKey]string{
	result.FlagOSAndroid:   "os_01_android",
	result.FlagOSIOS:       "os_02_ios",
	result.FlagOSWindows:   "os_03_windows",
	result.FlagOSReserved4: "os_04",
	result.FlagOSReserved5: "os_05",
	result.FlagOSReserved6: "os_06",
}

// SetFlags copies a derived flag map onto the row's flag columns.
func (r *Row) SetFlags(flags map[result.FlagKey]bool) {
	r.OS01Android = flags[result.FlagOSAndroid]
	r.OS02IOS = flags[result.FlagOSIOS]
	r.OS03Windows = flags[result.FlagOSWindows]
	r.OS04 = flags[result.FlagOSReserved4]
	r.OS05 = flags[result.FlagOSReserved5]
	r.OS06 = flags[result.FlagOSReserved6]
}

// stampUploadDate rewrites meta.upload_date inside a stored document so
// the JSON clients read back carries the server-assigned timestamp.
func stampUploadDate(document string, uploadDate time.Time) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return "", fmt.Errorf("parsing stored document: %w", err)
	}

	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("stored document has no meta object")
	}

	meta["upload_date"] = uploadDate.UTC().Format(time.RFC3339Nano)

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("re-encoding stored document: %w", err)
	}

	return string(out), nil
}
