package storage

import "context"

// Reader provides read access to legacy result blobs stored in a
// backend (local filesystem or S3). The pre-migration service kept one
// JSON document per upload under a per-user prefix; the importer uses
// this interface to replay them without knowing the storage details.
type Reader interface {
	// ListResultKeys returns the keys of all result blobs, relative to
	// the configured prefix or directory.
	ListResultKeys(ctx context.Context) ([]string, error)

	// GetResult reads one result blob by key.
	// Returns (nil, nil) when the key does not exist.
	GetResult(ctx context.Context, key string) ([]byte, error)
}
