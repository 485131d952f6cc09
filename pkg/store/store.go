// Package store persists benchmark result documents and serves
// cursor-based pages over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mlcommons/mobile-results/pkg/config"
	"github.com/mlcommons/mobile-results/pkg/result"
)

var (
	// ErrNotFound is returned when no row exists for a uuid.
	ErrNotFound = errors.New("result not found")

	// ErrInvalidPageSize is returned for non-positive page sizes.
	ErrInvalidPageSize = errors.New("page size must be positive")

	// ErrPageSizeTooLarge is returned when a page size exceeds the
	// configured maximum.
	ErrPageSizeTooLarge = errors.New("page size exceeds maximum")

	// ErrInvalidCursor is returned when a cursor does not name a
	// stored result.
	ErrInvalidCursor = errors.New("invalid page cursor")

	// ErrUnknownFilterKey is returned when an exclusion flag is not
	// one of the defined flag keys.
	ErrUnknownFilterKey = errors.New("unknown filter key")
)

// PageOptions selects one page of results. Cursor is the uuid of the
// last row of the previous page, or empty for the first page.
type PageOptions struct {
	Size         int
	Cursor       string
	ExcludeFlags []result.FlagKey
}

// Store provides persistence for uploaded benchmark results.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Create inserts a row unless its uuid is already present. It
	// stamps the row and its stored document with the upload time and
	// reports whether the row was actually inserted.
	Create(ctx context.Context, row *Row) (bool, error)

	Get(ctx context.Context, uuid string) (*Row, error)
	Page(ctx context.Context, opts PageOptions) ([]Row, error)
	Count(ctx context.Context) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log         logrus.FieldLogger
	cfg         *config.DatabaseConfig
	maxPageSize int
	db          *gorm.DB
	now         func() time.Time
}

// NewStore creates a result Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
	maxPageSize int,
) Store {
	return &store{
		log:         log.WithField("component", "store"),
		cfg:         cfg,
		maxPageSize: maxPageSize,
		now:         time.Now,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening result database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Row{}); err != nil {
		return fmt.Errorf("running result migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Result database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Create inserts a row keyed by uuid, leaving any existing row with the
// same uuid untouched.
func (s *store) Create(ctx context.Context, row *Row) (bool, error) {
	row.UploadDate = s.now().UTC()

	stamped, err := stampUploadDate(row.Document, row.UploadDate)
	if err != nil {
		return false, fmt.Errorf("stamping upload date: %w", err)
	}

	row.Document = stamped

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("inserting result: %w", res.Error)
	}

	return res.RowsAffected == 1, nil
}

// Get returns the row for a uuid, or ErrNotFound.
func (s *store) Get(ctx context.Context, uuid string) (*Row, error) {
	var row Row
	if err := s.db.WithContext(ctx).
		Where("uuid = ?", uuid).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting result: %w", err)
	}

	return &row, nil
}

// Page returns up to opts.Size rows ordered by upload date, newest
// first, with uuid as a tie break so the order is total. The cursor
// names the last row of the previous page; rows strictly after it in
// that order form the next page.
func (s *store) Page(ctx context.Context, opts PageOptions) ([]Row, error) {
	if opts.Size <= 0 {
		return nil, ErrInvalidPageSize
	}

	if opts.Size > s.maxPageSize {
		return nil, fmt.Errorf(
			"%w: %d > %d", ErrPageSizeTooLarge, opts.Size, s.maxPageSize,
		)
	}

	q := s.db.WithContext(ctx).Model(&Row{})

	for _, key := range opts.ExcludeFlags {
		column, ok := flagColumns[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilterKey, key)
		}

		q = q.Where(column+" = ?", false)
	}

	if opts.Cursor != "" {
		var after Row
		if err := s.db.WithContext(ctx).
			Where("uuid = ?", opts.Cursor).
			First(&after).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidCursor, opts.Cursor)
			}

			return nil, fmt.Errorf("resolving cursor: %w", err)
		}

		q = q.Where(
			"upload_date < ? OR (upload_date = ? AND uuid < ?)",
			after.UploadDate, after.UploadDate, after.UUID,
		)
	}

	var rows []Row
	if err := q.
		Order("upload_date DESC, uuid DESC").
		Limit(opts.Size).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return rows, nil
}

// Count returns the total number of stored results.
func (s *store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&Row{}).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}

	return n, nil
}
