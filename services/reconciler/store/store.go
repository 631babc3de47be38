package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vaultchain/services/reconciler/models"
)

var (
	// ErrDigestRequired is returned when an ingest record is missing its
	// dedupe digest.
	ErrDigestRequired = errors.New("event digest is required")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyResolved is returned when resolving a cache failure twice.
	ErrAlreadyResolved = errors.New("cache failure already resolved")
)

// Store wraps the reconciler persistence layer.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured backend and migrates the schema. The
// driver selects between the embedded sqlite build and postgres.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertPayout stores a payout record unless its digest was already
// ingested. It reports whether a row was written.
func (s *Store) InsertPayout(ctx context.Context, rec *models.PayoutRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("payout record required")
	}
	if strings.TrimSpace(rec.Digest) == "" {
		return false, ErrDigestRequired
	}
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := digestExists(tx, &models.PayoutRecord{}, rec.Digest)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		inserted = true
		return tx.Create(rec).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// InsertRepayment stores a repayment record unless its digest was already
// ingested.
func (s *Store) InsertRepayment(ctx context.Context, rec *models.RepaymentRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("repayment record required")
	}
	if strings.TrimSpace(rec.Digest) == "" {
		return false, ErrDigestRequired
	}
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := digestExists(tx, &models.RepaymentRecord{}, rec.Digest)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		inserted = true
		return tx.Create(rec).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// InsertCacheFailure stores a cache failure record unless its digest was
// already ingested. New rows start unresolved.
func (s *Store) InsertCacheFailure(ctx context.Context, rec *models.CacheFailureRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("cache failure record required")
	}
	if strings.TrimSpace(rec.Digest) == "" {
		return false, ErrDigestRequired
	}
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := digestExists(tx, &models.CacheFailureRecord{}, rec.Digest)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Resolved = false
		rec.ResolvedAt = nil
		inserted = true
		return tx.Create(rec).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// InsertParameterChange stores a parameter change record unless its digest
// was already ingested.
func (s *Store) InsertParameterChange(ctx context.Context, rec *models.ParameterChangeRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("parameter change record required")
	}
	if strings.TrimSpace(rec.Digest) == "" {
		return false, ErrDigestRequired
	}
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := digestExists(tx, &models.ParameterChangeRecord{}, rec.Digest)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		inserted = true
		return tx.Create(rec).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Payouts returns the most recent payout records, newest first.
func (s *Store) Payouts(ctx context.Context, limit int) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	query := s.db.WithContext(ctx).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// PayoutsBetween returns payout records emitted inside [start, end), oldest
// first, for export windows.
func (s *Store) PayoutsBetween(ctx context.Context, start, end time.Time) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	err := s.db.WithContext(ctx).
		Where("emitted_at >= ? AND emitted_at < ?", start, end).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RepaymentsBetween returns repayment records emitted inside [start, end),
// oldest first.
func (s *Store) RepaymentsBetween(ctx context.Context, start, end time.Time) ([]models.RepaymentRecord, error) {
	var records []models.RepaymentRecord
	err := s.db.WithContext(ctx).
		Where("emitted_at >= ? AND emitted_at < ?", start, end).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CacheFailures returns cache failure records, newest first. A non-nil
// resolved filters on the resolution flag.
func (s *Store) CacheFailures(ctx context.Context, resolved *bool, limit int) ([]models.CacheFailureRecord, error) {
	var records []models.CacheFailureRecord
	query := s.db.WithContext(ctx).Order("seq DESC")
	if resolved != nil {
		query = query.Where("resolved = ?", *resolved)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ParameterChanges returns parameter change records, newest first.
func (s *Store) ParameterChanges(ctx context.Context, limit int) ([]models.ParameterChangeRecord, error) {
	var records []models.ParameterChangeRecord
	query := s.db.WithContext(ctx).Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ResolveCacheFailure flips the resolved flag on a cache failure after an
// operator replayed the snapshot. Resolving twice returns
// ErrAlreadyResolved so the note of the first resolution survives.
func (s *Store) ResolveCacheFailure(ctx context.Context, id uuid.UUID, note string, resolvedAt time.Time) (models.CacheFailureRecord, error) {
	var record models.CacheFailureRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := tx
		// sqlite has no row locks; its transactions already serialize.
		if tx.Dialector.Name() == "postgres" {
			lookup = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := lookup.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if record.Resolved {
			return ErrAlreadyResolved
		}
		record.Resolved = true
		record.ResolutionNote = strings.TrimSpace(note)
		ts := resolvedAt.UTC()
		record.ResolvedAt = &ts
		return tx.Save(&record).Error
	})
	if err != nil {
		return models.CacheFailureRecord{}, err
	}
	return record, nil
}

func digestExists(tx *gorm.DB, model interface{}, digest string) (bool, error) {
	var count int64
	if err := tx.Model(model).Where("digest = ?", digest).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
