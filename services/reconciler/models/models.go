package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutRecord mirrors one settlement.payout.executed event. Digest is the
// canonical event digest used to keep ingest idempotent across replays.
type PayoutRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq              uint64    `gorm:"index"`
	Digest           string    `gorm:"uniqueIndex;size:64"`
	Borrower         string    `gorm:"size:64;index"`
	Liquidator       string    `gorm:"size:64;index"`
	CollateralAsset  string    `gorm:"size:64"`
	DebtAsset        string    `gorm:"size:64"`
	CollateralAmount string    `gorm:"size:80"`
	DebtAmount       string    `gorm:"size:80"`
	Platform         string    `gorm:"size:64"`
	Reserve          string    `gorm:"size:64"`
	LenderComp       string    `gorm:"size:64"`
	PlatformShare    string    `gorm:"size:80"`
	ReserveShare     string    `gorm:"size:80"`
	LenderShare      string    `gorm:"size:80"`
	LiquidatorShare  string    `gorm:"size:80"`
	BonusBps         uint64
	EmittedAt        time.Time `gorm:"index"`
	CreatedAt        time.Time
}

// RepaymentRecord mirrors one settlement.loan.repaid event.
type RepaymentRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq         uint64    `gorm:"index"`
	Digest      string    `gorm:"uniqueIndex;size:64"`
	OrderID     string    `gorm:"size:80;index"`
	Borrower    string    `gorm:"size:64;index"`
	Asset       string    `gorm:"size:64"`
	Amount      string    `gorm:"size:80"`
	Outstanding string    `gorm:"size:80"`
	EmittedAt   time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// CacheFailureRecord tracks a settlement.cache.update_failed event until an
// operator replays the snapshot and marks it resolved.
type CacheFailureRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq            uint64    `gorm:"index"`
	Digest         string    `gorm:"uniqueIndex;size:64"`
	Subject        string    `gorm:"size:64;index"`
	Reason         string    `gorm:"size:512"`
	Resolved       bool      `gorm:"index"`
	ResolutionNote string    `gorm:"size:512"`
	ResolvedAt     *time.Time
	EmittedAt      time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// ParameterChangeRecord mirrors one risk.parameter.changed event.
type ParameterChangeRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq       uint64    `gorm:"index"`
	Digest    string    `gorm:"uniqueIndex;size:64"`
	Name      string    `gorm:"size:64;index"`
	OldValue  string    `gorm:"size:32"`
	NewValue  string    `gorm:"size:32"`
	Caller    string    `gorm:"size:64"`
	EmittedAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PayoutRecord{},
		&RepaymentRecord{},
		&CacheFailureRecord{},
		&ParameterChangeRecord{},
	)
}
