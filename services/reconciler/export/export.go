package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"vaultchain/observability"
	"vaultchain/services/reconciler/models"
	"vaultchain/services/reconciler/store"
)

// Source is the slice of the store the exporter reads.
type Source interface {
	PayoutsBetween(ctx context.Context, start, end time.Time) ([]models.PayoutRecord, error)
	RepaymentsBetween(ctx context.Context, start, end time.Time) ([]models.RepaymentRecord, error)
}

var _ Source = (*store.Store)(nil)

// Exporter writes the daily reconciliation report: every payout in the
// window as a CSV/parquet pair plus a repayments CSV. Each payout row
// carries a share-conservation verdict so an operator spots a split that
// did not sum to the seized amount without re-deriving the arithmetic.
type Exporter struct {
	source  Source
	baseDir string
	logger  *slog.Logger
	metrics *observability.ReconcilerMetrics
}

// Summary describes one export run.
type Summary struct {
	Dir                  string
	Payouts              int
	Repayments           int
	ConservationBreaches int
}

// NewExporter wires an exporter writing under baseDir.
func NewExporter(source Source, baseDir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source:  source,
		baseDir: baseDir,
		logger:  logger,
		metrics: observability.Reconciler(),
	}
}

// Run exports the [start, end) window.
func (e *Exporter) Run(ctx context.Context, start, end time.Time) (Summary, error) {
	summary, err := e.run(ctx, start, end)
	e.metrics.RecordExport(summary.Payouts+summary.Repayments, summary.ConservationBreaches, err)
	return summary, err
}

func (e *Exporter) run(ctx context.Context, start, end time.Time) (Summary, error) {
	if e == nil || e.source == nil {
		return Summary{}, fmt.Errorf("export: no source configured")
	}
	payouts, err := e.source.PayoutsBetween(ctx, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("export: load payouts: %w", err)
	}
	repayments, err := e.source.RepaymentsBetween(ctx, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("export: load repayments: %w", err)
	}

	runDir := filepath.Join(e.baseDir, fmt.Sprintf("%s_%s", start.UTC().Format("20060102"), end.UTC().Format("20060102")))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("export: ensure output dir: %w", err)
	}

	rows := make([]payoutRow, 0, len(payouts))
	breaches := 0
	for i := range payouts {
		row := buildPayoutRow(&payouts[i])
		if !row.SharesConserved {
			breaches++
			e.logger.Error("share conservation breach in payout record",
				"digest", payouts[i].Digest, "seq", payouts[i].Seq)
		}
		rows = append(rows, row)
	}

	if err := writePayoutCSV(filepath.Join(runDir, "payouts.csv"), rows); err != nil {
		return Summary{}, err
	}
	if err := writePayoutParquet(filepath.Join(runDir, "payouts.parquet"), rows); err != nil {
		return Summary{}, err
	}
	if err := writeRepaymentCSV(filepath.Join(runDir, "repayments.csv"), repayments); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Dir:                  runDir,
		Payouts:              len(payouts),
		Repayments:           len(repayments),
		ConservationBreaches: breaches,
	}
	e.logger.Info("reconciliation report written",
		"dir", runDir, "payouts", summary.Payouts, "repayments", summary.Repayments,
		"conservation_breaches", breaches)
	return summary, nil
}

// payoutRow is the flattened report form of a payout record. Amounts stay
// decimal strings; SeizureRatio is collateral/debt to four places for the
// human-readable columns.
type payoutRow struct {
	Seq              uint64 `parquet:"name=seq, type=UINT_64"`
	Digest           string `parquet:"name=digest, type=UTF8"`
	Borrower         string `parquet:"name=borrower, type=UTF8"`
	Liquidator       string `parquet:"name=liquidator, type=UTF8"`
	CollateralAsset  string `parquet:"name=collateral_asset, type=UTF8"`
	DebtAsset        string `parquet:"name=debt_asset, type=UTF8"`
	CollateralAmount string `parquet:"name=collateral_amount, type=UTF8"`
	DebtAmount       string `parquet:"name=debt_amount, type=UTF8"`
	PlatformShare    string `parquet:"name=platform_share, type=UTF8"`
	ReserveShare     string `parquet:"name=reserve_share, type=UTF8"`
	LenderShare      string `parquet:"name=lender_share, type=UTF8"`
	LiquidatorShare  string `parquet:"name=liquidator_share, type=UTF8"`
	BonusBps         int64  `parquet:"name=bonus_bps, type=INT64"`
	SeizureRatio     string `parquet:"name=seizure_ratio, type=UTF8"`
	SharesConserved  bool   `parquet:"name=shares_conserved, type=BOOLEAN"`
	EmittedAt        string `parquet:"name=emitted_at, type=UTF8"`
}

func buildPayoutRow(rec *models.PayoutRecord) payoutRow {
	return payoutRow{
		Seq:              rec.Seq,
		Digest:           rec.Digest,
		Borrower:         rec.Borrower,
		Liquidator:       rec.Liquidator,
		CollateralAsset:  rec.CollateralAsset,
		DebtAsset:        rec.DebtAsset,
		CollateralAmount: rec.CollateralAmount,
		DebtAmount:       rec.DebtAmount,
		PlatformShare:    rec.PlatformShare,
		ReserveShare:     rec.ReserveShare,
		LenderShare:      rec.LenderShare,
		LiquidatorShare:  rec.LiquidatorShare,
		BonusBps:         int64(rec.BonusBps),
		SeizureRatio:     seizureRatio(rec.CollateralAmount, rec.DebtAmount),
		SharesConserved:  sharesConserved(rec),
		EmittedAt:        rec.EmittedAt.UTC().Format(time.RFC3339),
	}
}

// sharesConserved re-checks the on-chain invariant: the four shares must sum
// to the seized collateral amount exactly.
func sharesConserved(rec *models.PayoutRecord) bool {
	total, ok := parseAmount(rec.CollateralAmount)
	if !ok {
		return false
	}
	sum := new(big.Int)
	for _, raw := range []string{rec.PlatformShare, rec.ReserveShare, rec.LenderShare, rec.LiquidatorShare} {
		share, ok := parseAmount(raw)
		if !ok {
			return false
		}
		sum.Add(sum, share)
	}
	return sum.Cmp(total) == 0
}

func seizureRatio(collateral, debt string) string {
	c, err := decimal.NewFromString(collateral)
	if err != nil {
		return ""
	}
	d, err := decimal.NewFromString(debt)
	if err != nil || d.IsZero() {
		return ""
	}
	return c.DivRound(d, 4).String()
}

func parseAmount(raw string) (*big.Int, bool) {
	if raw == "" {
		return nil, false
	}
	return new(big.Int).SetString(raw, 10)
}

func writePayoutCSV(path string, rows []payoutRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{
		"seq", "digest", "borrower", "liquidator", "collateral_asset", "debt_asset",
		"collateral_amount", "debt_amount", "platform_share", "reserve_share",
		"lender_share", "liquidator_share", "bonus_bps", "seizure_ratio",
		"shares_conserved", "emitted_at",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			fmt.Sprintf("%d", row.Seq),
			row.Digest,
			row.Borrower,
			row.Liquidator,
			row.CollateralAsset,
			row.DebtAsset,
			row.CollateralAmount,
			row.DebtAmount,
			row.PlatformShare,
			row.ReserveShare,
			row.LenderShare,
			row.LiquidatorShare,
			fmt.Sprintf("%d", row.BonusBps),
			row.SeizureRatio,
			boolString(row.SharesConserved),
			row.EmittedAt,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func writePayoutParquet(path string, rows []payoutRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(payoutRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			_ = pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: finalize parquet: %w", err)
	}
	return file.Close()
}

func writeRepaymentCSV(path string, records []models.RepaymentRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"seq", "digest", "order_id", "borrower", "asset", "amount", "outstanding", "emitted_at"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, rec := range records {
		record := []string{
			fmt.Sprintf("%d", rec.Seq),
			rec.Digest,
			rec.OrderID,
			rec.Borrower,
			rec.Asset,
			rec.Amount,
			rec.Outstanding,
			rec.EmittedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func boolString(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
