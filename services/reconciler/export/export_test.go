package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vaultchain/services/reconciler/models"
)

type fakeSource struct {
	payouts    []models.PayoutRecord
	repayments []models.RepaymentRecord
}

func (s *fakeSource) PayoutsBetween(context.Context, time.Time, time.Time) ([]models.PayoutRecord, error) {
	return s.payouts, nil
}

func (s *fakeSource) RepaymentsBetween(context.Context, time.Time, time.Time) ([]models.RepaymentRecord, error) {
	return s.repayments, nil
}

func conservedPayout(seq uint64) models.PayoutRecord {
	return models.PayoutRecord{
		Seq:              seq,
		Digest:           "digest-conserved",
		Borrower:         "vlt1target",
		Liquidator:       "vlt1keeper",
		CollateralAsset:  "vlt1asset",
		DebtAsset:        "vlt1debt",
		CollateralAmount: "10000",
		DebtAmount:       "8000",
		PlatformShare:    "5000",
		ReserveShare:     "3000",
		LenderShare:      "1500",
		LiquidatorShare:  "500",
		EmittedAt:        time.Unix(1700000000, 0).UTC(),
	}
}

func TestRunWritesReportFiles(t *testing.T) {
	source := &fakeSource{
		payouts: []models.PayoutRecord{conservedPayout(1)},
		repayments: []models.RepaymentRecord{{
			Seq:         2,
			Digest:      "digest-repay",
			OrderID:     "0xabc",
			Borrower:    "vlt1target",
			Asset:       "vlt1debt",
			Amount:      "2500",
			Outstanding: "0",
			EmittedAt:   time.Unix(1700000100, 0).UTC(),
		}},
	}
	dir := t.TempDir()
	exporter := NewExporter(source, dir, nil)

	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	summary, err := exporter.Run(context.Background(), start, end)
	if err != nil {
		t.Fatalf("run export: %v", err)
	}
	if summary.Payouts != 1 || summary.Repayments != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.ConservationBreaches != 0 {
		t.Fatalf("conserved payout flagged as breach")
	}

	wantDir := filepath.Join(dir, "20260828_20260829")
	if summary.Dir != wantDir {
		t.Fatalf("unexpected run dir %s", summary.Dir)
	}
	for _, name := range []string{"payouts.csv", "payouts.parquet", "repayments.csv"} {
		info, err := os.Stat(filepath.Join(wantDir, name))
		if err != nil {
			t.Fatalf("missing report file %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("empty report file %s", name)
		}
	}

	raw, err := os.ReadFile(filepath.Join(wantDir, "payouts.parquet"))
	if err != nil {
		t.Fatalf("read payouts parquet: %v", err)
	}
	if len(raw) < 8 || string(raw[:4]) != "PAR1" || string(raw[len(raw)-4:]) != "PAR1" {
		t.Fatal("payouts parquet missing PAR1 framing")
	}

	file, err := os.Open(filepath.Join(wantDir, "payouts.csv"))
	if err != nil {
		t.Fatalf("open payouts csv: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read payouts csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	row := records[1]
	if row[14] != "true" {
		t.Fatalf("shares_conserved column = %q", row[14])
	}
	if row[13] != "1.25" {
		t.Fatalf("seizure_ratio column = %q", row[13])
	}
}

func TestRunFlagsConservationBreach(t *testing.T) {
	broken := conservedPayout(3)
	broken.Digest = "digest-breach"
	broken.LiquidatorShare = "499"
	source := &fakeSource{payouts: []models.PayoutRecord{broken}}
	exporter := NewExporter(source, t.TempDir(), nil)

	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	summary, err := exporter.Run(context.Background(), start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("run export: %v", err)
	}
	if summary.ConservationBreaches != 1 {
		t.Fatalf("expected 1 breach, got %d", summary.ConservationBreaches)
	}
}

func TestSchedulerNextRun(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Exporter: &Exporter{}, RunHour: 1, RunMinute: 15})

	before := time.Date(2026, 8, 28, 0, 30, 0, 0, time.UTC)
	next := s.nextRun(before)
	if want := time.Date(2026, 8, 28, 1, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next run %v, want %v", next, want)
	}

	after := time.Date(2026, 8, 28, 2, 0, 0, 0, time.UTC)
	next = s.nextRun(after)
	if want := time.Date(2026, 8, 29, 1, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next run %v, want %v", next, want)
	}
}
