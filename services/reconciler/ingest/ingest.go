package ingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"lukechampine.com/blake3"
	"nhooyr.io/websocket"

	"vaultchain/core/events"
	"vaultchain/observability"
	"vaultchain/services/reconciler/models"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// StreamEvent mirrors the node's /ws/events wire format.
type StreamEvent struct {
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload"`
	EmittedAt time.Time         `json:"emittedAt"`
}

// Sink is the slice of the store the ingestor writes through. Every insert
// reports whether a row was written so duplicates surface in metrics.
type Sink interface {
	InsertPayout(ctx context.Context, rec *models.PayoutRecord) (bool, error)
	InsertRepayment(ctx context.Context, rec *models.RepaymentRecord) (bool, error)
	InsertCacheFailure(ctx context.Context, rec *models.CacheFailureRecord) (bool, error)
	InsertParameterChange(ctx context.Context, rec *models.ParameterChangeRecord) (bool, error)
}

// Ingestor consumes the node's websocket event stream and lands settlement
// events in the reconciler store, dedupe keyed on the event digest and
// resumable via the bbolt checkpoint.
type Ingestor struct {
	url        string
	sink       Sink
	checkpoint *Checkpoint
	logger     *slog.Logger
	metrics    *observability.ReconcilerMetrics
}

// NewIngestor wires an ingestor against the node stream URL.
func NewIngestor(url string, sink Sink, checkpoint *Checkpoint, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		url:        strings.TrimSpace(url),
		sink:       sink,
		checkpoint: checkpoint,
		logger:     logger,
		metrics:    observability.Reconciler(),
	}
}

// Run consumes the stream until the context is cancelled, reconnecting with
// exponential backoff and resuming from the checkpoint cursor.
func (in *Ingestor) Run(ctx context.Context) {
	if in == nil || in.sink == nil || in.url == "" {
		return
	}
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := in.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			in.logger.Warn("event stream disconnected", "error", err, "retry_in", backoff)
		}
		in.metrics.RecordReconnect()
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (in *Ingestor) consume(ctx context.Context) error {
	cursor, err := in.checkpoint.Last()
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	url := in.url
	if cursor > 0 {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = fmt.Sprintf("%s%scursor=%d", url, sep, cursor)
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "ingest stopped")
	in.logger.Info("event stream connected", "cursor", cursor)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var evt StreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			in.logger.Warn("undecodable stream event", "error", err)
			continue
		}
		if _, err := in.Apply(ctx, evt); err != nil {
			in.logger.Error("ingest failed", "type", evt.Type, "seq", evt.Seq, "error", err)
			return err
		}
		if err := in.checkpoint.Save(evt.Seq); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
}

// Apply routes one stream event into the store. It reports whether a row was
// written; event types the reconciler does not track are skipped.
func (in *Ingestor) Apply(ctx context.Context, evt StreamEvent) (bool, error) {
	digest := EventDigest(evt)
	emitted := emittedAt(evt)

	var (
		inserted bool
		err      error
	)
	switch evt.Type {
	case events.TypeSettlementPayoutExecuted:
		inserted, err = in.sink.InsertPayout(ctx, &models.PayoutRecord{
			Seq:              evt.Seq,
			Digest:           digest,
			Borrower:         evt.Payload["target"],
			Liquidator:       evt.Payload["liquidator"],
			CollateralAsset:  evt.Payload["collateral_asset"],
			DebtAsset:        evt.Payload["debt_asset"],
			CollateralAmount: evt.Payload["collateral_amount"],
			DebtAmount:       evt.Payload["debt_amount"],
			Platform:         evt.Payload["platform"],
			Reserve:          evt.Payload["reserve"],
			LenderComp:       evt.Payload["lender_comp"],
			PlatformShare:    evt.Payload["platform_share"],
			ReserveShare:     evt.Payload["reserve_share"],
			LenderShare:      evt.Payload["lender_share"],
			LiquidatorShare:  evt.Payload["liquidator_share"],
			BonusBps:         parseUint(evt.Payload["bonus_bps"]),
			EmittedAt:        emitted,
		})
	case events.TypeSettlementLoanRepaid:
		inserted, err = in.sink.InsertRepayment(ctx, &models.RepaymentRecord{
			Seq:         evt.Seq,
			Digest:      digest,
			OrderID:     evt.Payload["order_id"],
			Borrower:    evt.Payload["borrower"],
			Asset:       evt.Payload["asset"],
			Amount:      evt.Payload["amount"],
			Outstanding: evt.Payload["outstanding"],
			EmittedAt:   emitted,
		})
	case events.TypeSettlementCacheUpdateFailed:
		inserted, err = in.sink.InsertCacheFailure(ctx, &models.CacheFailureRecord{
			Seq:       evt.Seq,
			Digest:    digest,
			Subject:   evt.Payload["subject"],
			Reason:    evt.Payload["reason"],
			EmittedAt: emitted,
		})
	case events.TypeRiskParameterChanged:
		inserted, err = in.sink.InsertParameterChange(ctx, &models.ParameterChangeRecord{
			Seq:       evt.Seq,
			Digest:    digest,
			Name:      evt.Payload["name"],
			OldValue:  evt.Payload["old_value"],
			NewValue:  evt.Payload["new_value"],
			Caller:    evt.Payload["caller"],
			EmittedAt: emitted,
		})
	default:
		in.metrics.RecordIngest(evt.Type, "skipped")
		return false, nil
	}

	switch {
	case err != nil:
		in.metrics.RecordIngest(evt.Type, "failed")
		return false, err
	case inserted:
		in.metrics.RecordIngest(evt.Type, "inserted")
	default:
		in.metrics.RecordIngest(evt.Type, "duplicate")
	}
	return inserted, nil
}

// EventDigest derives the dedupe key for a stream event: a blake3 hash over
// the event type, sequence, and sorted payload. Replaying the stream from an
// older cursor reproduces the same digests, which keeps ingest idempotent.
func EventDigest(evt StreamEvent) string {
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := blake3.New(32, nil)
	fmt.Fprintf(h, "%s\n%d\n", evt.Type, evt.Seq)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, evt.Payload[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func emittedAt(evt StreamEvent) time.Time {
	if !evt.EmittedAt.IsZero() {
		return evt.EmittedAt.UTC()
	}
	if ts := parseUint(evt.Payload["timestamp"]); ts > 0 {
		return time.Unix(int64(ts), 0).UTC()
	}
	return time.Now().UTC()
}

func parseUint(raw string) uint64 {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
