package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"vaultchain/crypto"
)

// Quote carries an asset's price in reference units per base unit, the
// timestamp reported upstream, and the source identifier.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote so callers cannot mutate shared
// state.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// Source resolves a price quote for an asset.
type Source interface {
	Quote(asset crypto.Address) (Quote, error)
}

// ErrNoFreshQuote indicates that no registered source produced a quote
// inside the freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

// Aggregator consults registered sources in priority order until one returns
// a fresh, positive quote.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided priority order
// and freshness window. A zero maxAge disables the staleness check.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]Source),
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetNowFunc overrides the clock. Passing nil restores time.Now.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// Register adds or replaces a source under the supplied identifier.
// Identifiers are stored lowercase; unseen identifiers are appended to the
// priority order.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil || source == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if entry == trimmed {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Price fetches the asset's quote from the highest-priority source that
// produces a fresh, positive rate. The returned quote is a copy; callers
// may mutate it freely.
func (a *Aggregator) Price(asset crypto.Address) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle: aggregator not configured")
	}
	if asset.IsZero() {
		return Quote{}, fmt.Errorf("oracle: asset must not be zero")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[name]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.Quote(asset)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: source %s returned invalid rate", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// Value prices an asset amount in reference units, rounding down. A nil or
// non-positive amount values to zero without consulting the sources.
func (a *Aggregator) Value(asset crypto.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	quote, err := a.Price(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Rat).Mul(new(big.Rat).SetInt(amount), quote.Rate)
	return new(big.Int).Quo(value.Num(), value.Denom()), nil
}

// ManualSource is an in-memory source used by genesis seeds, tests, and
// manual overrides during incident response.
type ManualSource struct {
	mu     sync.RWMutex
	quotes map[crypto.Address]Quote
}

// NewManualSource constructs an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{quotes: make(map[crypto.Address]Quote)}
}

// Set stores the provided rational rate for the asset.
func (m *ManualSource) Set(asset crypto.Address, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil || asset.IsZero() {
		return
	}
	m.mu.Lock()
	m.quotes[asset] = Quote{Rate: new(big.Rat).Set(rate), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// SetDecimal parses and stores a decimal rate string for the asset.
func (m *ManualSource) SetDecimal(asset crypto.Address, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle: manual source not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("oracle: rate must be positive")
	}
	m.Set(asset, rat, ts)
	return nil
}

// Quote retrieves the stored rate for the asset.
func (m *ManualSource) Quote(asset crypto.Address) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("oracle: manual source not configured")
	}
	m.mu.RLock()
	stored, ok := m.quotes[asset]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("oracle: quote for %s not found", asset)
	}
	return stored.Clone(), nil
}
