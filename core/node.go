package core

import (
	"fmt"
	"sync"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/native/access"
	"vaultchain/native/ledger"
	"vaultchain/native/oracle"
	"vaultchain/native/params"
	"vaultchain/native/payout"
	"vaultchain/native/registry"
	"vaultchain/native/risk"
	"vaultchain/native/settlement"
	"vaultchain/native/viewcache"
	"vaultchain/observability/metrics"
	"vaultchain/storage"
)

const manualFeedName = "manual"

// pendingEmitter queues events raised during a mutation and releases them to
// the downstream sink only after the mutation commits. Events raised by a
// reverted mutation are discarded together with the state they described, so
// subscribers never observe changes that did not persist.
type pendingEmitter struct {
	sink    events.Emitter
	pending []events.Event
}

func (p *pendingEmitter) Emit(evt events.Event) {
	p.pending = append(p.pending, evt)
}

func (p *pendingEmitter) flush() {
	for _, evt := range p.pending {
		p.sink.Emit(evt)
	}
	p.pending = p.pending[:0]
}

func (p *pendingEmitter) discard() {
	p.pending = p.pending[:0]
}

// Node wires storage, state, and the native engines into one process-level
// controller. All state access funnels through ExecuteMutation and Query so
// the single-writer execution model holds across RPC, genesis bootstrap,
// and tests.
type Node struct {
	db         storage.Database
	state      *state.Manager
	stateMu    sync.Mutex
	emitBuffer *pendingEmitter

	registryMod *registry.Registry
	resolver    *registry.Resolver
	accessCtrl  *access.Controller
	paramStore  *params.Store
	aggregator  *oracle.Aggregator
	manualFeed  *oracle.ManualSource
	loans       *ledger.Loans
	debts       *ledger.Debts
	collateral  *ledger.Collateral
	receipts    *ledger.Receipts
	payoutCfg   *payout.Config
	assessor    *risk.Assessor
	cache       *viewcache.Consumer
	executor    *settlement.Executor
	coordinator *settlement.Coordinator
}

// Options tunes node construction.
type Options struct {
	// OracleMaxQuoteAge bounds how stale a price quote may be before the
	// ledgers refuse to value against it.
	OracleMaxQuoteAge time.Duration
	// ResolverMaxEntryAge bounds the registry resolver cache. Zero falls
	// back to the resolver default.
	ResolverMaxEntryAge time.Duration
}

// NewNode opens the state manager at the last committed root and wires
// every engine against it.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: storage required")
	}
	manager, err := state.LoadManager(db)
	if err != nil {
		return nil, fmt.Errorf("core: load state: %w", err)
	}
	n := &Node{db: db, state: manager}
	n.emitBuffer = &pendingEmitter{sink: events.NoopEmitter{}}

	n.registryMod = registry.NewRegistry(manager)
	n.resolver = registry.NewResolver(n.registryMod, opts.ResolverMaxEntryAge)
	n.accessCtrl = access.NewController(manager)
	n.paramStore = params.NewStore(manager)

	n.manualFeed = oracle.NewManualSource()
	n.aggregator = oracle.NewAggregator([]string{manualFeedName}, opts.OracleMaxQuoteAge)
	n.aggregator.Register(manualFeedName, n.manualFeed)

	n.loans = ledger.NewLoans(manager)
	n.debts = ledger.NewDebts(manager, n.aggregator, n.paramStore)
	n.collateral = ledger.NewCollateral(manager, n.aggregator)
	n.receipts = ledger.NewReceipts(manager)

	n.payoutCfg = payout.NewConfig(n.paramStore, n.accessCtrl)
	n.cache = viewcache.NewConsumer(manager, n.collateral, n.debts)
	n.assessor = risk.NewAssessor(n.paramStore, n.cache, n.collateral, n.debts, n.accessCtrl)
	n.assessor.SetModuleCache(n.resolver)

	n.executor = settlement.NewExecutor(manager, n.payoutCfg, n.collateral, n.debts, n.accessCtrl, n.resolver)
	n.executor.SetPauses(manager)
	n.executor.SetCachePusher(n.cache)

	n.coordinator = settlement.NewCoordinator(manager, n.loans, n.debts, n.collateral, n.assessor, n.executor, n.accessCtrl, n.resolver)
	n.coordinator.SetReceipts(n.receipts)
	n.coordinator.SetPauses(manager)
	n.coordinator.SetCachePusher(n.cache)

	for _, engine := range []interface{ SetEmitter(events.Emitter) }{
		n.registryMod, n.accessCtrl, n.payoutCfg, n.assessor, n.cache, n.executor, n.coordinator,
	} {
		engine.SetEmitter(n.emitBuffer)
	}

	return n, nil
}

// SetEmitter configures the sink that receives committed events. Events buffer
// per mutation and reach the sink in commit order; passing nil restores the
// default no-op sink.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitBuffer.sink = emitter
}

// ExecuteMutation runs fn under the node's write lock with a state snapshot
// around it: on success the snapshot is discarded and pending writes commit
// to the backing store; on failure the snapshot is reverted and nothing
// persists.
func (n *Node) ExecuteMutation(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	snapshot, err := n.state.Snapshot()
	if err != nil {
		return fmt.Errorf("core: snapshot: %w", err)
	}
	if err := fn(); err != nil {
		n.emitBuffer.discard()
		metrics.Core().RecordRevert()
		if revertErr := n.state.RevertToSnapshot(snapshot); revertErr != nil {
			return fmt.Errorf("%v: revert failed: %w", err, revertErr)
		}
		return err
	}
	n.state.DiscardSnapshot(snapshot)
	started := time.Now()
	_, commitErr := n.state.Commit()
	metrics.Core().ObserveCommit(time.Since(started), commitErr)
	if commitErr != nil {
		n.emitBuffer.discard()
		return fmt.Errorf("core: commit: %w", commitErr)
	}
	n.emitBuffer.flush()
	return nil
}

// Query runs fn under the node's lock without committing. Reads share the
// write lock because the state manager is not safe for concurrent use.
func (n *Node) Query(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return fn()
}

func (n *Node) Executor() *settlement.Executor       { return n.executor }
func (n *Node) Coordinator() *settlement.Coordinator { return n.coordinator }
func (n *Node) Risk() *risk.Assessor                 { return n.assessor }
func (n *Node) Payout() *payout.Config               { return n.payoutCfg }
func (n *Node) Registry() *registry.Registry         { return n.registryMod }
func (n *Node) Resolver() *registry.Resolver         { return n.resolver }
func (n *Node) Access() *access.Controller           { return n.accessCtrl }
func (n *Node) Loans() *ledger.Loans                 { return n.loans }
func (n *Node) Debts() *ledger.Debts                 { return n.debts }
func (n *Node) Collateral() *ledger.Collateral       { return n.collateral }
func (n *Node) Receipts() *ledger.Receipts           { return n.receipts }
func (n *Node) ViewCache() *viewcache.Consumer       { return n.cache }
func (n *Node) Params() *params.Store                { return n.paramStore }
func (n *Node) Oracle() *oracle.Aggregator           { return n.aggregator }
func (n *Node) PriceFeed() *oracle.ManualSource      { return n.manualFeed }
