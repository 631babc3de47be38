package core

import (
	"fmt"
	"time"

	"vaultchain/config"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/params"
	"vaultchain/native/payout"
	"vaultchain/native/registry"
)

// ApplyGenesis seeds an empty state from the bootstrap document and commits
// the result. It is a no-op when state has already been committed, so a
// restarted node never re-applies grants. The returned bool reports whether
// the document was applied.
func (n *Node) ApplyGenesis(doc *config.Genesis) (bool, error) {
	if doc == nil {
		return false, nil
	}
	empty, err := n.state.Empty()
	if err != nil {
		return false, fmt.Errorf("core: genesis: %w", err)
	}
	if !empty {
		return false, nil
	}
	if err := n.ExecuteMutation(func() error { return n.applyGenesis(doc) }); err != nil {
		return false, fmt.Errorf("core: genesis: %w", err)
	}
	return true, nil
}

// SeedPrices loads the document's oracle quotes into the manual feed. The
// feed is in-memory, so seeds apply on every boot, not only the first.
func (n *Node) SeedPrices(doc *config.Genesis, now time.Time) error {
	if doc == nil {
		return nil
	}
	for i, price := range doc.Oracle {
		if err := n.manualFeed.SetDecimal(price.Asset.Address, price.Rate, now); err != nil {
			return fmt.Errorf("core: genesis oracle[%d]: %w", i, err)
		}
	}
	return nil
}

func (n *Node) applyGenesis(doc *config.Genesis) error {
	// Roles first: everything below that is normally role-gated writes
	// through state directly, but seeded operators must hold their roles
	// before the node serves its first call.
	for i, grant := range doc.Roles {
		for _, addr := range grant.Addresses {
			if err := n.state.SetRole(grant.Role, addr.Bytes()); err != nil {
				return fmt.Errorf("roles[%d]: %w", i, err)
			}
		}
	}
	for i, entry := range doc.Registry {
		key, err := registry.NormalizeKey(entry.Key)
		if err != nil {
			return fmt.Errorf("registry[%d]: %w", i, err)
		}
		if err := n.state.RegistrySet(key, entry.Address.Address); err != nil {
			return fmt.Errorf("registry[%d]: %w", i, err)
		}
	}
	if doc.Risk != nil {
		p := params.RiskParameters{
			LiquidationThresholdBps: doc.Risk.LiquidationThresholdBps,
			MinHealthFactorBps:      doc.Risk.MinHealthFactorBps,
		}
		if err := n.paramStore.SetRisk(p); err != nil {
			return fmt.Errorf("risk: %w", err)
		}
	}
	if doc.Settlement != nil {
		p := params.DefaultSettlementParameters()
		if doc.Settlement.CloseFactorBps > 0 {
			p.CloseFactorBps = doc.Settlement.CloseFactorBps
		}
		if doc.Settlement.PartialLiquidationFloor.Int != nil {
			p.PartialLiquidationFloor = doc.Settlement.PartialLiquidationFloor.Int
		}
		if err := n.paramStore.SetSettlement(p); err != nil {
			return fmt.Errorf("settlement: %w", err)
		}
	}
	if doc.Payout != nil {
		recipients := payout.Recipients{
			Platform:   doc.Payout.Platform.Address,
			Reserve:    doc.Payout.Reserve.Address,
			LenderComp: doc.Payout.LenderComp.Address,
		}
		rates := payout.Rates{
			PlatformBps:   doc.Payout.PlatformBps,
			ReserveBps:    doc.Payout.ReserveBps,
			LenderBps:     doc.Payout.LenderCompBps,
			LiquidatorBps: doc.Payout.LiquidatorBps,
		}
		if err := n.payoutCfg.Initialize(recipients, rates); err != nil {
			return fmt.Errorf("payout: %w", err)
		}
	}
	borrowers := make([]crypto.Address, 0, len(doc.Orders))
	for i, seed := range doc.Orders {
		id, err := types.ParseOrderID(seed.ID)
		if err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
		order := &types.LoanOrder{
			ID:          id,
			Borrower:    seed.Borrower.Address,
			Asset:       seed.Asset.Address,
			Principal:   seed.Principal.Int,
			Outstanding: seed.Outstanding.Int,
			Maturity:    seed.Maturity,
		}
		if err := n.loans.CreateOrder(order); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
		seen := false
		for _, known := range borrowers {
			if known.Equal(order.Borrower) {
				seen = true
				break
			}
		}
		if !seen {
			borrowers = append(borrowers, order.Borrower)
		}
	}
	for i, seed := range doc.Collateral {
		if err := n.collateral.Deposit(seed.User.Address, seed.Asset.Address, seed.Amount.Int); err != nil {
			return fmt.Errorf("collateral[%d]: %w", i, err)
		}
	}
	// Prime the health cache for seeded borrowers so risk queries start
	// from real numbers instead of the safe fallback. The push stores an
	// invalid snapshot when valuation fails, so validity is checked here:
	// a document that seeds orders without oracle prices does not boot.
	for _, borrower := range borrowers {
		if err := n.cache.PushLiquidationUpdate(borrower); err != nil {
			return fmt.Errorf("health snapshot for %s: %w", borrower, err)
		}
		snapshot, ok, err := n.cache.Snapshot(borrower)
		if err != nil {
			return fmt.Errorf("health snapshot for %s: %w", borrower, err)
		}
		if !ok || !snapshot.Valid {
			return fmt.Errorf("health snapshot for %s: seeded orders require oracle prices", borrower)
		}
	}
	return nil
}
