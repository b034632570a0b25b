package engine

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/fees"
)

func (tx *txn) isResolver(addr common.Address) bool {
	return addr == tx.e.params.Operator || tx.e.st.resolvers[addr]
}

func (tx *txn) market(id uint64) (*domain.Market, error) {
	m, ok := tx.e.st.markets[id]
	if !ok {
		return nil, notFound(msgMarketNotFound)
	}
	return m, nil
}

// ProposeResolution records a proposed winning outcome once the deadline has
// passed and opens the dispute window.
func (e *Engine) ProposeResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		if !tx.isResolver(caller) {
			return forbidden(msgNotResolver)
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Status.Final() {
			return badState(msgAlreadyFinal)
		}
		if m.Status != domain.MarketOpen {
			return badState(msgMarketNotOpen)
		}
		if tx.now.Before(m.Deadline) || tx.now.Equal(m.Deadline) {
			return badState(msgDeadlineNotReached)
		}
		if !m.ValidOutcome(outcome) {
			return invalid(msgInvalidOutcomeIndex)
		}

		tx.saveMarket(m)
		m.Status = domain.MarketProposalPending
		m.ProposedOutcome = outcome
		m.ProposedAt = tx.now
		m.UpdatedAt = tx.now
		tx.emit(domain.Event{Kind: domain.EventResolutionProposed, Scope: domain.ScopeMarket, ID: marketID, Actor: caller, Outcome: outcome})
		return nil
	})
}

// ExecuteResolution finalizes the proposed outcome after the dispute window
// and skims the platform fee.
func (e *Engine) ExecuteResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		if !tx.isResolver(caller) {
			return forbidden(msgNotResolver)
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Status.Final() {
			return badState(msgAlreadyFinal)
		}
		if m.Status != domain.MarketProposalPending {
			return badState(msgNoProposal)
		}
		if tx.now.Sub(m.ProposedAt) <= tx.e.params.DisputeWindow {
			return badState(msgDisputeWindow)
		}
		if outcome != m.ProposedOutcome {
			return invalid(msgOutcomeMismatch)
		}

		fee, net, err := tx.e.params.Fees.Skim(m.PotTotal)
		if err != nil {
			return arith(err)
		}

		tx.saveMarket(m)
		tx.saveMeta()
		m.Status = domain.MarketResolved
		m.WinningOutcome = outcome
		m.ResolvedAt = tx.now
		m.FeeAmount = fee
		m.NetPot = net
		m.UpdatedAt = tx.now
		if err := addTo(&tx.e.st.meta.FeesAccumulated, fee); err != nil {
			return err
		}
		tx.emit(domain.Event{Kind: domain.EventResolutionExecuted, Scope: domain.ScopeMarket, ID: marketID, Actor: caller, Outcome: outcome, Amount: fee})
		if m.OutcomePots[outcome].IsZero() {
			tx.e.logger.WarnContext(ctx, "market resolved with no winning stake",
				slog.Uint64("market_id", marketID),
				slog.String("net_pot", net.String()),
			)
		}
		return nil
	})
}

// ValidateAndCancel cancels an unbalanced market so every participant can
// claim a refund. Only the operator may cancel, whoever created the market.
func (e *Engine) ValidateAndCancel(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Status.Final() {
			return badState(msgAlreadyFinal)
		}
		unbalanced, err := fees.Imbalanced(m.OutcomePots, m.PotTotal, tx.e.params.ImbalanceBps)
		if err != nil {
			return arith(err)
		}
		if !unbalanced {
			return badState(msgBalanced)
		}

		tx.saveMarket(m)
		m.Status = domain.MarketCancelled
		m.UpdatedAt = tx.now
		tx.emit(domain.Event{Kind: domain.EventMarketCancelled, Scope: domain.ScopeMarket, ID: marketID, Actor: caller, Amount: m.PotTotal})
		return nil
	})
}
