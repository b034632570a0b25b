package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/domain"
)

func (tx *txn) raffle(id uint64) (*domain.Raffle, error) {
	r, ok := tx.e.st.raffles[id]
	if !ok {
		return nil, notFound(msgRaffleNotFound)
	}
	return r, nil
}

// CreateRaffle opens a raffle for one collectible.
func (e *Engine) CreateRaffle(ctx context.Context, caller common.Address, description string, requiredPoints uint64, deadline time.Time) (uint64, []domain.Event, error) {
	var id uint64
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		description = strings.TrimSpace(description)
		if n := utf8.RuneCountInString(description); n == 0 || n > tx.e.params.MaxDescriptionLen {
			return invalid(msgInvalidDescription)
		}
		if !deadline.After(tx.now) {
			return invalid(msgDeadlineTooSoon)
		}

		tx.saveMeta()
		id = tx.e.st.meta.NextRaffleID
		tx.e.st.meta.NextRaffleID++
		tx.e.st.raffles[id] = &domain.Raffle{
			ID:             id,
			Description:    description,
			RequiredPoints: requiredPoints,
			Deadline:       deadline,
			Entered:        make(map[common.Address]bool),
			CreatedAt:      tx.now,
		}
		tx.onUndo(func() { delete(tx.e.st.raffles, id) })
		tx.emit(domain.Event{Kind: domain.EventRaffleCreated, Scope: domain.ScopeRaffle, ID: id, Actor: caller, Points: requiredPoints, Detail: description})
		return nil
	})
	return id, events, err
}

// EnterRaffle records the caller's entry. The voucher must be signed by the
// voucher authority for exactly this raffle and caller, and may be used once.
func (e *Engine) EnterRaffle(ctx context.Context, caller common.Address, v domain.Voucher) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		r, err := tx.raffle(v.RaffleID)
		if err != nil {
			return err
		}
		if r.Resolved {
			return badState(msgRaffleResolved)
		}
		if !tx.now.Before(r.Deadline) {
			return badState(msgRaffleClosed)
		}
		if v.User != caller {
			return forbidden(msgVoucherNotBound)
		}
		if tx.e.deps.Vouchers == nil {
			return forbidden(msgInvalidVoucher)
		}
		signer, err := tx.e.deps.Vouchers.RecoverSigner(v)
		if err != nil || signer != tx.e.params.VoucherAuthority {
			return &Error{Kind: KindAuthorization, Msg: msgInvalidVoucher, Cause: domain.ErrInvalidSignature}
		}
		if r.Entered[caller] {
			return badState(msgAlreadyEntered)
		}

		tx.saveRaffle(r)
		r.Entered[caller] = true
		r.Entrants = append(r.Entrants, caller)
		tx.emit(domain.Event{Kind: domain.EventRaffleEntered, Scope: domain.ScopeRaffle, ID: r.ID, Actor: caller})
		return nil
	})
}

// ResolveRaffleAndMint names the winner once the raffle has ended and mints
// the collectible whose id is the raffle id.
func (e *Engine) ResolveRaffleAndMint(ctx context.Context, caller common.Address, raffleID uint64, winner common.Address) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		r, err := tx.raffle(raffleID)
		if err != nil {
			return err
		}
		if r.Resolved {
			return badState(msgRaffleResolved)
		}
		if tx.now.Before(r.Deadline) {
			return badState(msgRaffleNotEnded)
		}
		if !r.Entered[winner] {
			return invalid(msgWinnerNotEntered)
		}
		if _, minted := tx.e.st.collectibles[raffleID]; minted {
			return badState(msgRaffleResolved)
		}

		tx.saveRaffle(r)
		r.Resolved = true
		r.Winner = winner
		r.ResolvedAt = tx.now
		tx.e.st.collectibles[raffleID] = domain.Collectible{TokenID: raffleID, Owner: winner, RaffleID: raffleID, MintedAt: tx.now}
		tx.onUndo(func() { delete(tx.e.st.collectibles, raffleID) })

		tx.emit(domain.Event{Kind: domain.EventRaffleResolved, Scope: domain.ScopeRaffle, ID: raffleID, Actor: winner})
		tx.emit(domain.Event{Kind: domain.EventCollectibleMinted, Scope: domain.ScopeRaffle, ID: raffleID, Actor: winner})
		return nil
	})
}
