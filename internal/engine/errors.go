package engine

import (
	"errors"

	"github.com/DIGIX666/Arena/internal/domain"
)

// Kind classifies a rejection.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindState
	KindFunds
	KindEntitlement
	KindReentrancy
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindFunds:
		return "funds"
	case KindEntitlement:
		return "entitlement"
	case KindReentrancy:
		return "reentrancy"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return domain.ErrValidation
	case KindAuthorization:
		return domain.ErrUnauthorized
	case KindState:
		return domain.ErrInvalidState
	case KindFunds:
		return domain.ErrInsufficientFunds
	case KindEntitlement:
		return domain.ErrNoEntitlement
	case KindReentrancy:
		return domain.ErrReentrant
	case KindNotFound:
		return domain.ErrNotFound
	default:
		return nil
	}
}

// Error is a rejected action. Msg is the externally visible reason; Cause,
// when set, carries the internal detail.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes both the kind sentinel and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the kind of an engine rejection, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Rejection messages. They are part of the external contract.
const (
	msgDeadlineTooSoon     = "Deadline too soon"
	msgDeadlineTooFar      = "Deadline too far"
	msgInvalidTitle        = "Invalid title"
	msgInvalidOutcome      = "Invalid outcome"
	msgInvalidCategory     = "Invalid category"
	msgTooManyOutcomes     = "Too many outcomes"
	msgUserCreationOff     = "User creation is disabled"
	msgCreationFeeBalance  = "Insufficient balance for creation fee"
	msgNotOperator         = "caller is not the operator"
	msgMarketNotFound      = "Duel does not exist"
	msgMarketNotOpen       = "Duel not open"
	msgBettingClosed       = "Betting closed"
	msgInvalidOutcomeIndex = "Invalid outcome index"
	msgAmountNotPositive   = "Amount must be positive"
	msgTransferFailed      = "Transfer failed"
	msgDeadlineNotReached  = "Deadline not reached"
	msgNotResolver         = "Not an authorized resolver"
	msgNoProposal          = "No pending proposal"
	msgDisputeWindow       = "Dispute window active"
	msgOutcomeMismatch     = "Outcome mismatch"
	msgAlreadyFinal        = "Duel already finalized"
	msgBalanced            = "Duel is balanced"
	msgNotResolved         = "Duel not resolved"
	msgNoWinningBets       = "You have no winning bets or have already claimed"
	msgNotCancelled        = "Duel not cancelled"
	msgNothingToRefund     = "Nothing to refund"
	msgAlreadyRefunded     = "Already refunded"
	msgInsufficientFees    = "Insufficient fees"
	msgNotCreator          = "Not the creator"
	msgInsufficientPoints  = "Insufficient points"
	msgAlreadyArena        = "Already arena eligible"
	msgInvalidRecipient    = "Invalid recipient"
	msgReentrant           = "ReentrancyGuard: reentrant call"
	msgArithmetic          = "Arithmetic error"

	msgInvalidDescription = "Invalid description"
	msgRaffleNotFound     = "Raffle does not exist"
	msgRaffleClosed       = "Raffle closed"
	msgRaffleResolved     = "Raffle already resolved"
	msgRaffleNotEnded     = "Raffle not ended"
	msgInvalidVoucher     = "Invalid voucher signature"
	msgVoucherNotBound    = "Voucher not bound to caller"
	msgAlreadyEntered     = "Already entered"
	msgWinnerNotEntered   = "Winner did not enter"

	msgSeasonalNotFound     = "Arena does not exist"
	msgArenaNotActive       = "Arena not active"
	msgDurationTooLong      = "Duration exceeds maximum"
	msgInvalidDuration      = "Invalid duration"
	msgInvalidEntryFee      = "Invalid entry fee range"
	msgInsufficientFan      = "Insufficient fan tokens"
	msgPaused               = "Pausable: paused"
	msgNotPaused            = "Pausable: not paused"
	msgCheckTooSoon         = "Volatility check too soon"
	msgThresholdNotReached  = "Volatility threshold not reached"
	msgProtectionTriggered  = "Protection already triggered"
	msgOracleUnavailable    = "Oracle unavailable"
	msgNoWinningPosition    = "No winning position"
	msgAlreadyClaimed       = "Already claimed"
	msgInsufficientReserve  = "Insufficient reserve"
	msgSecondaryUnavailable = "Secondary currency unavailable"
	msgUnknownCurrency      = "Unknown currency"
)

func invalid(msg string) error   { return &Error{Kind: KindValidation, Msg: msg} }
func forbidden(msg string) error { return &Error{Kind: KindAuthorization, Msg: msg} }
func badState(msg string) error  { return &Error{Kind: KindState, Msg: msg} }
func notFound(msg string) error  { return &Error{Kind: KindNotFound, Msg: msg} }

func noFunds(msg string, cause error) error {
	return &Error{Kind: KindFunds, Msg: msg, Cause: cause}
}

func noEntitlement(msg string, cause error) error {
	return &Error{Kind: KindEntitlement, Msg: msg, Cause: cause}
}

func reentrant() error { return &Error{Kind: KindReentrancy, Msg: msgReentrant} }

// arith reports an arithmetic failure. Amount overflow aborts the action like
// any other rejection.
func arith(cause error) error {
	return &Error{Kind: KindValidation, Msg: msgArithmetic, Cause: cause}
}
