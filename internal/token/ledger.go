// Package token holds an in-process fungible-token ledger and the custody
// adapter the engine moves value through.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrZeroAddress           = errors.New("token: zero address")
)

// MemoryLedger is an allowance-aware balance book. Writes made while a
// checkpoint is open are journaled so they can be undone.
type MemoryLedger struct {
	symbol   string
	decimals uint8

	mu         sync.Mutex
	balances   map[common.Address]amount.Amount
	allowances map[common.Address]map[common.Address]amount.Amount
	supply     amount.Amount

	journal []func()
	depth   int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger(symbol string, decimals uint8) *MemoryLedger {
	return &MemoryLedger{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]amount.Amount),
		allowances: make(map[common.Address]map[common.Address]amount.Amount),
	}
}

func (l *MemoryLedger) Symbol() string  { return l.symbol }
func (l *MemoryLedger) Decimals() uint8 { return l.decimals }

// BalanceOf returns the account balance.
func (l *MemoryLedger) BalanceOf(_ context.Context, account common.Address) (amount.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// TotalSupply returns the minted supply.
func (l *MemoryLedger) TotalSupply() amount.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply
}

// Allowance returns what spender may still move on behalf of owner.
func (l *MemoryLedger) Allowance(owner, spender common.Address) amount.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender]
}

// Mint credits new supply to an account.
func (l *MemoryLedger) Mint(to common.Address, amt amount.Amount) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.supply.Add(amt)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	bal, err := l.balances[to].Add(amt)
	if err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	l.setSupply(supply)
	l.setBalance(to, bal)
	return nil
}

// Approve sets the allowance of spender over owner's balance.
func (l *MemoryLedger) Approve(owner, spender common.Address, amt amount.Amount) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(owner, spender, amt)
	return nil
}

// Move transfers amt from one account to another.
func (l *MemoryLedger) Move(from, to common.Address, amt amount.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amt)
}

// MoveFrom transfers amt on behalf of from, spending spender's allowance.
func (l *MemoryLedger) MoveFrom(spender, from, to common.Address, amt amount.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowances[from][spender]
	if allowed.Lt(amt) {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amt); err != nil {
		return err
	}
	left, err := allowed.Sub(amt)
	if err != nil {
		return fmt.Errorf("token: allowance: %w", err)
	}
	l.setAllowance(from, spender, left)
	return nil
}

func (l *MemoryLedger) move(from, to common.Address, amt amount.Amount) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	src := l.balances[from]
	if src.Lt(amt) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	left, err := src.Sub(amt)
	if err != nil {
		return fmt.Errorf("token: transfer: %w", err)
	}
	dst, err := l.balances[to].Add(amt)
	if err != nil {
		return fmt.Errorf("token: transfer: %w", err)
	}
	l.setBalance(from, left)
	l.setBalance(to, dst)
	return nil
}

// Export copies the balance book. Zero balances and allowances are left out.
func (l *MemoryLedger) Export() domain.Holdings {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := domain.Holdings{Balances: make(map[common.Address]amount.Amount, len(l.balances))}
	for addr, bal := range l.balances {
		if !bal.IsZero() {
			h.Balances[addr] = bal
		}
	}
	for owner, spenders := range l.allowances {
		for spender, v := range spenders {
			if v.IsZero() {
				continue
			}
			if h.Allowances == nil {
				h.Allowances = make(map[common.Address]map[common.Address]amount.Amount)
			}
			if h.Allowances[owner] == nil {
				h.Allowances[owner] = make(map[common.Address]amount.Amount)
			}
			h.Allowances[owner][spender] = v
		}
	}
	return h
}

// Import replaces the balance book with h and recomputes the supply. It
// fails while a checkpoint is open.
func (l *MemoryLedger) Import(h domain.Holdings) error {
	balances := make(map[common.Address]amount.Amount, len(h.Balances))
	var supply amount.Amount
	for addr, bal := range h.Balances {
		if addr == (common.Address{}) {
			return ErrZeroAddress
		}
		var err error
		if supply, err = supply.Add(bal); err != nil {
			return fmt.Errorf("token: import %s: %w", l.symbol, err)
		}
		balances[addr] = bal
	}
	allowances := make(map[common.Address]map[common.Address]amount.Amount, len(h.Allowances))
	for owner, spenders := range h.Allowances {
		m := make(map[common.Address]amount.Amount, len(spenders))
		for spender, v := range spenders {
			m[spender] = v
		}
		allowances[owner] = m
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth > 0 {
		return fmt.Errorf("token: import %s: checkpoint open", l.symbol)
	}
	l.balances = balances
	l.allowances = allowances
	l.supply = supply
	return nil
}

// Checkpoint opens a journal scope. Rolling back undoes every write made
// since the call; committing keeps them. Each of the two returned functions
// takes effect at most once, and only the first of them to run counts.
func (l *MemoryLedger) Checkpoint() (rollback func(), commit func()) {
	l.mu.Lock()
	mark := len(l.journal)
	l.depth++
	l.mu.Unlock()

	var once sync.Once
	rollback = func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if mark <= len(l.journal) {
				for i := len(l.journal) - 1; i >= mark; i-- {
					l.journal[i]()
				}
				l.journal = l.journal[:mark]
			}
			l.release()
		})
	}
	commit = func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.release()
		})
	}
	return rollback, commit
}

func (l *MemoryLedger) release() {
	l.depth--
	if l.depth <= 0 {
		l.depth = 0
		l.journal = nil
	}
}

func (l *MemoryLedger) record(undo func()) {
	if l.depth > 0 {
		l.journal = append(l.journal, undo)
	}
}

func (l *MemoryLedger) setBalance(addr common.Address, v amount.Amount) {
	old, had := l.balances[addr]
	l.record(func() {
		if had {
			l.balances[addr] = old
		} else {
			delete(l.balances, addr)
		}
	})
	l.balances[addr] = v
}

func (l *MemoryLedger) setSupply(v amount.Amount) {
	old := l.supply
	l.record(func() { l.supply = old })
	l.supply = v
}

func (l *MemoryLedger) setAllowance(owner, spender common.Address, v amount.Amount) {
	old, had := l.allowances[owner][spender]
	l.record(func() {
		if had {
			l.allowances[owner][spender] = old
		} else if m := l.allowances[owner]; m != nil {
			delete(m, spender)
		}
	})
	m := l.allowances[owner]
	if m == nil {
		m = make(map[common.Address]amount.Amount)
		l.allowances[owner] = m
	}
	m[spender] = v
}
