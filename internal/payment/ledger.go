package payment

import (
	"context"
	"fmt"
	"sync"
)

// Ledger is the append-only transaction history. Appends and status updates
// must be atomic with respect to readers: a history query never observes a
// transaction in a torn intermediate state. Records are never deleted.
type Ledger interface {
	// Append stores a transaction in its terminal form.
	Append(ctx context.Context, tx *Transaction) error

	// Update replaces a stored transaction after a guarded status
	// transition (success -> refunded).
	Update(ctx context.Context, tx *Transaction) error

	// Get returns the transaction with the given id, or
	// ErrTransactionNotFound.
	Get(ctx context.Context, id string) (*Transaction, error)

	// List returns all transactions in insertion order.
	List(ctx context.Context) ([]*Transaction, error)
}

// MemoryLedger is the default in-memory ledger. It hands out deep copies so
// callers can never mutate ledger state behind its lock.
type MemoryLedger struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	order []string
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byID: make(map[string]*Transaction)}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[tx.ID]; exists {
		return fmt.Errorf("transaction %s already recorded", tx.ID)
	}
	l.byID[tx.ID] = tx.Clone()
	l.order = append(l.order, tx.ID)
	return nil
}

// Update implements Ledger.
func (l *MemoryLedger) Update(ctx context.Context, tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[tx.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, tx.ID)
	}
	l.byID[tx.ID] = tx.Clone()
	return nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(ctx context.Context, id string) (*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return tx.Clone(), nil
}

// List implements Ledger.
func (l *MemoryLedger) List(ctx context.Context) ([]*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Transaction, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id].Clone())
	}
	return out, nil
}
