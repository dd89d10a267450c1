// Package payment coordinates splitting a single charge across up to three
// stored-value instruments, with full compensation of applied debits when a
// later debit in the same attempt fails.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"splitpay/internal/common/money"
	"splitpay/internal/instrument"
)

// Service is the transaction coordinator. It owns explicit collaborators and
// carries no global state; construct one per process or per test.
type Service struct {
	registry  *instrument.Registry
	profiles  *ProfileStore
	ledger    Ledger
	publisher Publisher
	logger    *slog.Logger

	// Serializes refunds so a success transaction is flipped to refunded
	// exactly once.
	refundMu sync.Mutex
}

// NewService creates a coordinator.
func NewService(registry *instrument.Registry, profiles *ProfileStore, ledger Ledger, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		registry:  registry,
		profiles:  profiles,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterInstrument adds an instrument and returns its ref.
func (s *Service) RegisterInstrument(inst instrument.Instrument) int {
	ref := s.registry.Register(inst)
	s.logger.Info("instrument registered", "ref", ref, "token", inst.Token())
	return ref
}

// Instruments returns redacted views of every registered instrument.
func (s *Service) Instruments() []instrument.Snapshot {
	return s.registry.Snapshots()
}

// SaveProfile validates refs against the registry and stores the profile.
func (s *Service) SaveProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, ref := range p.Refs {
		if _, ok := s.registry.Get(ref); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownInstrument, ref)
		}
	}
	if err := s.profiles.Save(p); err != nil {
		return err
	}
	s.logger.Info("profile saved", "name", p.Name, "refs", p.Refs, "has_ratios", p.Ratios != nil)
	return nil
}

// GetTransaction looks up a transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	return s.ledger.Get(ctx, id)
}

// ListTransactions returns the full history in insertion order.
func (s *Service) ListTransactions(ctx context.Context) ([]*Transaction, error) {
	return s.ledger.List(ctx)
}

// ProcessRequest describes one charge to collect.
type ProcessRequest struct {
	Total money.Money

	// Refs selects instruments explicitly. When empty, ProfileName is
	// consulted instead.
	Refs []int

	// Amounts, when present, fixes the per-instrument split. Takes
	// precedence over a profile's ratio vector.
	Amounts []money.Money

	ProfileName string
}

// Process collects the requested total across the selected instruments.
// Either every planned debit settles and the sum of charges equals the total
// exactly, or every applied debit is compensated and no instrument is left
// debited. Input and precondition failures return before any money moves and
// leave no ledger record; debit failures are recorded as failed transactions
// with their compensated charges attached for audit.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*Transaction, error) {
	refs, ratios, err := s.resolveSelection(req)
	if err != nil {
		return nil, err
	}

	if len(refs) == 0 || len(refs) > 3 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInstrumentCount, len(refs))
	}
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, req.Total)
	}

	instruments := make([]instrument.Instrument, len(refs))
	for i, ref := range refs {
		inst, ok := s.registry.Get(ref)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownInstrument, ref)
		}
		if inst.Currency() != req.Total.Currency {
			return nil, fmt.Errorf("%w: instrument %d settles in %s, total is %s",
				money.ErrCurrencyMismatch, i, inst.Currency(), req.Total.Currency)
		}
		instruments[i] = inst
	}

	// Pre-validate every instrument before touching any of them.
	for i, inst := range instruments {
		if usable, reason := inst.IsUsable(); !usable {
			return nil, &UnusableInstrumentError{Index: i, Reason: reason}
		}
	}

	// Aggregate sufficiency check, still before any debit. Deliberately
	// aggregate-only for every strategy; per-instrument capacity surfaces as
	// a debit failure with compensation.
	balances := make([]money.Money, len(instruments))
	available := money.Zero(req.Total.Currency)
	for i, inst := range instruments {
		balances[i] = inst.AvailableBalance()
		available = available.MustAdd(balances[i])
	}
	if available.LessThan(req.Total) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAggregateFunds, available, req.Total)
	}

	plan, err := s.selectStrategy(req, ratios).Plan(req.Total, refs, balances)
	if err != nil {
		return nil, err
	}

	tx := NewTransaction(ulid.Make().String(), req.Total, refs)
	return s.apply(ctx, tx, plan, instruments)
}

// resolveSelection picks the instrument list from explicit refs or a named
// profile, returning the profile's ratios when they are the split source.
func (s *Service) resolveSelection(req ProcessRequest) (refs []int, ratios []float64, err error) {
	if len(req.Refs) > 0 {
		return req.Refs, nil, nil
	}
	if req.ProfileName == "" {
		return nil, nil, fmt.Errorf("%w: no instruments selected", ErrInvalidInstrumentCount)
	}
	profile, err := s.profiles.Get(req.ProfileName)
	if err != nil {
		return nil, nil, err
	}
	return profile.Refs, profile.Ratios, nil
}

// selectStrategy applies the precedence rule: explicit amounts beat a
// profile ratio, and sequential fill is the default.
func (s *Service) selectStrategy(req ProcessRequest, ratios []float64) Strategy {
	if len(req.Amounts) > 0 {
		return FixedAmounts{Amounts: req.Amounts}
	}
	if len(ratios) > 0 {
		return RatioSplit{Ratios: ratios}
	}
	return Sequential{}
}

// apply executes the plan in order. On the first debit failure it credits
// back every instrument already debited in this attempt, in the same order
// and for exactly the amounts debited, records the transaction as failed,
// and surfaces the failure.
func (s *Service) apply(ctx context.Context, tx *Transaction, plan ChargePlan, instruments []instrument.Instrument) (*Transaction, error) {
	charges := make([]Charge, 0, len(plan))
	debited := make([]instrument.Instrument, 0, len(plan))

	for i, step := range plan {
		if step.Amount.IsZero() {
			// Sequential tail: the total was covered by earlier instruments.
			continue
		}

		receipt, err := instruments[i].Debit(ctx, step.Amount)
		if err != nil {
			s.compensate(ctx, tx.ID, charges, debited)

			failure := &DebitFailedError{Index: i, Err: err}
			if markErr := tx.MarkFailed(ErrorCode(err), err.Error(), charges); markErr != nil {
				return nil, markErr
			}
			if appendErr := s.ledger.Append(ctx, tx); appendErr != nil {
				return nil, appendErr
			}
			s.publish(ctx, SubjectTransactionFailed, tx)

			s.logger.Warn("transaction failed, prior debits compensated",
				"transaction_id", tx.ID,
				"failed_index", i,
				"compensated", len(charges),
				"error", err,
			)
			return tx.Clone(), failure
		}

		charges = append(charges, Charge{
			Ref:              step.Ref,
			Token:            receipt.Token,
			Amount:           step.Amount,
			ResultingBalance: receipt.ResultingBalance,
		})
		debited = append(debited, instruments[i])
	}

	if err := tx.MarkSucceeded(charges); err != nil {
		return nil, err
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, err
	}
	s.publish(ctx, SubjectTransactionSettled, tx)

	s.logger.Info("transaction settled",
		"transaction_id", tx.ID,
		"total", tx.Total.AmountMinor,
		"currency", tx.Total.Currency,
		"charges", len(charges),
	)
	return tx.Clone(), nil
}

// compensate reverses already-applied debits. Credits cannot fail in this
// model; a currency mismatch here would mean an instrument changed currency
// mid-flight, which is logged and nothing more.
func (s *Service) compensate(ctx context.Context, txID string, applied []Charge, debited []instrument.Instrument) {
	for i, charge := range applied {
		if err := debited[i].Credit(ctx, charge.Amount); err != nil {
			s.logger.Error("compensating credit failed",
				"transaction_id", txID,
				"ref", charge.Ref,
				"amount", charge.Amount.AmountMinor,
				"error", err,
			)
		}
	}
}

// Refund reverses a successful transaction as a compensating batch of
// credits. It returns the id of the refund transaction.
func (s *Service) Refund(ctx context.Context, transactionID string) (string, error) {
	s.refundMu.Lock()
	defer s.refundMu.Unlock()

	tx, err := s.ledger.Get(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if tx.Status != StatusSuccess {
		return "", fmt.Errorf("%w: transaction %s is %s", ErrRefundNotAllowed, tx.ID, tx.Status)
	}

	// Credits cannot fail in this model, so a refund has no partial-failure
	// path: apply them all, then record.
	for _, charge := range tx.Charges {
		inst, ok := s.registry.Get(charge.Ref)
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrUnknownInstrument, charge.Ref)
		}
		if err := inst.Credit(ctx, charge.Amount); err != nil {
			return "", fmt.Errorf("crediting instrument %d: %w", charge.Ref, err)
		}
	}

	refund := NewTransaction(ulid.Make().String(), tx.Total, tx.Refs)
	refund.Status = StatusRefund
	refund.RefundOf = tx.ID
	refund.Charges = append([]Charge(nil), tx.Charges...)
	now := refund.CreatedAt
	refund.CompletedAt = &now

	if err := s.ledger.Append(ctx, refund); err != nil {
		return "", err
	}

	if err := tx.MarkRefunded(refund.ID); err != nil {
		return "", err
	}
	if err := s.ledger.Update(ctx, tx); err != nil {
		return "", err
	}
	s.publish(ctx, SubjectTransactionRefunded, tx)

	s.logger.Info("transaction refunded",
		"transaction_id", tx.ID,
		"refund_id", refund.ID,
		"total", tx.Total.AmountMinor,
	)
	return refund.ID, nil
}

func (s *Service) publish(ctx context.Context, subject string, tx *Transaction) {
	event, err := outcomeEvent(subject, tx)
	if err != nil {
		s.logger.Error("building outcome event", "transaction_id", tx.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.logger.Warn("publishing outcome event", "transaction_id", tx.ID, "subject", subject, "error", err)
	}
}
