/*
engine.go - The ledger state machine

PURPOSE:
  Implements every externally visible operation: service bootstrap, user
  lifecycle, earning, the redemption request/resolve cycle, and the
  read-only queries. This is the only code that mutates ledger state.

AUTHORIZATION:
  Every operation except RegisterService first checks that the caller is
  the registered service. RegisterService is gated on a controller set
  supplied at construction (the host's admin capability).

ATOMICITY:
  A single mutex serializes operations, and each operation runs inside
  TxStore.WithTx. Preconditions are validated before the first write, so
  a failing call leaves the store unchanged.

PRE-BOOKING:
  RequestRedeem debits AvailablePoints and credits TotalRedeemed at
  request time, not at approval. AvailablePoints therefore always shows
  the true spendable balance while redemptions await manual processing,
  and the same points cannot back two concurrent pending requests.
  Approval finalizes the external payout without touching balances;
  decline reverses the pre-booking.

SEE ALSO:
  - analytics.go: The read-only scan operations
  - store.go: Persistence contract
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine executes ledger operations against a transactional store.
type Engine struct {
	mu          sync.Mutex
	store       TxStore
	controllers map[Principal]bool

	now   func() time.Time
	newID func() string
}

// Option customizes an Engine. Used by tests to pin time and IDs.
type Option func(*Engine)

// WithClock overrides the wall-clock source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDSource overrides the unique-ID generator.
func WithIDSource(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an engine. controllers are the principals allowed to
// perform the one-time service bootstrap.
func NewEngine(store TxStore, controllers []Principal, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		controllers: make(map[Principal]bool, len(controllers)),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, c := range controllers {
		e.controllers[c] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// AUTHORIZATION GUARD
// =============================================================================

// authorize succeeds iff caller is the registered service. Pure check.
func (e *Engine) authorize(ctx context.Context, s Store, caller Principal) error {
	svc, err := s.GetService(ctx, caller)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("%w: caller %s is not the authorized service", ErrUnauthorized, caller)
	}
	return nil
}

// =============================================================================
// SERVICE BOOTSTRAP
// =============================================================================

// RegisterService performs the one-time bootstrap, registering the single
// principal allowed to drive the ledger. The caller must be a controller,
// and no service may have been registered before. Every later call fails.
func (e *Engine) RegisterService(ctx context.Context, caller, serviceID Principal) (*Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Service
	err := e.store.WithTx(ctx, func(s Store) error {
		if !e.controllers[caller] {
			return fmt.Errorf("%w: caller %s is not a controller", ErrUnauthorized, caller)
		}

		n, err := s.ServiceCount(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: an authorized service is already registered", ErrUnauthorized)
		}

		existing, err := s.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: service already exists", ErrConflict)
		}

		svc := Service{ID: serviceID, CreatedAt: e.now()}
		if err := s.PutService(ctx, svc); err != nil {
			return err
		}
		out = &svc
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// =============================================================================
// USER LIFECYCLE
// =============================================================================

// InitializeUser creates a zero-balance account for userID.
func (e *Engine) InitializeUser(ctx context.Context, caller, userID Principal) (*User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *User
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}

		existing, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: user already exists", ErrConflict)
		}

		now := e.now()
		u := User{
			ID:              userID,
			TotalPoints:     ZeroPoints,
			AvailablePoints: ZeroPoints,
			TotalRedeemed:   ZeroPoints,
			Transactions:    []Transaction{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.PutUser(ctx, u); err != nil {
			return err
		}
		out = &u
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// GetUser returns the account for userID.
func (e *Engine) GetUser(ctx context.Context, caller, userID Principal) (*User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *User
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: user not found", ErrNotFound)
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// UserTransactions returns a user's full transaction history. A principal
// that was never initialized has a vacuously empty history, not an error.
func (e *Engine) UserTransactions(ctx context.Context, caller, userID Principal) ([]Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []Transaction{}
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u != nil {
			out = append(out, u.Transactions...)
		}
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// =============================================================================
// EARNING
// =============================================================================

// AddPoints credits amount to userID. Earning is final at creation: the
// transaction is appended COMPLETED, no approval step exists.
func (e *Engine) AddPoints(ctx context.Context, caller, userID Principal, amount Points, description string) (*User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *User
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: amount must be a positive number", ErrInvalidPayload)
		}

		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: user not found", ErrNotFound)
		}

		if description == "" {
			description = "Points earned"
		}
		now := e.now()
		tx := Transaction{
			ID:          "EARN-" + e.newID(),
			UserID:      userID,
			Amount:      amount,
			Address:     "",
			Type:        TxEarning,
			Status:      StatusCompleted,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		u.TotalPoints = u.TotalPoints.Add(amount)
		u.AvailablePoints = u.AvailablePoints.Add(amount)
		u.Transactions = append(u.Transactions, tx)
		u.UpdatedAt = now

		if err := s.PutUser(ctx, *u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// =============================================================================
// REDEMPTION REQUEST
// =============================================================================

// RequestRedeem moves amount from the user's available balance into a
// pending redemption. The debit happens now; approval later only finalizes
// the external payout.
func (e *Engine) RequestRedeem(ctx context.Context, caller, userID Principal, amount Points, address, description string) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: amount must be a positive number", ErrInvalidPayload)
		}
		if address == "" {
			return fmt.Errorf("%w: payout address is required", ErrInvalidPayload)
		}

		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: user not found", ErrNotFound)
		}

		// Balance check precedes every mutation: on failure the record
		// is untouched.
		if u.AvailablePoints.LessThan(amount) {
			return &InsufficientPointsError{
				UserID:    userID,
				Available: u.AvailablePoints,
				Requested: amount,
			}
		}

		if description == "" {
			description = "Points redeem request"
		}
		now := e.now()
		tx := Transaction{
			ID:          "RED-" + e.newID(),
			UserID:      userID,
			Amount:      amount,
			Address:     address,
			Type:        TxRedeem,
			Status:      StatusPending,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		// Pre-book the redemption.
		u.AvailablePoints = u.AvailablePoints.Sub(amount)
		u.TotalRedeemed = u.TotalRedeemed.Add(amount)
		u.Transactions = append(u.Transactions, tx)
		u.UpdatedAt = now

		if err := s.PutUser(ctx, *u); err != nil {
			return err
		}
		out = &tx
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// =============================================================================
// REDEMPTION RESOLUTION
// =============================================================================

// UpdateRedeemStatus resolves a pending redemption after manual payout
// processing. Only PENDING REDEEM transactions may move, and only to
// APPROVED or DECLINED; both are terminal. Decline reverses the
// pre-booked debit, approval changes no balances.
func (e *Engine) UpdateRedeemStatus(ctx context.Context, caller, userID Principal, transactionID string, status TransactionStatus) (*Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		if status != StatusApproved && status != StatusDeclined {
			return fmt.Errorf("%w: status must be either 'APPROVED' or 'DECLINED'", ErrInvalidPayload)
		}

		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("%w: user not found", ErrNotFound)
		}

		tx := u.FindTransaction(transactionID)
		if tx == nil {
			return fmt.Errorf("%w: transaction not found", ErrNotFound)
		}
		if tx.Type != TxRedeem || tx.Status != StatusPending {
			return &TransitionError{
				TransactionID: tx.ID,
				Type:          tx.Type,
				From:          tx.Status,
				To:            status,
			}
		}

		now := e.now()
		if status == StatusDeclined {
			// Reverse the pre-booking, restoring funds to the user.
			u.AvailablePoints = u.AvailablePoints.Add(tx.Amount)
			u.TotalRedeemed = u.TotalRedeemed.Sub(tx.Amount)
		}
		tx.Status = status
		tx.UpdatedAt = now
		u.UpdatedAt = now

		if err := s.PutUser(ctx, *u); err != nil {
			return err
		}
		txCopy := *tx
		out = &txCopy
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}
