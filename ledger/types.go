/*
Package ledger provides the points accrual and redemption core.

PURPOSE:
  This package contains the data model and state machine for a single-asset
  points ledger: one authorized backend service credits points to users,
  users accumulate a spendable balance, and redemption requests move points
  into a pending state until an operator approves or declines them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Principal: An opaque caller/user identity
  - Points: An unsigned arbitrary-precision quantity
  - User: One ledger account, owning its transaction history
  - Transaction: An immutable-except-status record of a balance movement
  - Service: The single backend principal allowed to drive the ledger

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so large balances never overflow or wrap
  2. Ownership: Transactions live inside their User record, nowhere else
  3. Immutability: Transactions only ever change status, never amount
  4. Pre-booking: Redemptions debit the balance at request time, not approval

SEE ALSO:
  - engine.go: The operations mutating these types
  - store.go: Persistence interfaces
  - errors.go: The error taxonomy every operation reports through
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRINCIPAL - Opaque identity for callers, users, and the service
// =============================================================================

type Principal string

func (p Principal) String() string { return string(p) }
func (p Principal) IsZero() bool   { return p == "" }

// =============================================================================
// POINTS - Unsigned arbitrary-precision quantity
// =============================================================================

// Points is a whole, non-negative quantity of loyalty points.
// Arithmetic never wraps; construction rejects negative and fractional values.
type Points struct {
	value decimal.Decimal
}

var ZeroPoints = Points{value: decimal.Zero}

func NewPoints(v int64) Points {
	if v < 0 {
		return ZeroPoints
	}
	return Points{value: decimal.NewFromInt(v)}
}

// ParsePoints parses a decimal string into Points.
// Negative and fractional values are rejected.
func ParsePoints(s string) (Points, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Points{}, fmt.Errorf("%w: amount %q is not a number", ErrInvalidPayload, s)
	}
	if d.IsNegative() {
		return Points{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidPayload)
	}
	if !d.IsInteger() {
		return Points{}, fmt.Errorf("%w: amount must be a whole number", ErrInvalidPayload)
	}
	return Points{value: d}, nil
}

func (p Points) Add(q Points) Points    { return Points{value: p.value.Add(q.value)} }
func (p Points) Sub(q Points) Points    { return Points{value: p.value.Sub(q.value)} }
func (p Points) IsZero() bool           { return p.value.IsZero() }
func (p Points) IsPositive() bool       { return p.value.IsPositive() }
func (p Points) IsNegative() bool       { return p.value.IsNegative() }
func (p Points) LessThan(q Points) bool { return p.value.LessThan(q.value) }
func (p Points) Equal(q Points) bool    { return p.value.Equal(q.value) }
func (p Points) String() string         { return p.value.String() }

// =============================================================================
// TRANSACTION - Atomic balance movement, owned by a User
// =============================================================================

type TransactionType string

const (
	TxEarning TransactionType = "EARNING" // Final credit, completed at creation
	TxRedeem  TransactionType = "REDEEM"  // Payout request, starts pending
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusApproved  TransactionStatus = "APPROVED"
	StatusDeclined  TransactionStatus = "DECLINED"

	// StatusFailed is part of the status taxonomy but no transition produces
	// it today. Reverting points on external payout failure would use it.
	StatusFailed TransactionStatus = "FAILED"
)

// Transaction records a single balance movement. Once written, only Status
// and UpdatedAt ever change; transactions are never deleted.
type Transaction struct {
	ID          string
	UserID      Principal // denormalized owner, for cross-user listings
	Amount      Points
	Address     string // external payout destination; empty for earnings
	Type        TransactionType
	Status      TransactionStatus
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// USER - One ledger account per identity
// =============================================================================

// User is a ledger account. Invariant: AvailablePoints is never negative,
// and every earned point is in exactly one of available, pending-redeem,
// or finalized-redeemed.
type User struct {
	ID              Principal
	TotalPoints     Points // cumulative earned, monotonically non-decreasing
	AvailablePoints Points // currently spendable
	TotalRedeemed   Points // committed to redemption; decremented only on decline
	Transactions    []Transaction
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state behind the engine's back.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Transactions = append([]Transaction(nil), u.Transactions...)
	return &c
}

// FindTransaction returns a pointer into the user's transaction sequence,
// or nil if no transaction has the given id.
func (u *User) FindTransaction(id string) *Transaction {
	for i := range u.Transactions {
		if u.Transactions[i].ID == id {
			return &u.Transactions[i]
		}
	}
	return nil
}

// =============================================================================
// SERVICE - The single authorized backend
// =============================================================================

// Service is the one external principal authorized to drive the ledger.
// At most one Service record ever exists per store lifetime.
type Service struct {
	ID        Principal
	CreatedAt time.Time
}

// =============================================================================
// ANALYTICS - Platform-wide aggregates
// =============================================================================

type Analytics struct {
	TotalPoints       Points
	AvailablePoints   Points
	RedeemedPoints    Points
	TotalTransactions int64
}
