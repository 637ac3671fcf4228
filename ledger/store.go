/*
store.go - Persistence interface for users and the service singleton

PURPOSE:
  Defines the interface between the ledger engine and the database.
  The store holds two key-unique maps: users (keyed by principal, each
  owning its embedded transaction sequence) and the service singleton.
  Different implementations can use SQLite or in-memory storage.

ORDERING CONTRACT:
  ListUsers returns users in insertion order, and each user's transactions
  in append order. Platform-wide listings depend on this for stable output,
  correctness does not.

WRITE CONTRACT:
  PutUser is a whole-record upsert: the user row plus its embedded
  transactions. Implementations must never drop a previously stored
  transaction - the sequence is append-only except for in-place status
  updates.

ATOMICITY:
  TxStore.WithTx gives the engine all-or-nothing semantics: every engine
  operation runs inside one transaction, so a failed precondition leaves
  the store byte-for-byte unchanged.

IMPLEMENTATIONS:
  - store/sqlite: Durable SQLite store
  - ledger/store: In-memory store for tests and dev

SEE ALSO:
  - engine.go: The only writer
*/
package ledger

import "context"

// =============================================================================
// STORE - Entity persistence
// =============================================================================

// Store persists users and the service singleton.
// Reads return deep copies; mutations go through Put methods only.
type Store interface {
	// GetService returns the service registered under id, or nil.
	GetService(ctx context.Context, id Principal) (*Service, error)

	// ServiceCount returns how many service records exist (0 or 1 in
	// practice; the engine enforces the singleton).
	ServiceCount(ctx context.Context) (int, error)

	// PutService registers a service record.
	PutService(ctx context.Context, svc Service) error

	// GetUser returns the user with embedded transactions, or nil.
	GetUser(ctx context.Context, id Principal) (*User, error)

	// PutUser upserts a full user record including its transactions.
	PutUser(ctx context.Context, u User) error

	// ListUsers returns every user in insertion order.
	ListUsers(ctx context.Context) ([]User, error)
}

// =============================================================================
// TRANSACTIONAL STORE - All-or-nothing engine operations
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
