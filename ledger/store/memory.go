// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	users    map[ledger.Principal]*ledger.User
	order    []ledger.Principal // user insertion order
	services map[ledger.Principal]*ledger.Service
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[ledger.Principal]*ledger.User),
		services: make(map[ledger.Principal]*ledger.Service),
	}
}

func (m *Memory) GetService(_ context.Context, id ledger.Principal) (*ledger.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok {
		return nil, nil
	}
	cp := *svc
	return &cp, nil
}

func (m *Memory) ServiceCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services), nil
}

func (m *Memory) PutService(_ context.Context, svc ledger.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *Memory) GetUser(_ context.Context, id ledger.Principal) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id].Clone(), nil
}

func (m *Memory) PutUser(_ context.Context, u ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		m.order = append(m.order, u.ID)
	}
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.User, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, *m.users[id].Clone())
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	snapshot := tm.snapshot()

	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	usersCopy := make(map[ledger.Principal]*ledger.User, len(tm.users))
	for id, u := range tm.users {
		usersCopy[id] = u.Clone()
	}
	servicesCopy := make(map[ledger.Principal]*ledger.Service, len(tm.services))
	for id, svc := range tm.services {
		cp := *svc
		servicesCopy[id] = &cp
	}
	orderCopy := append([]ledger.Principal(nil), tm.order...)
	return memorySnapshot{users: usersCopy, order: orderCopy, services: servicesCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.users = s.users
	tm.order = s.order
	tm.services = s.services
}

type memorySnapshot struct {
	users    map[ledger.Principal]*ledger.User
	order    []ledger.Principal
	services map[ledger.Principal]*ledger.Service
}
