package service

import (
	"sync"

	"facturo/pkg/domain"
)

// issuerLocks serializes emission per issuer. Different issuers proceed fully
// in parallel; within one issuer, the lock guarantees that no two emissions
// both read the same chain tail and fork the chain. The CAS stores remain the
// backstop for multi-process deployments; the lock removes wasted retries
// within one process.
//
// Locks are never removed from the map. The entry count is bounded by the
// number of distinct issuers seen by this process, which is small.
type issuerLocks struct {
	mu    sync.Mutex
	locks map[domain.IssuerID]*sync.Mutex
}

func newIssuerLocks() *issuerLocks {
	return &issuerLocks{locks: make(map[domain.IssuerID]*sync.Mutex)}
}

func (l *issuerLocks) lock(issuerID domain.IssuerID) func() {
	l.mu.Lock()
	m, ok := l.locks[issuerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[issuerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
