// Package backend builds the ledger store selected by configuration.
package backend

import (
	"context"

	"gofinances/internal/ledger"
)

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (t BackendType) IsValid() bool {
	return t == SQLiteBackend || t == MemoryBackend
}

func (t BackendType) String() string {
	return string(t)
}

// Store is a ledger store owning external resources.
type Store interface {
	ledger.Store
	Ping(ctx context.Context) error
	Close() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (Store, error)
}
