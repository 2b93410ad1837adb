// Package store defines the transactional unit of work shared by the
// pipelines. Every pipeline step that reads or writes the relational store
// runs inside Store.InTx with an explicit Tx handle.
package store

import (
	"context"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
)

// Tx is the view of the store inside one transaction.
type Tx interface {
	smarts.Repository
	molecule.Repository

	// ResetAll deletes every SMARTS, edge, molecule set, molecule and match.
	ResetAll(ctx context.Context) error
}

// Store runs units of work. InTx commits when fn returns nil and rolls back
// otherwise, returning fn's error unchanged.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
