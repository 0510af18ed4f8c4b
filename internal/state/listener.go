package state

import (
	"context"

	"poolwatch/internal/domain"
)

// Update is handed to listeners after a snapshot is published.
type Update struct {
	Snapshot Snapshot
	// Fresh holds the transfers first retained by this cycle.
	Fresh []domain.ClassifiedTransfer
}

// Listener consumes published snapshots (publishers, archives).
type Listener interface {
	Name() string
	OnSnapshot(ctx context.Context, u Update) error
}
