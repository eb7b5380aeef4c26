package storage

import (
	"time"

	"fee-tracker/internal/fees"
)

// SnapshotRecord is an archived fee snapshot.
type SnapshotRecord struct {
	ID         int64
	Snapshot   fees.Snapshot
	ArchivedAt time.Time
}
