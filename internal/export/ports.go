// Package export mirrors score snapshots to an external spreadsheet so a
// plan's history can be eyeballed outside the app.
package export

import (
	"context"
	"time"

	"gyebu/internal/core"
)

// ScoreRow is one exported snapshot row.
type ScoreRow struct {
	PlanID      int64
	PlanName    string
	Percent     int
	SpentMinor  int64
	SavedMinor  int64
	Currency    core.Currency
	WindowStart time.Time
	WindowEnd   time.Time
	ComputedAt  time.Time
}

// SnapshotWriter appends score rows to the export target.
type SnapshotWriter interface {
	AppendScore(ctx context.Context, row ScoreRow) error
}
