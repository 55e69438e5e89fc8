package persistence

import (
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/optimizer"
)

// RunRecord is one optimizer run: the resolved input snapshot and its result.
// Replaying a record through optimizer.Compute must reproduce Result exactly.
type RunRecord struct {
	ID         string                     `json:"id"`
	CreatedAt  time.Time                  `json:"created_at"`
	Exchange   string                     `json:"exchange"`
	Symbol     string                     `json:"symbol"`
	Statistics models.MarketStatistics    `json:"statistics"`
	Fees       models.FeeStructure        `json:"fees"`
	Options    optimizer.Options          `json:"options"`
	Result     models.GridBotParameterSet `json:"result"`
	Notes      []string                   `json:"notes,omitempty"`
}

// RunRepository defines the interface for run persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type RunRepository interface {
	// SaveRun stores the record, assigning ID and CreatedAt when they are empty.
	SaveRun(rec *RunRecord) error

	// LoadRun loads a run by ID. If no run is found, it returns (nil, nil).
	LoadRun(id string) (*RunRecord, error)

	// LatestRun loads the most recently saved run, or (nil, nil) if there is none.
	LatestRun() (*RunRecord, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
	ListRuns(limit int) ([]*RunRecord, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
