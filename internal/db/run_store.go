package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/particle.sizing/internal/sizing"
)

// FileSummary is the stored outcome of one file in a batch run.
type FileSummary struct {
	Path   string             `json:"path"`
	Reason string             `json:"reason,omitempty"`
	Error  string             `json:"error,omitempty"`
	Counts sizing.Counts      `json:"counts"`
	Stats  *sizing.Statistics `json:"stats,omitempty"`
}

// RunSummary records one batch sizing run.
type RunSummary struct {
	RunID         string          `json:"run_id"`
	Strategy      string          `json:"strategy"`
	CalibrationID string          `json:"calibration_id,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Config        json.RawMessage `json:"config,omitempty"`
	Files         []FileSummary   `json:"files"`
}

// SummarizeFiles converts batch results to storable summaries.
func SummarizeFiles(results []sizing.FileResult) []FileSummary {
	out := make([]FileSummary, len(results))
	for i, r := range results {
		out[i] = FileSummary{Path: r.Path, Reason: r.Reason}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
		if r.Analysis != nil {
			out[i].Counts = r.Analysis.Counts
			out[i].Stats = r.Analysis.Stats
		}
	}
	return out
}

// Totals returns the failed file count and the summed event counts.
func (r *RunSummary) Totals() (filesFailed int, events sizing.Counts) {
	for _, f := range r.Files {
		if f.Error != "" {
			filesFailed++
		}
		events.Total += f.Counts.Total
		events.Valid += f.Counts.Valid
		events.NonPhysical += f.Counts.NonPhysical
		events.NoSolution += f.Counts.NoSolution
		events.Ambiguous += f.Counts.Ambiguous
		events.OutOfRange += f.Counts.OutOfRange
		events.Failed += f.Counts.Failed
		events.Disambiguated += f.Counts.Disambiguated
	}
	return filesFailed, events
}

// RunStore persists batch run summaries.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// InsertRun stores run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *RunSummary) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	files, err := json.Marshal(run.Files)
	if err != nil {
		return fmt.Errorf("encode run files: %w", err)
	}
	var cfg, calibrationID interface{}
	if len(run.Config) > 0 {
		cfg = string(run.Config)
	}
	if run.CalibrationID != "" {
		calibrationID = run.CalibrationID
	}
	failed, events := run.Totals()

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sizing_runs (
				run_id, strategy, calibration_id, files_total, files_failed,
				events_total, events_valid, started_at, finished_at,
				config_json, files_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Strategy, calibrationID, len(run.Files), failed,
			events.Total, events.Valid, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
			cfg, string(files),
		)
		return err
	})
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *RunStore) ListRuns(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT run_id, strategy, calibration_id, started_at, finished_at,
		       config_json, files_json
		FROM sizing_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		var (
			r                  RunSummary
			calibrationID, cfg sql.NullString
			files              string
			started, finished  int64
		)
		if err := rows.Scan(&r.RunID, &r.Strategy, &calibrationID, &started, &finished, &cfg, &files); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CalibrationID = calibrationID.String
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		if cfg.Valid {
			r.Config = json.RawMessage(cfg.String)
		}
		if err := json.Unmarshal([]byte(files), &r.Files); err != nil {
			return nil, fmt.Errorf("decode run %s files: %w", r.RunID, err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
