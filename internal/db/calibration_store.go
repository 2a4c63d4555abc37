package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/particle.sizing/internal/calibration"
)

// ErrCalibrationNotFound is returned when a requested curve does not exist.
var ErrCalibrationNotFound = errors.New("calibration not found")

// CalibrationSummary is the indexed subset of a stored curve, for listings.
type CalibrationSummary struct {
	ID         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	Channel    string  `json:"channel,omitempty"`
	FitType    string  `json:"fit_type"`
	RSquared   float64 `json:"r_squared"`
	DMinNM     float64 `json:"d_min_nm"`
	DMaxNM     float64 `json:"d_max_nm"`
	ProxyModel string  `json:"proxy_model"`
	CreatedAt  int64   `json:"created_at"` // unix nanoseconds
}

// CalibrationStore persists calibration curves. Stored curves are never
// updated in place; a refit is a new row.
type CalibrationStore struct {
	db *sql.DB
}

// NewCalibrationStore creates a new CalibrationStore.
func NewCalibrationStore(db *sql.DB) *CalibrationStore {
	return &CalibrationStore{db: db}
}

// Insert stores c. The curve must validate; its ID must be new.
func (s *CalibrationStore) Insert(c *calibration.Curve) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("insert calibration: %w", err)
	}
	raw, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encode calibration %s: %w", c.ID, err)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO calibrations (
				id, label, channel, fit_type, r_squared, d_min_nm, d_max_nm,
				proxy_model, created_at, curve_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Label, c.Channel, string(c.FitType), c.RSquared, c.DMinNM, c.DMaxNM,
			c.ProxyModel, c.CreatedAt.UnixNano(), string(raw),
		)
		return err
	})
}

// Get returns the curve with the given ID.
func (s *CalibrationStore) Get(id string) (*calibration.Curve, error) {
	var raw string
	err := s.db.QueryRow(`SELECT curve_json FROM calibrations WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCalibrationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query calibration %s: %w", id, err)
	}
	return decodeCurve(id, raw)
}

// Latest returns the most recently created curve.
func (s *CalibrationStore) Latest() (*calibration.Curve, error) {
	var id, raw string
	err := s.db.QueryRow(`
		SELECT id, curve_json FROM calibrations
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: store is empty", ErrCalibrationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest calibration: %w", err)
	}
	return decodeCurve(id, raw)
}

// List returns summaries of every stored curve, newest first.
func (s *CalibrationStore) List() ([]CalibrationSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, label, channel, fit_type, r_squared, d_min_nm, d_max_nm,
		       proxy_model, created_at
		FROM calibrations
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query calibrations: %w", err)
	}
	defer rows.Close()

	var out []CalibrationSummary
	for rows.Next() {
		var c CalibrationSummary
		if err := rows.Scan(&c.ID, &c.Label, &c.Channel, &c.FitType, &c.RSquared,
			&c.DMinNM, &c.DMaxNM, &c.ProxyModel, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calibration: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a curve. Runs that referenced it keep their summaries.
func (s *CalibrationStore) Delete(id string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM calibrations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete calibration: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrCalibrationNotFound, id)
		}
		return nil
	})
}

func decodeCurve(id, raw string) (*calibration.Curve, error) {
	c, err := calibration.UnmarshalCurve([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode calibration %s: %w", id, err)
	}
	return c, nil
}
