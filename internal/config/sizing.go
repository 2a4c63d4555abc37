package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/particle.sizing/internal/calibration"
	"github.com/banshee-data/particle.sizing/internal/dualwave"
	"github.com/banshee-data/particle.sizing/internal/fcs"
	"github.com/banshee-data/particle.sizing/internal/inverse"
	"github.com/banshee-data/particle.sizing/internal/mie"
	"github.com/banshee-data/particle.sizing/internal/sizing"
)

// DefaultConfigPath is the path to the canonical sizing defaults file.
const DefaultConfigPath = "config/sizing.defaults.json"

// maxFileSize bounds configuration files read by LoadSizingConfig.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// SizingConfig is the root configuration for one instrument and sample
// type. Every field is optional; the Get* methods supply defaults for
// anything the JSON omits, so partial configs are safe.
type SizingConfig struct {
	// Optics
	WavelengthNM       *float64    `json:"wavelength_nm,omitempty"`
	SecondWavelengthNM *float64    `json:"second_wavelength_nm,omitempty"`
	ParticleIndexReal  *float64    `json:"particle_index_real,omitempty"`
	ParticleIndexImag  *float64    `json:"particle_index_imag,omitempty"`
	BeadIndexReal      *float64    `json:"bead_index_real,omitempty"` // reference beads, used for the gain fit
	MediumIndex        *float64    `json:"medium_index,omitempty"`
	ForwardConeDeg     *[2]float64 `json:"forward_cone_deg,omitempty"`
	SideConeDeg        *[2]float64 `json:"side_cone_deg,omitempty"`

	// Channel roles
	ForwardChannel *string `json:"forward_channel,omitempty"`
	SideChannel    *string `json:"side_channel,omitempty"`
	RatioChannel   *string `json:"ratio_channel,omitempty"`

	// Inversion
	GridMinNM   *float64 `json:"grid_min_nm,omitempty"`
	GridMaxNM   *float64 `json:"grid_max_nm,omitempty"`
	GridStepNM  *float64 `json:"grid_step_nm,omitempty"`
	BoundsMinNM *float64 `json:"bounds_min_nm,omitempty"`
	BoundsMaxNM *float64 `json:"bounds_max_nm,omitempty"`
	Signal      *string  `json:"signal,omitempty"`      // "forward" or "side"
	RefineMode  *string  `json:"refine_mode,omitempty"` // "interpolate" or "exact"

	// Calibration fit
	FitType     *string  `json:"fit_type,omitempty"`
	FitDegree   *int     `json:"fit_degree,omitempty"`
	MinRSquared *float64 `json:"min_r_squared,omitempty"`

	// Statistics
	KDEPoints         *int     `json:"kde_points,omitempty"`
	MinPeakProminence *float64 `json:"min_peak_prominence,omitempty"`
	BandwidthNM       *float64 `json:"bandwidth_nm,omitempty"`

	// Two-wavelength disambiguation. The detector correction is measured
	// separately; disambiguation stays off until a factor is configured.
	DetectorCorrectionFactor *float64 `json:"detector_correction_factor,omitempty"`
	DetectorCorrectionSource *string  `json:"detector_correction_source,omitempty"`

	// Batch
	Workers      *int    `json:"workers,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySizingConfig returns a SizingConfig with all fields set to nil.
func EmptySizingConfig() *SizingConfig {
	return &SizingConfig{}
}

// DefaultSizingConfig returns a config with every field set to its default.
func DefaultSizingConfig() *SizingConfig {
	c := EmptySizingConfig()
	c.WavelengthNM = ptrFloat64(c.GetWavelengthNM())
	c.SecondWavelengthNM = ptrFloat64(c.GetSecondWavelengthNM())
	c.ParticleIndexReal = ptrFloat64(c.GetParticleIndexReal())
	c.ParticleIndexImag = ptrFloat64(c.GetParticleIndexImag())
	c.BeadIndexReal = ptrFloat64(c.GetBeadIndexReal())
	c.MediumIndex = ptrFloat64(c.GetMediumIndex())
	c.ForwardChannel = ptrString(c.GetForwardChannel())
	c.SideChannel = ptrString(c.GetSideChannel())
	c.RatioChannel = ptrString(c.GetRatioChannel())
	c.GridMinNM = ptrFloat64(c.GetGridMinNM())
	c.GridMaxNM = ptrFloat64(c.GetGridMaxNM())
	c.GridStepNM = ptrFloat64(c.GetGridStepNM())
	c.Signal = ptrString(c.GetSignal())
	c.RefineMode = ptrString(c.GetRefineMode())
	c.FitType = ptrString(c.GetFitType())
	c.FitDegree = ptrInt(c.GetFitDegree())
	c.MinRSquared = ptrFloat64(c.GetMinRSquared())
	c.KDEPoints = ptrInt(c.GetKDEPoints())
	c.MinPeakProminence = ptrFloat64(c.GetMinPeakProminence())
	c.Workers = ptrInt(c.GetWorkers())
	return c
}

// LoadSizingConfig loads a SizingConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSizingConfig(path string) (*SizingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySizingConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. It panics if the file
// cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *SizingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/particle-sizer/
	}
	for _, path := range candidates {
		if cfg, err := LoadSizingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration converts to valid domain values.
func (c *SizingConfig) Validate() error {
	if err := c.Optics().Validate(); err != nil {
		return err
	}
	if err := c.SecondOptics().Validate(); err != nil {
		return fmt.Errorf("second wavelength: %w", err)
	}
	if c.GetSecondWavelengthNM() == c.GetWavelengthNM() {
		return fmt.Errorf("second_wavelength_nm must differ from wavelength_nm, both %g", c.GetWavelengthNM())
	}
	if err := c.BeadOptics().Validate(); err != nil {
		return fmt.Errorf("bead optics: %w", err)
	}
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	if b := c.Bounds(); b.MinNM < 0 || (b.MaxNM > 0 && b.MaxNM <= b.MinNM) {
		return fmt.Errorf("bounds [%g, %g] nm are inverted or negative", b.MinNM, b.MaxNM)
	}
	if strings.TrimSpace(c.GetForwardChannel()) == "" {
		return fmt.Errorf("forward_channel must not be empty")
	}
	switch c.GetSignal() {
	case "forward", "side":
	default:
		return fmt.Errorf("signal must be \"forward\" or \"side\", got %q", c.GetSignal())
	}
	switch c.GetRefineMode() {
	case "interpolate", "exact":
	default:
		return fmt.Errorf("refine_mode must be \"interpolate\" or \"exact\", got %q", c.GetRefineMode())
	}
	switch calibration.FitType(c.GetFitType()) {
	case calibration.FitPowerLaw, calibration.FitPolynomial:
	default:
		return fmt.Errorf("fit_type must be %q or %q, got %q", calibration.FitPowerLaw, calibration.FitPolynomial, c.GetFitType())
	}
	if c.GetFitDegree() < 1 {
		return fmt.Errorf("fit_degree must be at least 1, got %d", c.GetFitDegree())
	}
	if r := c.GetMinRSquared(); r <= 0 || r > 1 {
		return fmt.Errorf("min_r_squared must be in (0, 1], got %f", r)
	}
	if c.GetKDEPoints() < 16 {
		return fmt.Errorf("kde_points must be at least 16, got %d", c.GetKDEPoints())
	}
	if p := c.GetMinPeakProminence(); p < 0 || p >= 1 {
		return fmt.Errorf("min_peak_prominence must be in [0, 1), got %f", p)
	}
	if c.GetBandwidthNM() < 0 {
		return fmt.Errorf("bandwidth_nm must be non-negative, got %f", c.GetBandwidthNM())
	}
	if c.DetectorCorrectionFactor != nil {
		if _, err := c.DetectorCorrection(); err != nil {
			return err
		}
	}
	if c.GetWorkers() < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.GetWorkers())
	}
	return nil
}

// GetWavelengthNM returns the primary laser wavelength or the default.
func (c *SizingConfig) GetWavelengthNM() float64 {
	if c.WavelengthNM == nil {
		return 488
	}
	return *c.WavelengthNM
}

// GetSecondWavelengthNM returns the ratio channel wavelength or the default.
func (c *SizingConfig) GetSecondWavelengthNM() float64 {
	if c.SecondWavelengthNM == nil {
		return 405
	}
	return *c.SecondWavelengthNM
}

// GetParticleIndexReal returns the sample particle index or the default.
func (c *SizingConfig) GetParticleIndexReal() float64 {
	if c.ParticleIndexReal == nil {
		return 1.40
	}
	return *c.ParticleIndexReal
}

// GetParticleIndexImag returns the absorption index or the default.
func (c *SizingConfig) GetParticleIndexImag() float64 {
	if c.ParticleIndexImag == nil {
		return 0
	}
	return *c.ParticleIndexImag
}

// GetBeadIndexReal returns the reference bead index or the default
// (polystyrene).
func (c *SizingConfig) GetBeadIndexReal() float64 {
	if c.BeadIndexReal == nil {
		return 1.59
	}
	return *c.BeadIndexReal
}

// GetMediumIndex returns the medium index or the default.
func (c *SizingConfig) GetMediumIndex() float64 {
	if c.MediumIndex == nil {
		return 1.33
	}
	return *c.MediumIndex
}

// GetForwardChannel returns the forward scatter channel name or the default.
func (c *SizingConfig) GetForwardChannel() string {
	if c.ForwardChannel == nil {
		return "FSC-A"
	}
	return *c.ForwardChannel
}

// GetSideChannel returns the side scatter channel name or the default.
func (c *SizingConfig) GetSideChannel() string {
	if c.SideChannel == nil {
		return "SSC-A"
	}
	return *c.SideChannel
}

// GetRatioChannel returns the second-wavelength channel name. The default
// is empty, meaning no ratio channel.
func (c *SizingConfig) GetRatioChannel() string {
	if c.RatioChannel == nil {
		return ""
	}
	return *c.RatioChannel
}

func (c *SizingConfig) GetGridMinNM() float64 {
	if c.GridMinNM == nil {
		return 30
	}
	return *c.GridMinNM
}

func (c *SizingConfig) GetGridMaxNM() float64 {
	if c.GridMaxNM == nil {
		return 1000
	}
	return *c.GridMaxNM
}

func (c *SizingConfig) GetGridStepNM() float64 {
	if c.GridStepNM == nil {
		return 1
	}
	return *c.GridStepNM
}

// GetSignal returns the proxy inverted by the solver.
func (c *SizingConfig) GetSignal() string {
	if c.Signal == nil {
		return "forward"
	}
	return *c.Signal
}

// GetRefineMode returns the bracket refinement mode or the default.
func (c *SizingConfig) GetRefineMode() string {
	if c.RefineMode == nil {
		return "interpolate"
	}
	return *c.RefineMode
}

func (c *SizingConfig) GetFitType() string {
	if c.FitType == nil {
		return string(calibration.FitPowerLaw)
	}
	return *c.FitType
}

func (c *SizingConfig) GetFitDegree() int {
	if c.FitDegree == nil {
		return 2
	}
	return *c.FitDegree
}

func (c *SizingConfig) GetMinRSquared() float64 {
	if c.MinRSquared == nil {
		return calibration.DefaultMinRSquared
	}
	return *c.MinRSquared
}

func (c *SizingConfig) GetKDEPoints() int {
	if c.KDEPoints == nil {
		return sizing.DefaultKDEPoints
	}
	return *c.KDEPoints
}

func (c *SizingConfig) GetMinPeakProminence() float64 {
	if c.MinPeakProminence == nil {
		return sizing.DefaultMinProminence
	}
	return *c.MinPeakProminence
}

// GetBandwidthNM returns a fixed KDE bandwidth. Zero selects Silverman's rule.
func (c *SizingConfig) GetBandwidthNM() float64 {
	if c.BandwidthNM == nil {
		return 0
	}
	return *c.BandwidthNM
}

// GetWorkers returns the batch worker count. Zero means one per CPU.
func (c *SizingConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetDatabasePath returns the SQLite path. Empty disables persistence.
func (c *SizingConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return ""
	}
	return *c.DatabasePath
}

// HasDisambiguation reports whether both a ratio channel and a detector
// correction are configured.
func (c *SizingConfig) HasDisambiguation() bool {
	return c.GetRatioChannel() != "" && c.DetectorCorrectionFactor != nil
}

func (c *SizingConfig) geometry() mie.Geometry {
	g := mie.DefaultGeometry()
	if c.ForwardConeDeg != nil {
		g.ForwardMinDeg, g.ForwardMaxDeg = c.ForwardConeDeg[0], c.ForwardConeDeg[1]
	}
	if c.SideConeDeg != nil {
		g.SideMinDeg, g.SideMaxDeg = c.SideConeDeg[0], c.SideConeDeg[1]
	}
	return g
}

func (c *SizingConfig) optics(wavelength, index float64) mie.Optics {
	return mie.Optics{
		WavelengthNM:  wavelength,
		ParticleIndex: complex(index, c.GetParticleIndexImag()),
		MediumIndex:   c.GetMediumIndex(),
		Geometry:      c.geometry(),
	}
}

// Optics returns the sample optics at the primary wavelength.
func (c *SizingConfig) Optics() mie.Optics {
	return c.optics(c.GetWavelengthNM(), c.GetParticleIndexReal())
}

// SecondOptics returns the sample optics at the ratio channel wavelength.
func (c *SizingConfig) SecondOptics() mie.Optics {
	return c.optics(c.GetSecondWavelengthNM(), c.GetParticleIndexReal())
}

// BeadOptics returns the reference bead optics at the primary wavelength.
// Beads are taken as non-absorbing.
func (c *SizingConfig) BeadOptics() mie.Optics {
	o := c.optics(c.GetWavelengthNM(), c.GetBeadIndexReal())
	o.ParticleIndex = complex(c.GetBeadIndexReal(), 0)
	return o
}

// Grid returns the inversion lookup grid.
func (c *SizingConfig) Grid() mie.Grid {
	return mie.Grid{MinNM: c.GetGridMinNM(), MaxNM: c.GetGridMaxNM(), StepNM: c.GetGridStepNM()}
}

// Bounds returns the inversion search bounds. Unset bounds leave the
// full grid.
func (c *SizingConfig) Bounds() inverse.Bounds {
	var b inverse.Bounds
	if c.BoundsMinNM != nil {
		b.MinNM = *c.BoundsMinNM
	}
	if c.BoundsMaxNM != nil {
		b.MaxNM = *c.BoundsMaxNM
	}
	return b
}

// SolverSignal returns the proxy the solver inverts.
func (c *SizingConfig) SolverSignal() mie.Signal {
	if c.GetSignal() == "side" {
		return mie.SignalSide
	}
	return mie.SignalForward
}

// Refine returns the solver refinement mode.
func (c *SizingConfig) Refine() inverse.Refine {
	if c.GetRefineMode() == "exact" {
		return inverse.RefineExact
	}
	return inverse.RefineInterpolate
}

// ChannelRoles returns the configured channel mapping.
func (c *SizingConfig) ChannelRoles() fcs.ChannelRoles {
	return fcs.ChannelRoles{
		Forward: c.GetForwardChannel(),
		Side:    c.GetSideChannel(),
		Ratio:   c.GetRatioChannel(),
	}
}

// FitOptions returns calibration fit options recording the bead optics.
func (c *SizingConfig) FitOptions() calibration.Options {
	return calibration.Options{
		Type:        calibration.FitType(c.GetFitType()),
		Degree:      c.GetFitDegree(),
		MinRSquared: c.GetMinRSquared(),
		Optics:      c.BeadOptics(),
		Channel:     c.GetForwardChannel(),
	}
}

// StatsOptions returns the distribution statistics options.
func (c *SizingConfig) StatsOptions() sizing.StatsOptions {
	return sizing.StatsOptions{
		KDEPoints:     c.GetKDEPoints(),
		MinProminence: c.GetMinPeakProminence(),
		BandwidthNM:   c.GetBandwidthNM(),
	}
}

// DetectorCorrection returns the validated detector correction. It fails
// when no factor is configured.
func (c *SizingConfig) DetectorCorrection() (dualwave.DetectorCorrection, error) {
	if c.DetectorCorrectionFactor == nil {
		return dualwave.DetectorCorrection{}, fmt.Errorf("detector_correction_factor is not configured")
	}
	dc := dualwave.DetectorCorrection{Factor: *c.DetectorCorrectionFactor}
	if c.DetectorCorrectionSource != nil {
		dc.Source = *c.DetectorCorrectionSource
	}
	if err := dc.Validate(); err != nil {
		return dc, err
	}
	return dc, nil
}
