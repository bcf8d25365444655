package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical navigation tuning file.
const DefaultConfigPath = "config/navigation.defaults.json"

// Height sources accepted by adapter.height_source.
const (
	HeightSourceBaro  = "baro"
	HeightSourceRange = "range"
)

// Channel counts fixed by the estimator layouts.
const (
	VelocityChannels = 6
	PositionChannels = 3
	VelocityStates   = 6
	PositionStates   = 3
)

// NavTuning is the root navigation configuration. Every field is optional;
// the Get* methods fall back to the reference tuning for anything omitted,
// so partial files are safe.
type NavTuning struct {
	Velocity *EstimatorTuning `json:"velocity,omitempty"`
	Position *EstimatorTuning `json:"position,omitempty"`
	Adapter  *AdapterTuning   `json:"adapter,omitempty"`

	// Ranging sensor validity window, metres.
	RangeMinM *float64 `json:"range_min_m,omitempty"`
	RangeMaxM *float64 `json:"range_max_m,omitempty"`

	// Initial state of the runtime ranging gate. The ranging channel is
	// only fused while this is on and the sample lies in the range window.
	RangingEnabled *bool `json:"ranging_enabled,omitempty"`

	// Optical flow samples below this quality are reported invalid.
	FlowMinQuality *float64 `json:"flow_min_quality,omitempty"`

	// Scheduler periods for the two periodic tasks, duration strings like "1ms".
	VelocityTaskPeriod *string `json:"velocity_task_period,omitempty"`
	PositionTaskPeriod *string `json:"position_task_period,omitempty"`

	// Navigation log sampling interval.
	RecordInterval *string `json:"record_interval,omitempty"`

	// How long the velocity estimator may run on prediction alone before the
	// health service reports NOT_SERVING.
	DeadReckoningTimeout *string `json:"dead_reckoning_timeout,omitempty"`
}

// EstimatorTuning holds the filter matrices and scheduling parameters of one
// estimator. Matrices are row-major nested arrays.
type EstimatorTuning struct {
	Q     [][]float64 `json:"q,omitempty"`      // process noise, added per prediction step
	R     [][]float64 `json:"r,omitempty"`      // measurement noise, one row per channel
	P0    [][]float64 `json:"p0,omitempty"`     // initial covariance
	F     [][]float64 `json:"f,omitempty"`      // state transition
	FRate [][]float64 `json:"f_rate,omitempty"` // transition terms scaled by elapsed seconds
	H     [][]float64 `json:"h,omitempty"`      // observation
	B     [][]float64 `json:"b,omitempty"`      // control

	Delays          []int  `json:"delays,omitempty"` // per channel, in scheduler cycles
	HistoryDepth    *int   `json:"history_depth,omitempty"`
	DecimationRatio *int   `json:"decimation_ratio,omitempty"`
	ChannelsEnabled []bool `json:"channels_enabled,omitempty"`

	MinDt *string `json:"min_dt,omitempty"`
	MaxDt *string `json:"max_dt,omitempty"`
}

// AdapterTuning holds the frame and unit conversion factors.
type AdapterTuning struct {
	HorizontalAccelScale *float64 `json:"horizontal_accel_scale,omitempty"`
	VerticalAccelScale   *float64 `json:"vertical_accel_scale,omitempty"`
	FlowVelocityScale    *float64 `json:"flow_velocity_scale,omitempty"`
	RangeVelocityScale   *float64 `json:"range_velocity_scale,omitempty"`
	HeightSource         *string  `json:"height_source,omitempty"`
}

// EstimatorSettings is an EstimatorTuning with every default resolved.
type EstimatorSettings struct {
	Q, R, P0, F, FRate, H, B [][]float64

	Delays          []int
	HistoryDepth    int
	DecimationRatio int
	ChannelsEnabled []bool
	MinDt, MaxDt    time.Duration
}

// AdapterSettings is an AdapterTuning with every default resolved.
type AdapterSettings struct {
	HorizontalAccelScale float64
	VerticalAccelScale   float64
	FlowVelocityScale    float64
	RangeVelocityScale   float64
	HeightSource         string
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNavTuning returns a NavTuning with all fields set to nil, which
// resolves to the reference tuning.
func EmptyNavTuning() *NavTuning {
	return &NavTuning{}
}

// LoadNavTuning loads a NavTuning from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadNavTuning(path string) (*NavTuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNavTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning file from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup and binaries
// started without -config.
func MustLoadDefaultConfig() *NavTuning {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/navfusion/
	}
	for _, path := range candidates {
		if cfg, err := LoadNavTuning(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that the configuration values are usable.
func (c *NavTuning) Validate() error {
	if err := validateEstimator("velocity", c.Velocity, c.GetVelocity(), VelocityStates, VelocityChannels); err != nil {
		return err
	}
	if err := validateEstimator("position", c.Position, c.GetPosition(), PositionStates, PositionChannels); err != nil {
		return err
	}

	for name, v := range map[string]*string{
		"velocity_task_period":   c.VelocityTaskPeriod,
		"position_task_period":   c.PositionTaskPeriod,
		"record_interval":        c.RecordInterval,
		"dead_reckoning_timeout": c.DeadReckoningTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.GetRangeMinM() < 0 || c.GetRangeMaxM() <= c.GetRangeMinM() {
		return fmt.Errorf("range window must satisfy 0 <= range_min_m < range_max_m, got [%g, %g]",
			c.GetRangeMinM(), c.GetRangeMaxM())
	}

	a := c.GetAdapter()
	for name, v := range map[string]float64{
		"horizontal_accel_scale": a.HorizontalAccelScale,
		"vertical_accel_scale":   a.VerticalAccelScale,
		"flow_velocity_scale":    a.FlowVelocityScale,
		"range_velocity_scale":   a.RangeVelocityScale,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("adapter %s must be finite, got %f", name, v)
		}
	}
	if a.HeightSource != HeightSourceBaro && a.HeightSource != HeightSourceRange {
		return fmt.Errorf("adapter height_source must be %q or %q, got %q", HeightSourceBaro, HeightSourceRange, a.HeightSource)
	}

	return nil
}

func validateEstimator(name string, raw *EstimatorTuning, s EstimatorSettings, states, channels int) error {
	if raw != nil {
		for field, v := range map[string]*string{"min_dt": raw.MinDt, "max_dt": raw.MaxDt} {
			if v == nil || *v == "" {
				continue
			}
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s.%s '%s': %w", name, field, *v, err)
			}
		}
	}
	square := map[string][][]float64{"q": s.Q, "p0": s.P0, "f": s.F, "f_rate": s.FRate, "b": s.B}
	for m, rows := range square {
		if err := checkShape(rows, states, states); err != nil {
			return fmt.Errorf("%s.%s: %w", name, m, err)
		}
	}
	if err := checkShape(s.R, channels, channels); err != nil {
		return fmt.Errorf("%s.r: %w", name, err)
	}
	if err := checkShape(s.H, channels, states); err != nil {
		return fmt.Errorf("%s.h: %w", name, err)
	}
	if len(s.Delays) != channels {
		return fmt.Errorf("%s.delays must have %d entries, got %d", name, channels, len(s.Delays))
	}
	if len(s.ChannelsEnabled) != channels {
		return fmt.Errorf("%s.channels_enabled must have %d entries, got %d", name, channels, len(s.ChannelsEnabled))
	}
	if s.HistoryDepth < 1 {
		return fmt.Errorf("%s.history_depth must be positive, got %d", name, s.HistoryDepth)
	}
	for i, d := range s.Delays {
		if d < 0 || d >= s.HistoryDepth {
			return fmt.Errorf("%s.delays[%d] = %d must be in [0, history_depth=%d)", name, i, d, s.HistoryDepth)
		}
	}
	if s.DecimationRatio < 1 {
		return fmt.Errorf("%s.decimation_ratio must be at least 1, got %d", name, s.DecimationRatio)
	}
	if s.MinDt <= 0 || s.MaxDt < s.MinDt {
		return fmt.Errorf("%s dt bounds must satisfy 0 < min_dt <= max_dt, got [%s, %s]", name, s.MinDt, s.MaxDt)
	}
	return nil
}

func checkShape(rows [][]float64, r, c int) error {
	if len(rows) != r {
		return fmt.Errorf("expected %d rows, got %d", r, len(rows))
	}
	for i, row := range rows {
		if len(row) != c {
			return fmt.Errorf("row %d: expected %d columns, got %d", i, c, len(row))
		}
	}
	return nil
}

// GetVelocity returns the velocity estimator settings, filling gaps from the
// reference tuning.
func (c *NavTuning) GetVelocity() EstimatorSettings {
	return c.Velocity.resolve(defaultVelocityTuning())
}

// GetPosition returns the position estimator settings, filling gaps from the
// reference tuning.
func (c *NavTuning) GetPosition() EstimatorSettings {
	return c.Position.resolve(defaultPositionTuning())
}

// GetAdapter returns the adapter settings or the defaults.
func (c *NavTuning) GetAdapter() AdapterSettings {
	s := AdapterSettings{
		HorizontalAccelScale: 1.5,
		VerticalAccelScale:   1e-3,
		FlowVelocityScale:    10,
		RangeVelocityScale:   1,
		HeightSource:         HeightSourceBaro,
	}
	a := c.Adapter
	if a == nil {
		return s
	}
	if a.HorizontalAccelScale != nil {
		s.HorizontalAccelScale = *a.HorizontalAccelScale
	}
	if a.VerticalAccelScale != nil {
		s.VerticalAccelScale = *a.VerticalAccelScale
	}
	if a.FlowVelocityScale != nil {
		s.FlowVelocityScale = *a.FlowVelocityScale
	}
	if a.RangeVelocityScale != nil {
		s.RangeVelocityScale = *a.RangeVelocityScale
	}
	if a.HeightSource != nil && *a.HeightSource != "" {
		s.HeightSource = *a.HeightSource
	}
	return s
}

// GetRangeMinM returns the range_min_m value or the default.
func (c *NavTuning) GetRangeMinM() float64 {
	if c.RangeMinM == nil {
		return 0.05
	}
	return *c.RangeMinM
}

// GetRangeMaxM returns the range_max_m value or the default.
func (c *NavTuning) GetRangeMaxM() float64 {
	if c.RangeMaxM == nil {
		return 4.0
	}
	return *c.RangeMaxM
}

// GetRangingEnabled returns the ranging_enabled value or the default false.
func (c *NavTuning) GetRangingEnabled() bool {
	if c.RangingEnabled == nil {
		return false
	}
	return *c.RangingEnabled
}

// GetFlowMinQuality returns the flow_min_quality value or the default.
func (c *NavTuning) GetFlowMinQuality() float64 {
	if c.FlowMinQuality == nil {
		return 0
	}
	return *c.FlowMinQuality
}

// GetVelocityTaskPeriod returns the velocity task period or the default 1ms.
func (c *NavTuning) GetVelocityTaskPeriod() time.Duration {
	return parseDurationOr(c.VelocityTaskPeriod, time.Millisecond)
}

// GetPositionTaskPeriod returns the position task period or the default 1ms.
func (c *NavTuning) GetPositionTaskPeriod() time.Duration {
	return parseDurationOr(c.PositionTaskPeriod, time.Millisecond)
}

// GetRecordInterval returns the record_interval value or the default 100ms.
func (c *NavTuning) GetRecordInterval() time.Duration {
	return parseDurationOr(c.RecordInterval, 100*time.Millisecond)
}

// GetDeadReckoningTimeout returns the dead_reckoning_timeout value or the default 2s.
func (c *NavTuning) GetDeadReckoningTimeout() time.Duration {
	return parseDurationOr(c.DeadReckoningTimeout, 2*time.Second)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func (e *EstimatorTuning) resolve(def EstimatorTuning) EstimatorSettings {
	if e == nil {
		e = &EstimatorTuning{}
	}
	pick := func(v, d [][]float64) [][]float64 {
		if len(v) > 0 {
			return cloneMatrix(v)
		}
		return cloneMatrix(d)
	}
	s := EstimatorSettings{
		Q:     pick(e.Q, def.Q),
		R:     pick(e.R, def.R),
		P0:    pick(e.P0, def.P0),
		F:     pick(e.F, def.F),
		FRate: pick(e.FRate, def.FRate),
		H:     pick(e.H, def.H),
		B:     pick(e.B, def.B),
	}

	s.Delays = append([]int(nil), def.Delays...)
	if len(e.Delays) > 0 {
		s.Delays = append([]int(nil), e.Delays...)
	}
	s.ChannelsEnabled = append([]bool(nil), def.ChannelsEnabled...)
	if len(e.ChannelsEnabled) > 0 {
		s.ChannelsEnabled = append([]bool(nil), e.ChannelsEnabled...)
	}

	s.HistoryDepth = *def.HistoryDepth
	if e.HistoryDepth != nil {
		s.HistoryDepth = *e.HistoryDepth
	}
	s.DecimationRatio = *def.DecimationRatio
	if e.DecimationRatio != nil {
		s.DecimationRatio = *e.DecimationRatio
	}

	s.MinDt = parseDurationOr(e.MinDt, parseDurationOr(def.MinDt, 0))
	s.MaxDt = parseDurationOr(e.MaxDt, parseDurationOr(def.MaxDt, 0))
	return s
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func diag(v ...float64) [][]float64 {
	m := identity(len(v))
	for i, x := range v {
		m[i][i] = x
	}
	return m
}

// defaultVelocityTuning is the reference tuning of the six-state velocity
// filter: velocity x/y/z followed by accelerometer bias x/y/z.
func defaultVelocityTuning() EstimatorTuning {
	return EstimatorTuning{
		Q: [][]float64{
			{0.1, 0, 0, 0.03, 0, 0},
			{0, 0.1, 0, 0, 0.03, 0},
			{0, 0, 0.05, 0, 0, 0.03},
			{0.03, 0, 0, 0.02, 0, 0},
			{0, 0.03, 0, 0, 0.02, 0},
			{0, 0, 0.03, 0, 0, 0.02},
		},
		// flow x, flow y, baro vz, reserved, ranging vz, reserved
		R: diag(200, 200, 200, 2500, 2000, 500000),
		P0: [][]float64{
			{20, 0, 0, 2, 0, 0},
			{0, 20, 0, 0, 2, 0},
			{0, 0, 5, 0, 0, 3},
			{2, 0, 0, 2, 0, 0},
			{0, 2, 0, 0, 2, 0},
			{0, 0, 3, 0, 0, 2},
		},
		F: identity(6),
		// velocity integrates the negated bias
		FRate: [][]float64{
			{0, 0, 0, -1, 0, 0},
			{0, 0, 0, 0, -1, 0},
			{0, 0, 0, 0, 0, -1},
			{0, 0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 0},
		},
		H: [][]float64{
			{1, 0, 0, 0, 0, 0},
			{0, 1, 0, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
		},
		B:               diag(1, 1, 1, 0, 0, 0),
		Delays:          []int{50, 50, 50, 50, 30, 0},
		HistoryDepth:    ptrInt(250),
		DecimationRatio: ptrInt(40),
		ChannelsEnabled: []bool{true, true, true, false, true, false},
		MinDt:           ptrString("500us"),
		MaxDt:           ptrString("5ms"),
	}
}

// defaultPositionTuning is the reference tuning of the three-state position
// filter driven by integrated velocity.
func defaultPositionTuning() EstimatorTuning {
	return EstimatorTuning{
		Q:               diag(0.5, 0.5, 0.5),
		R:               diag(20, 20, 50),
		P0:              diag(10, 10, 10),
		F:               identity(3),
		FRate:           diag(0, 0, 0),
		H:               identity(3),
		B:               identity(3),
		Delays:          []int{20, 20, 100},
		HistoryDepth:    ptrInt(200),
		DecimationRatio: ptrInt(40),
		ChannelsEnabled: []bool{true, true, true},
		MinDt:           ptrString("500us"),
		MaxDt:           ptrString("2ms"),
	}
}
