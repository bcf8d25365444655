package sensors

import (
	"sync/atomic"
)

// Store keeps the latest sample of every stream. Transports write with the
// Put methods and estimator tasks read through the Source methods; both
// sides are lock-free.
type Store struct {
	imu   atomic.Pointer[IMUSample]
	flow  atomic.Pointer[FlowSample]
	baro  atomic.Pointer[BaroSample]
	rng   atomic.Pointer[RangeSample]
	lines atomic.Uint64

	minFlowQuality float64
}

var _ Source = (*Store)(nil)

// NewStore returns an empty Store. Flow samples with a quality below
// minFlowQuality are stored as invalid.
func NewStore(minFlowQuality float64) *Store {
	return &Store{minFlowQuality: minFlowQuality}
}

// PutIMU replaces the latest inertial sample.
func (s *Store) PutIMU(v IMUSample) { s.imu.Store(&v) }

// PutFlow replaces the latest optical-flow sample.
func (s *Store) PutFlow(v FlowSample) {
	if v.Quality < s.minFlowQuality {
		v.Valid = false
	}
	s.flow.Store(&v)
}

// PutBaro replaces the latest barometric sample.
func (s *Store) PutBaro(v BaroSample) { s.baro.Store(&v) }

// PutRange replaces the latest ranging sample.
func (s *Store) PutRange(v RangeSample) { s.rng.Store(&v) }

// Put stores whichever sample the reading carries.
func (s *Store) Put(r Reading) {
	switch r.Kind {
	case KindIMU:
		s.PutIMU(r.IMU)
	case KindFlow:
		s.PutFlow(r.Flow)
	case KindBaro:
		s.PutBaro(r.Baro)
	case KindRange:
		s.PutRange(r.Range)
	}
	s.lines.Add(1)
}

// HandleLine parses one telemetry line and stores its sample.
func (s *Store) HandleLine(line string) error {
	r, err := ParseLine(line)
	if err != nil {
		return err
	}
	s.Put(r)
	return nil
}

// Received returns how many readings have been stored.
func (s *Store) Received() uint64 { return s.lines.Load() }

// IMU returns the latest inertial sample, or the zero sample before the
// first one arrives.
func (s *Store) IMU() IMUSample {
	if v := s.imu.Load(); v != nil {
		return *v
	}
	return IMUSample{}
}

// Flow returns the latest optical-flow sample. The zero sample is invalid.
func (s *Store) Flow() FlowSample {
	if v := s.flow.Load(); v != nil {
		return *v
	}
	return FlowSample{}
}

// Baro returns the latest barometric sample. The zero sample is invalid.
func (s *Store) Baro() BaroSample {
	if v := s.baro.Load(); v != nil {
		return *v
	}
	return BaroSample{}
}

// Range returns the latest ranging sample. The zero sample is invalid.
func (s *Store) Range() RangeSample {
	if v := s.rng.Load(); v != nil {
		return *v
	}
	return RangeSample{}
}
