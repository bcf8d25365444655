package navlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/navfusion/internal/navigation"
)

// Sample is one recorded navigation state.
type Sample struct {
	Time          time.Time
	VelocityCycle uint64
	PositionCycle uint64

	Accel     [3]float64
	AccelBias [3]float64
	Velocity  [3]float64

	VelocityMeasurement [navigation.VelocityChannelCount]float64
	VelocityEnabled     [navigation.VelocityChannelCount]bool

	Position            [3]float64
	PositionMeasurement [3]float64
	PositionEnabled     [navigation.PositionChannelCount]bool
}

// SampleFromSnapshot flattens a navigation snapshot. The sample time is the
// later of the two task times.
func SampleFromSnapshot(s navigation.Snapshot) Sample {
	t := s.Velocity.Time
	if s.Position.Time.After(t) {
		t = s.Position.Time
	}
	return Sample{
		Time:                t,
		VelocityCycle:       s.Velocity.Cycle,
		PositionCycle:       s.Position.Cycle,
		Accel:               s.Velocity.Accel.Array(),
		AccelBias:           s.Velocity.AccelBias.Array(),
		Velocity:            s.Velocity.Velocity.Array(),
		VelocityMeasurement: s.Velocity.Measurement,
		VelocityEnabled:     s.Velocity.Enabled,
		Position:            s.Position.Position.Array(),
		PositionMeasurement: s.Position.Measurement.Array(),
		PositionEnabled:     s.Position.Enabled,
	}
}

var sampleColumns = []string{
	"run_id", "t_unix_nanos", "vel_cycle", "pos_cycle",
	"accel_x", "accel_y", "accel_z",
	"bias_x", "bias_y", "bias_z",
	"vel_x", "vel_y", "vel_z",
	"vm_flow_x", "vm_flow_y", "vm_baro_z", "vm_reserved3", "vm_range_z", "vm_reserved5",
	"vel_enabled_mask",
	"pos_x", "pos_y", "pos_z",
	"pm_x", "pm_y", "pm_z",
	"pos_enabled_mask",
}

var insertSampleSQL = fmt.Sprintf("INSERT INTO nav_samples (%s) VALUES (%s)",
	strings.Join(sampleColumns, ", "),
	strings.TrimSuffix(strings.Repeat("?, ", len(sampleColumns)), ", "))

func (s Sample) args(runID string) []any {
	args := make([]any, 0, len(sampleColumns))
	args = append(args, runID, s.Time.UnixNano(), int64(s.VelocityCycle), int64(s.PositionCycle))
	for _, v := range [][]float64{s.Accel[:], s.AccelBias[:], s.Velocity[:], s.VelocityMeasurement[:]} {
		for _, x := range v {
			args = append(args, x)
		}
	}
	args = append(args, mask(s.VelocityEnabled[:]))
	for _, v := range [][]float64{s.Position[:], s.PositionMeasurement[:]} {
		for _, x := range v {
			args = append(args, x)
		}
	}
	return append(args, mask(s.PositionEnabled[:]))
}

// InsertSamples writes samples for a run in one transaction.
func (db *DB) InsertSamples(runID string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(s.args(runID)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

// Samples returns the samples of a run in time order.
func (db *DB) Samples(runID string) ([]Sample, error) {
	cols := strings.Join(sampleColumns[1:], ", ")
	return db.querySamples(fmt.Sprintf("SELECT %s FROM nav_samples WHERE run_id = ? ORDER BY t_unix_nanos, vel_cycle", cols), runID)
}

// RecentSamples returns at most limit of the newest samples of a run, in
// time order.
func (db *DB) RecentSamples(runID string, limit int) ([]Sample, error) {
	cols := strings.Join(sampleColumns[1:], ", ")
	q := fmt.Sprintf(`SELECT %[1]s FROM (
		SELECT %[1]s FROM nav_samples WHERE run_id = ? ORDER BY t_unix_nanos DESC, vel_cycle DESC LIMIT ?
	) ORDER BY t_unix_nanos, vel_cycle`, cols)
	return db.querySamples(q, runID, limit)
}

func (db *DB) querySamples(query string, args ...any) ([]Sample, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s                Sample
			nanos            int64
			velCycle         int64
			posCycle         int64
			velMask, posMask int64
		)
		dest := []any{&nanos, &velCycle, &posCycle}
		for _, v := range [][]float64{s.Accel[:], s.AccelBias[:], s.Velocity[:], s.VelocityMeasurement[:]} {
			for i := range v {
				dest = append(dest, &v[i])
			}
		}
		dest = append(dest, &velMask)
		for _, v := range [][]float64{s.Position[:], s.PositionMeasurement[:]} {
			for i := range v {
				dest = append(dest, &v[i])
			}
		}
		dest = append(dest, &posMask)

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.Time = time.Unix(0, nanos).UTC()
		s.VelocityCycle = uint64(velCycle)
		s.PositionCycle = uint64(posCycle)
		unmask(velMask, s.VelocityEnabled[:])
		unmask(posMask, s.PositionEnabled[:])
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSamples returns how many samples a run has.
func (db *DB) CountSamples(runID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM nav_samples WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func mask(flags []bool) int64 {
	var m int64
	for i, on := range flags {
		if on {
			m |= 1 << i
		}
	}
	return m
}

func unmask(m int64, flags []bool) {
	for i := range flags {
		flags[i] = m&(1<<i) != 0
	}
}
