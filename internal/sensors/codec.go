package sensors

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind names a telemetry stream.
type Kind string

const (
	KindIMU   Kind = "IMU"
	KindFlow  Kind = "FLOW"
	KindBaro  Kind = "BARO"
	KindRange Kind = "RANGE"
)

// ErrMalformedLine is wrapped by every ParseLine failure.
var ErrMalformedLine = errors.New("malformed telemetry line")

// Reading is one decoded telemetry line. Only the sample matching Kind is
// populated.
type Reading struct {
	Kind  Kind
	IMU   IMUSample
	Flow  FlowSample
	Baro  BaroSample
	Range RangeSample
}

// Time returns the timestamp of the populated sample.
func (r Reading) Time() time.Time {
	switch r.Kind {
	case KindIMU:
		return r.IMU.Time
	case KindFlow:
		return r.Flow.Time
	case KindBaro:
		return r.Baro.Time
	case KindRange:
		return r.Range.Time
	}
	return time.Time{}
}

// field counts after the kind token, including the timestamp
var csvFields = map[Kind]int{
	KindIMU:   7, // t,hx,hy,hz,wx,wy,wz
	KindFlow:  6, // t,vx,vy,px,py,q[,valid]
	KindBaro:  3, // t,h,vz[,valid]
	KindRange: 3, // t,d,vz[,valid]
}

// ParseLine decodes a telemetry line. Two encodings are accepted:
//
//	KIND,t,values...                     comma separated, t in seconds
//	{"type":"flow","t":1.5,"vx":0.1,...} JSON object with a type key
//
// FLOW, BARO and RANGE lines take an optional trailing validity flag (0 or 1);
// without it the sample is valid.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{}, fmt.Errorf("%w: empty line", ErrMalformedLine)
	}
	if strings.HasPrefix(line, "{") {
		return parseJSON(line)
	}
	return parseCSV(line)
}

func parseCSV(line string) (Reading, error) {
	parts := strings.Split(line, ",")
	kind := Kind(strings.ToUpper(strings.TrimSpace(parts[0])))
	want, ok := csvFields[kind]
	if !ok {
		return Reading{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedLine, parts[0])
	}

	fields := parts[1:]
	optional := kind != KindIMU
	if len(fields) != want && !(optional && len(fields) == want+1) {
		return Reading{}, fmt.Errorf("%w: %s wants %d fields, got %d", ErrMalformedLine, kind, want, len(fields))
	}

	v := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %s field %d: %v", ErrMalformedLine, kind, i, err)
		}
		v[i] = x
	}

	t := SecondsToTime(v[0])
	valid := len(v) == want || v[want] != 0

	r := Reading{Kind: kind}
	switch kind {
	case KindIMU:
		r.IMU = IMUSample{
			Time:            t,
			HorizontalAccel: [3]float64{v[1], v[2], v[3]},
			WorldAccel:      [3]float64{v[4], v[5], v[6]},
		}
	case KindFlow:
		r.Flow = FlowSample{Time: t, VelX: v[1], VelY: v[2], PosX: v[3], PosY: v[4], Quality: v[5], Valid: valid}
	case KindBaro:
		r.Baro = BaroSample{Time: t, Height: v[1], VerticalVelocity: v[2], Valid: valid}
	case KindRange:
		r.Range = RangeSample{Time: t, Distance: v[1], VerticalVelocity: v[2], Valid: valid}
	}
	return r, nil
}

type jsonLine struct {
	Type  string     `json:"type"`
	T     float64    `json:"t"`
	H     [3]float64 `json:"h"`
	W     [3]float64 `json:"w"`
	VX    float64    `json:"vx"`
	VY    float64    `json:"vy"`
	VZ    float64    `json:"vz"`
	PX    float64    `json:"px"`
	PY    float64    `json:"py"`
	Q     float64    `json:"q"`
	Hgt   float64    `json:"height"`
	D     float64    `json:"d"`
	Valid *bool      `json:"valid"`
}

func parseJSON(line string) (Reading, error) {
	var j jsonLine
	if err := json.Unmarshal([]byte(line), &j); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	t := SecondsToTime(j.T)
	valid := j.Valid == nil || *j.Valid

	r := Reading{Kind: Kind(strings.ToUpper(j.Type))}
	switch r.Kind {
	case KindIMU:
		r.IMU = IMUSample{Time: t, HorizontalAccel: j.H, WorldAccel: j.W}
	case KindFlow:
		r.Flow = FlowSample{Time: t, VelX: j.VX, VelY: j.VY, PosX: j.PX, PosY: j.PY, Quality: j.Q, Valid: valid}
	case KindBaro:
		r.Baro = BaroSample{Time: t, Height: j.Hgt, VerticalVelocity: j.VZ, Valid: valid}
	case KindRange:
		r.Range = RangeSample{Time: t, Distance: j.D, VerticalVelocity: j.VZ, Valid: valid}
	default:
		return Reading{}, fmt.Errorf("%w: unknown type %q", ErrMalformedLine, j.Type)
	}
	return r, nil
}

// FormatLine encodes a reading in the comma separated form ParseLine
// accepts.
func FormatLine(r Reading) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}

	fields := []string{string(r.Kind), FormatSeconds(r.Time())}
	switch r.Kind {
	case KindIMU:
		for _, v := range r.IMU.HorizontalAccel {
			fields = append(fields, f(v))
		}
		for _, v := range r.IMU.WorldAccel {
			fields = append(fields, f(v))
		}
	case KindFlow:
		fl := r.Flow
		fields = append(fields, f(fl.VelX), f(fl.VelY), f(fl.PosX), f(fl.PosY), f(fl.Quality), b(fl.Valid))
	case KindBaro:
		fields = append(fields, f(r.Baro.Height), f(r.Baro.VerticalVelocity), b(r.Baro.Valid))
	case KindRange:
		fields = append(fields, f(r.Range.Distance), f(r.Range.VerticalVelocity), b(r.Range.Valid))
	}
	return strings.Join(fields, ",")
}

// SecondsToTime converts a telemetry timestamp in seconds since the Unix
// epoch to a UTC time, rounded to the microsecond.
func SecondsToTime(s float64) time.Time {
	return time.UnixMicro(int64(math.Round(s * 1e6))).UTC()
}

// FormatSeconds writes t as seconds since the Unix epoch with microsecond
// resolution. The zero time is written as 0.
func FormatSeconds(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	us := t.Round(time.Microsecond).UnixMicro()
	sign := ""
	if us < 0 {
		sign, us = "-", -us
	}
	return fmt.Sprintf("%s%d.%06d", sign, us/1e6, us%1e6)
}
