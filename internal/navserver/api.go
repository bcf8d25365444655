package navserver

import (
	"encoding/json"
	"net/http"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/navfusion/internal/httputil"
	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/units"
)

// Navigator is the part of *navigation.Navigator the API drives.
type Navigator interface {
	HealthReporter
	State() *navigation.State
	Reset()
	SetRangingEnabled(on bool)
	RangingEnabled() bool
}

// API serves navigation state over HTTP.
type API struct {
	nav Navigator
}

// NewAPI returns an API for nav.
func NewAPI(nav Navigator) *API {
	return &API{nav: nav}
}

// ServeMux returns a mux holding every API route.
func (a *API) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	a.AttachRoutes(mux)
	return mux
}

// AttachRoutes mounts the API on mux.
func (a *API) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/nav/state", a.showState)
	mux.HandleFunc("/api/nav/health", a.showHealth)
	mux.HandleFunc("/api/nav/reset", a.reset)
	mux.HandleFunc("/api/nav/ranging", a.ranging)
}

// VelocityState is the velocity half of StateResponse.
type VelocityState struct {
	Cycle       uint64                                   `json:"cycle"`
	Time        time.Time                                `json:"time"`
	DtMicros    int64                                    `json:"dt_us"`
	Fused       bool                                     `json:"fused"`
	Accel       [3]float64                               `json:"accel"`
	AccelBias   [3]float64                               `json:"accel_bias"`
	Velocity    [3]float64                               `json:"velocity"`
	Measurement [navigation.VelocityChannelCount]float64 `json:"measurement"`
	Enabled     [navigation.VelocityChannelCount]bool    `json:"enabled"`
}

// PositionState is the position half of StateResponse.
type PositionState struct {
	Cycle       uint64                                `json:"cycle"`
	Time        time.Time                             `json:"time"`
	DtMicros    int64                                 `json:"dt_us"`
	Fused       bool                                  `json:"fused"`
	Position    [3]float64                            `json:"position"`
	Measurement [3]float64                            `json:"measurement"`
	Enabled     [navigation.PositionChannelCount]bool `json:"enabled"`
}

// StateResponse is the body of GET /api/nav/state. Velocities and
// positions are in the requested units; accelerations stay in m/s².
type StateResponse struct {
	SpeedUnits    string        `json:"speed_units"`
	DistanceUnits string        `json:"distance_units"`
	Ranging       bool          `json:"ranging_enabled"`
	Velocity      VelocityState `json:"velocity"`
	Position      PositionState `json:"position"`
}

// NewStateResponse converts snap to the requested units. Velocity channel
// measurements are speeds and position channel measurements are distances.
func NewStateResponse(snap navigation.Snapshot, speedUnit, distanceUnit string, ranging bool) StateResponse {
	v, p := snap.Velocity, snap.Position
	resp := StateResponse{
		SpeedUnits:    speedUnit,
		DistanceUnits: distanceUnit,
		Ranging:       ranging,
		Velocity: VelocityState{
			Cycle:     v.Cycle,
			Time:      v.Time,
			DtMicros:  v.Dt.Microseconds(),
			Fused:     v.Fused,
			Accel:     v.Accel.Array(),
			AccelBias: v.AccelBias.Array(),
			Velocity:  units.ConvertSpeeds(v.Velocity.Array(), speedUnit),
			Enabled:   v.Enabled,
		},
		Position: PositionState{
			Cycle:       p.Cycle,
			Time:        p.Time,
			DtMicros:    p.Dt.Microseconds(),
			Fused:       p.Fused,
			Position:    units.ConvertDistances(p.Position.Array(), distanceUnit),
			Measurement: units.ConvertDistances(p.Measurement.Array(), distanceUnit),
			Enabled:     p.Enabled,
		},
	}
	for i, m := range v.Measurement {
		resp.Velocity.Measurement[i] = units.ConvertSpeed(m, speedUnit)
	}
	return resp
}

func (a *API) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	speed, err := units.ParseSpeed(r.URL.Query().Get("speed_units"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	distance, err := units.ParseDistance(r.URL.Query().Get("distance_units"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, NewStateResponse(a.nav.State().Snapshot(), speed, distance, a.nav.RangingEnabled()))
}

// HealthResponse is the body of GET /api/nav/health.
type HealthResponse struct {
	Status          string     `json:"status"`
	Ready           bool       `json:"ready"`
	DeadReckoning   bool       `json:"dead_reckoning"`
	VelocityFusions uint64     `json:"velocity_fusions"`
	PositionFusions uint64     `json:"position_fusions"`
	LastAided       *time.Time `json:"last_aided,omitempty"`
}

func (a *API) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	h := a.nav.Health()
	resp := HealthResponse{
		Status:          HealthStatus(h).String(),
		Ready:           h.Ready,
		DeadReckoning:   h.DeadReckoning,
		VelocityFusions: h.VelocityFusions,
		PositionFusions: h.PositionFusions,
	}
	if !h.LastAided.IsZero() {
		resp.LastAided = &h.LastAided
	}
	status := http.StatusOK
	if HealthStatus(h) != healthpb.HealthCheckResponse_SERVING {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	a.nav.Reset()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reset requested"})
}

type rangingBody struct {
	Enabled *bool `json:"enabled"`
}

func (a *API) ranging(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body rangingBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
			httputil.BadRequest(w, `expected {"enabled": true|false}`)
			return
		}
		a.nav.SetRangingEnabled(*body.Enabled)
	default:
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"enabled": a.nav.RangingEnabled()})
}
