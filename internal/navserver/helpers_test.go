package navserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navfusion/internal/navigation"
	"github.com/banshee-data/navfusion/internal/sensors"
	"github.com/banshee-data/navfusion/internal/testutil"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testNav struct {
	*navigation.Navigator
	clock *timeutil.MockClock
	store *sensors.Store
}

func newTestNav(t *testing.T) *testNav {
	t.Helper()
	testutil.QuietLogs(t)

	store := sensors.NewStore(0)
	store.PutIMU(sensors.IMUSample{Time: testEpoch})
	store.PutFlow(sensors.FlowSample{Time: testEpoch, VelX: 0.1, VelY: -0.2, PosX: 1, PosY: 2, Quality: 200, Valid: true})
	store.PutBaro(sensors.BaroSample{Time: testEpoch, Height: 3, VerticalVelocity: 0.25, Valid: true})

	clock := timeutil.NewMockClock(testEpoch)
	nav, err := navigation.New(navigation.DefaultConfig(), store, clock)
	require.NoError(t, err)
	return &testNav{Navigator: nav, clock: clock, store: store}
}

// cycle advances the clock one millisecond and runs both tasks.
func (n *testNav) cycle() {
	n.clock.Advance(time.Millisecond)
	n.VelocityTask()
	n.PositionTask()
}
