package components

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsim/gridsim/sim"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func newSim(start, end sim.Time) *sim.Simulator {
	cfg := sim.DefaultConfig()
	cfg.Start, cfg.End = start, end
	cfg.Trace.Level = "timesteps"
	return sim.NewSimulator(cfg)
}

func TestTicker_UpdatesEveryDt(t *testing.T) {
	s := newSim(0, 25)
	tk, err := NewTicker("tick", 10)
	require.NoError(t, err)
	fired := 0
	tk.Ticked().AddAction(func() { fired++ }, "count")
	require.NoError(t, s.RegisterObject(tk))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 3, tk.Ticks(), "ticks at 0, 10, 20")
	assert.Equal(t, 3, fired)
	assert.Equal(t, sim.Time(20), s.CurrentTime())
	assert.Equal(t, sim.Time(10), tk.Dt())
}

func TestNewTicker_RejectsNonPositiveDt(t *testing.T) {
	_, err := NewTicker("bad", 0)
	assert.Error(t, err)
}

func TestTimeSeries_PiecewiseConstant(t *testing.T) {
	ts, err := NewTimeSeries("profile", []Point{{At: 10, Value: 2}, {At: 0, Value: 1}, {At: 30, Value: 3}})
	require.NoError(t, err)

	tests := []struct {
		at   sim.Time
		want float64
	}{
		{-5, 1},
		{0, 1},
		{9, 1},
		{10, 2},
		{29, 2},
		{30, 3},
		{1000, 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ts.At(tc.at), "at %s", tc.at)
	}
	assert.Equal(t, []Point{{0, 1}, {10, 2}, {30, 3}}, ts.Points())
}

func TestTimeSeries_ValidUntilNextBreakpoint(t *testing.T) {
	// GIVEN a series with a repeated value
	s := newSim(0, 100)
	ts, err := NewTimeSeries("profile", []Point{{At: 0, Value: 1}, {At: 10, Value: 1}, {At: 20, Value: 4}})
	require.NoError(t, err)
	changes := 0
	ts.ValueChanged().AddAction(func() { changes++ }, "count")
	require.NoError(t, s.RegisterObject(ts))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())

	// WHEN run to completion
	require.NoError(t, s.Run(context.Background()))

	// THEN every breakpoint is a timestep but only real moves fire ValueChanged
	assert.Equal(t, 3, s.StepCount())
	assert.Equal(t, 2, changes)
	assert.Equal(t, 4.0, ts.Value())
	assert.Equal(t, sim.PosInf, ts.ValidUntil())
}

func TestNewTimeSeries_Errors(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
	}{
		{"empty", nil},
		{"duplicate time", []Point{{At: 1, Value: 1}, {At: 1, Value: 2}}},
		{"infinite time", []Point{{At: sim.PosInf, Value: 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTimeSeries("ts", tc.points)
			assert.Error(t, err)
		})
	}
}

// buildFeeder wires profile -> load <-> controller via bus.
func buildFeeder(t *testing.T, s *sim.Simulator) (*TimeSeries, *Load, *Bus, *Controller) {
	t.Helper()
	profile, err := NewTimeSeries("profile", []Point{{At: 0, Value: 1.0}, {At: 10, Value: 1.5}})
	require.NoError(t, err)
	load, err := NewLoad("load", LoadParams{BasePower: 2})
	require.NoError(t, err)
	bus, err := NewBus("bus", BusParams{Droop: 0.05})
	require.NoError(t, err)
	ctl, err := NewController("ctl", ControllerParams{VMin: 0.95, Gain: 8})
	require.NoError(t, err)

	for _, o := range []sim.Object{profile, load, bus, ctl} {
		require.NoError(t, s.RegisterObject(o))
	}
	require.NoError(t, load.AttachProfile(profile))
	require.NoError(t, load.AttachController(ctl))
	require.NoError(t, bus.AttachLoad(load))
	require.NoError(t, ctl.AttachBus(bus))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())
	return profile, load, bus, ctl
}

func TestFeeder_ControllerLoopConverges(t *testing.T) {
	s := newSim(0, 100)
	_, load, bus, ctl := buildFeeder(t, s)

	// the control loop forms one cyclic rank after the profile
	assert.Equal(t, load.Rank(), bus.Rank())
	assert.Equal(t, bus.Rank(), ctl.Rank())
	assert.True(t, s.Registry().Cyclic(load.Rank()))

	more, err := s.DoNextUpdate()
	require.NoError(t, err)
	require.True(t, more)

	// GIVEN 2 kW unconstrained would sag the bus to 0.90 pu
	// THEN the controller sheds half the load to hold 0.95 pu
	assert.InDelta(t, 0.5, ctl.Curtailment(), 1e-4)
	assert.InDelta(t, 1.0, load.Power(), 1e-4)
	assert.InDelta(t, 0.95, bus.Voltage(), 1e-5)
	passes := s.Trace().Timesteps[0].Passes
	assert.Greater(t, passes, 1)
	assert.LessOrEqual(t, passes, 20)

	// WHEN the profile steps up to 1.5
	more, err = s.DoNextUpdate()
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, sim.Time(10), s.CurrentTime())

	// THEN curtailment rises to keep the same 1 kW
	assert.InDelta(t, 2.0/3.0, ctl.Curtailment(), 1e-4)
	assert.InDelta(t, 1.0, load.Power(), 1e-4)

	more, err = s.DoNextUpdate()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestFeeder_NoCurtailmentAboveVMin(t *testing.T) {
	s := newSim(0, 100)
	load, err := NewLoad("load", LoadParams{BasePower: 0.5})
	require.NoError(t, err)
	bus, err := NewBus("bus", BusParams{Droop: 0.05})
	require.NoError(t, err)
	ctl, err := NewController("ctl", ControllerParams{VMin: 0.95, Gain: 8})
	require.NoError(t, err)
	for _, o := range []sim.Object{load, bus, ctl} {
		require.NoError(t, s.RegisterObject(o))
	}
	require.NoError(t, load.AttachController(ctl))
	require.NoError(t, bus.AttachLoad(load))
	require.NoError(t, ctl.AttachBus(bus))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())

	require.NoError(t, s.Run(context.Background()))

	assert.Zero(t, ctl.Curtailment())
	assert.InDelta(t, 0.975, bus.Voltage(), 1e-9)
	assert.Equal(t, 1, s.Trace().Timesteps[0].Passes)
}

func TestController_SaturatesAtMax(t *testing.T) {
	s := newSim(0, 100)
	load, err := NewLoad("load", LoadParams{BasePower: 10})
	require.NoError(t, err)
	bus, err := NewBus("bus", BusParams{Droop: 0.05})
	require.NoError(t, err)
	ctl, err := NewController("ctl", ControllerParams{VMin: 0.95, Gain: 1, MaxCurtailment: 0.2})
	require.NoError(t, err)
	for _, o := range []sim.Object{load, bus, ctl} {
		require.NoError(t, s.RegisterObject(o))
	}
	require.NoError(t, load.AttachController(ctl))
	require.NoError(t, bus.AttachLoad(load))
	require.NoError(t, ctl.AttachBus(bus))
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 0.2, ctl.Curtailment())
	assert.InDelta(t, 8.0, load.Power(), 1e-9)
	assert.InDelta(t, 0.6, bus.Voltage(), 1e-9)
}

func TestLoad_NoiseIsSeededPerObject(t *testing.T) {
	run := func() []float64 {
		s := newSim(0, 30)
		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(42))
		tk, err := NewTicker("tick", 10)
		require.NoError(t, err)
		load, err := NewLoad("load", LoadParams{BasePower: 1, Noise: 0.1})
		require.NoError(t, err)
		load.SetRand(rng.ForObject(load.ID()))
		require.NoError(t, s.RegisterObject(tk))
		require.NoError(t, s.RegisterObject(load))
		tk.Ticked().AddAction(load.RequestUpdate, "resample")
		require.NoError(t, load.DependsOn(tk))
		require.NoError(t, s.Validate())
		require.NoError(t, s.Initialize())

		var powers []float64
		load.DidUpdate().AddAction(func() { powers = append(powers, load.Power()) }, "record")
		require.NoError(t, s.Run(context.Background()))
		return powers
	}

	first := run()
	require.Len(t, first, 4)
	assert.Equal(t, first, run())
	for _, p := range first {
		assert.InDelta(t, 1.0, p, 0.1)
	}
	assert.NotEqual(t, first[0], first[1])
}

func TestNewLoad_Errors(t *testing.T) {
	_, err := NewLoad("l", LoadParams{BasePower: 1, Noise: 1})
	assert.Error(t, err)
	_, err = NewLoad("l", LoadParams{BasePower: 1, Tolerance: -1})
	assert.Error(t, err)
}

func TestNewController_Errors(t *testing.T) {
	_, err := NewController("c", ControllerParams{VMin: 0.95})
	assert.Error(t, err, "zero gain")
	_, err = NewController("c", ControllerParams{VMin: 0.95, Gain: 1, MaxCurtailment: 1.5})
	assert.Error(t, err)
}

func TestNewBus_Errors(t *testing.T) {
	_, err := NewBus("b", BusParams{Droop: -1})
	assert.Error(t, err)
}

func TestAttach_RequiresRegistration(t *testing.T) {
	load, err := NewLoad("load", LoadParams{BasePower: 1})
	require.NoError(t, err)
	bus, err := NewBus("bus", BusParams{Droop: 0.1})
	require.NoError(t, err)
	assert.ErrorIs(t, bus.AttachLoad(load), sim.ErrUnregistered)
}
