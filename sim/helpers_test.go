package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// periodic is a test object that needs an update every period ticks and
// appends "<id>@<t>" to a shared log on each update.
type periodic struct {
	*Component
	period   Time
	log      *[]string
	onUpdate func(t Time) error
}

func newPeriodic(id string, period Time, log *[]string) *periodic {
	return &periodic{Component: NewComponent(id), period: period, log: log}
}

func (p *periodic) ValidUntil() Time {
	return p.Time().Add(p.period)
}

func (p *periodic) UpdateState(t Time) error {
	if p.onUpdate != nil {
		if err := p.onUpdate(t); err != nil {
			return err
		}
	}
	if p.log != nil {
		*p.log = append(*p.log, fmt.Sprintf("%s@%d", p.ID(), t))
	}
	return nil
}

// relay is a cycle member whose value is computed from another object's
// value. It reports whether its last update changed the value.
type relay struct {
	*Component
	value   int
	changed bool
	compute func() int
}

func newRelay(id string) *relay {
	return &relay{Component: NewComponent(id)}
}

func (r *relay) ValidUntil() Time { return PosInf }

func (r *relay) InitializeState() {
	r.value = 0
	r.changed = false
}

func (r *relay) UpdateState(Time) error {
	v := r.compute()
	r.changed = v != r.value
	r.value = v
	return nil
}

func (r *relay) StateChanged() bool { return r.changed }

func newTestSimulator(start, end Time) *Simulator {
	cfg := DefaultConfig()
	cfg.Start = start
	cfg.End = end
	cfg.Trace.Level = "updates"
	return NewSimulator(cfg)
}

func mustRegister(t *testing.T, s *Simulator, objs ...Object) {
	t.Helper()
	for _, o := range objs {
		require.NoError(t, s.RegisterObject(o))
	}
}

func mustStart(t *testing.T, s *Simulator) {
	t.Helper()
	require.NoError(t, s.Validate())
	require.NoError(t, s.Initialize())
}
