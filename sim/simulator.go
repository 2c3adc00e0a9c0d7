// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gridsim/gridsim/sim/trace"
)

const tracerName = "github.com/gridsim/gridsim/sim"

// DefaultMaxIterations bounds fixpoint passes per cyclic rank, and updates per
// object, within one timestep.
const DefaultMaxIterations = 50

// ErrNotInitialized is returned by DoNextUpdate before Initialize.
var ErrNotInitialized = errors.New("simulator not initialized")

// State is the lifecycle state of a Simulator.
type State int

const (
	Uninitialized State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the run parameters of a Simulator. Start from DefaultConfig:
// a zero Config ends the run at time 0.
type Config struct {
	Start         Time // NegInf when unset
	End           Time // PosInf when unset
	MaxIterations int
	Trace         trace.TraceConfig
	Metrics       *Metrics         // optional
	Tracer        oteltrace.Tracer // optional; defaults to the global provider's tracer
}

// DefaultConfig returns an unbounded run with default iteration limits and no tracing.
func DefaultConfig() Config {
	return Config{
		Start:         NegInf,
		End:           PosInf,
		MaxIterations: DefaultMaxIterations,
		Trace:         trace.TraceConfig{Level: trace.TraceLevelNone},
	}
}

// Simulator owns the shared clock, the object registry, and the scheduling loop.
// It is the explicit per-run context handed to scenario builders.
type Simulator struct {
	registry      *Registry
	clock         Time
	start         Time
	end           Time
	maxIterations int
	state         State
	stepCount     int
	runID         uuid.UUID

	willStartNewTimestep *Event
	didCompleteTimestep  *Event

	// contingent updates requested between timesteps, by registry index
	pending map[int]bool
	// non-nil while a timestep is in progress
	step *stepState

	trace   *trace.SimulationTrace
	metrics *Metrics
	tracer  oteltrace.Tracer
}

// stepState is the bookkeeping of one DoNextUpdate call.
type stepState struct {
	t          Time
	queue      *updateHeap
	contingent map[int]bool
	counts     map[int]int

	// rank currently being settled by fixpoint iteration, -1 otherwise
	groupRank int
	requested map[int]bool

	record trace.TimestepRecord
}

// NewSimulator creates a simulator with an empty registry.
func NewSimulator(cfg Config) *Simulator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	s := &Simulator{
		registry:             NewRegistry(),
		start:                cfg.Start,
		end:                  cfg.End,
		clock:                cfg.Start,
		maxIterations:        cfg.MaxIterations,
		runID:                uuid.New(),
		willStartNewTimestep: NewEvent("simulation: will start new timestep"),
		didCompleteTimestep:  NewEvent("simulation: did complete timestep"),
		pending:              make(map[int]bool),
		trace:                trace.NewSimulationTrace(cfg.Trace),
		metrics:              cfg.Metrics,
		tracer:               tracer,
	}
	return s
}

// RegisterObject adds obj to the simulation. Objects can only be registered
// before Initialize.
func (s *Simulator) RegisterObject(obj Object) error {
	if s.state != Uninitialized {
		return fmt.Errorf("registering %s: simulation is %s", obj.ID(), s.state)
	}
	if err := s.registry.Register(obj); err != nil {
		return err
	}
	obj.component().NeedsUpdate().AddAction(func() { s.flagContingent(obj) }, "simulator: contingent update")
	return nil
}

// ObjectByID looks up a registered object.
func (s *Simulator) ObjectByID(id string) (Object, bool) {
	return s.registry.ObjectByID(id)
}

// Objects returns all registered objects in registration order.
func (s *Simulator) Objects() []Object {
	return s.registry.Objects()
}

// Registry exposes the dependency registry.
func (s *Simulator) Registry() *Registry {
	return s.registry
}

// Validate ranks all objects from their declared dependencies. It must be
// called after the object graph is built and before Initialize.
func (s *Simulator) Validate() error {
	return s.registry.Validate()
}

// Initialize resets every object in rank order and sets the clock to the
// start time.
func (s *Simulator) Initialize() error {
	if s.registry.Dirty() {
		return ErrNotValidated
	}
	for _, obj := range s.registry.Ranked() {
		initialize(obj)
	}
	s.clock = s.start
	s.stepCount = 0
	clear(s.pending)
	s.state = Running
	logrus.Infof("[t %s] initialized %d objects in %d ranks (run %s)",
		s.clock, s.registry.Len(), s.registry.NumRanks(), s.runID)
	return nil
}

// Run calls DoNextUpdate until the simulation finishes, an error occurs, or
// ctx is done. Cancellation is checked between timesteps only.
func (s *Simulator) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Run", oteltrace.WithAttributes(
		attribute.String("gridsim.run_id", s.runID.String()),
		attribute.Int("gridsim.objects", s.registry.Len()),
	))
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("[t %s] run stopped: %v", s.clock, err)
			return err
		}
		more, err := s.doNextUpdate(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if !more {
			span.SetAttributes(attribute.Int("gridsim.timesteps", s.stepCount))
			return nil
		}
	}
}

// DoNextUpdate advances the simulation by one timestep. It returns false once
// no object needs updating before the end time.
func (s *Simulator) DoNextUpdate() (bool, error) {
	return s.doNextUpdate(context.Background())
}

func (s *Simulator) doNextUpdate(ctx context.Context) (bool, error) {
	switch s.state {
	case Uninitialized:
		return false, ErrNotInitialized
	case Finished:
		return false, nil
	}

	if s.registry.Dirty() {
		logrus.Infof("[t %s] dependency set changed, re-ranking objects", s.clock)
		if err := s.registry.Validate(); err != nil {
			return false, err
		}
	}

	tNext := s.nextTime()
	if tNext == PosInf || tNext > s.end {
		s.state = Finished
		if len(s.pending) > 0 {
			logrus.Warnf("[t %s] finished with unserved update requests from %s",
				s.clock, strings.Join(s.pendingIDs(), ", "))
		}
		logrus.Infof("[t %s] simulation finished after %d timesteps", s.clock, s.stepCount)
		return false, nil
	}

	_, span := s.tracer.Start(ctx, "DoNextUpdate", oteltrace.WithAttributes(
		attribute.Int64("gridsim.time", int64(tNext)),
		attribute.Int("gridsim.step", s.stepCount+1),
	))
	defer span.End()
	wallStart := time.Now()

	s.willStartNewTimestep.Trigger()

	st := &stepState{
		t:          tNext,
		queue:      newUpdateHeap(),
		contingent: make(map[int]bool),
		counts:     make(map[int]int),
		groupRank:  -1,
		record:     trace.TimestepRecord{Step: s.stepCount + 1, Clock: int64(tNext)},
	}
	s.step = st
	defer func() { s.step = nil }()

	for _, obj := range s.registry.objects {
		if s.dueTime(obj) <= tNext {
			st.queue.Schedule(obj)
		}
	}
	for idx := range s.pending {
		st.contingent[idx] = true
		st.queue.Schedule(s.registry.objects[idx])
	}
	clear(s.pending)

	for st.queue.Len() > 0 {
		group := st.queue.PopRank()
		rank := group[0].component().rank
		var err error
		if s.registry.Cyclic(rank) {
			err = s.settle(rank, group)
		} else {
			for _, obj := range group {
				if err = s.updateOne(obj, 1); err != nil {
					break
				}
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, err
		}
	}

	if tNext < s.clock {
		panic(fmt.Sprintf("Clock went backwards: %s < %s", tNext, s.clock))
	}
	s.clock = tNext
	s.stepCount++
	s.didCompleteTimestep.Trigger()

	s.trace.RecordTimestep(st.record)
	s.metrics.observeTimestep(tNext, time.Since(wallStart))
	span.SetAttributes(attribute.Int("gridsim.updates", len(st.record.Updates)))
	logrus.Infof("[t %s] timestep %d complete: %d updates", s.clock, s.stepCount, len(st.record.Updates))
	return true, nil
}

// dueTime is when obj next needs an update. Objects never updated are due at
// the start time when one is configured. Objects whose state expires at or
// before their own time have nothing left to do.
func (s *Simulator) dueTime(obj Object) Time {
	c := obj.component()
	if c.time == NegInf {
		if s.start != NegInf {
			return s.start
		}
		if v := obj.ValidUntil(); v != NegInf {
			return v
		}
		return PosInf
	}
	v := obj.ValidUntil()
	if v <= c.time {
		return PosInf
	}
	return v
}

func (s *Simulator) nextTime() Time {
	next := PosInf
	for _, obj := range s.registry.objects {
		if due := s.dueTime(obj); due < next {
			next = due
		}
	}
	return next
}

// updateOne updates obj to the current step's time after checking that none
// of its dependencies outside its own rank is stale.
func (s *Simulator) updateOne(obj Object, pass int) error {
	st := s.step
	c := obj.component()

	st.counts[c.index]++
	if st.counts[c.index] > s.maxIterations {
		s.metrics.incConvergenceFailures()
		return fmt.Errorf("%s updated more than %d times at %s: %w", c.id, s.maxIterations, st.t, ErrConvergenceFailure)
	}
	if err := s.checkCausality(obj, st.t); err != nil {
		return err
	}

	contingent := st.contingent[c.index]
	delete(st.contingent, c.index)
	if err := update(obj, st.t); err != nil {
		return err
	}
	st.record.Updates = append(st.record.Updates, trace.UpdateRecord{
		ObjectID:   c.id,
		Rank:       c.rank,
		Pass:       pass,
		Contingent: contingent,
	})
	s.metrics.observeUpdate(contingent)
	return nil
}

func (s *Simulator) checkCausality(obj Object, t Time) error {
	c := obj.component()
	for _, i := range c.deps {
		dep := s.registry.objects[i]
		dc := dep.component()
		if dc.rank == c.rank {
			continue
		}
		if dc.time < t && s.dueTime(dep) <= t {
			return fmt.Errorf("%s (rank %d) at %s reads %s (rank %d) at %s: %w",
				c.id, c.rank, t, dc.id, dc.rank, dc.time, ErrCausalityViolation)
		}
	}
	return nil
}

// settle sweeps a cyclic rank in index order until it stops changing. Each
// pass updates the members that are due, that requested an update, or that
// depend on a member changed earlier in the sweep or in the previous pass.
func (s *Simulator) settle(rank int, due []Object) error {
	st := s.step
	members := s.registry.Group(rank)
	dependents := make(map[int][]int, len(members))
	for _, m := range members {
		mc := m.component()
		for _, d := range mc.deps {
			dependents[d] = append(dependents[d], mc.index)
		}
	}

	st.groupRank = rank
	st.requested = make(map[int]bool, len(members))
	defer func() {
		st.groupRank = -1
		st.requested = nil
	}()
	for _, obj := range due {
		st.requested[obj.component().index] = true
	}

	passes := 0
	for pass := 1; len(st.requested) > 0; pass++ {
		if pass > s.maxIterations {
			s.metrics.incConvergenceFailures()
			return fmt.Errorf("rank %d {%s} unsettled after %d passes at %s: %w",
				rank, strings.Join(objectIDs(members), ", "), s.maxIterations, st.t, ErrConvergenceFailure)
		}
		for _, m := range members {
			idx := m.component().index
			if !st.requested[idx] {
				continue
			}
			delete(st.requested, idx)
			if err := s.updateOne(m, pass); err != nil {
				return err
			}
			if stateChanged(m, pass) {
				for _, d := range dependents[idx] {
					st.requested[d] = true
				}
			}
		}
		passes = pass
	}

	logrus.Debugf("[t %s] rank %d settled after %d passes", st.t, rank, passes)
	s.metrics.observePasses(passes)
	if passes > st.record.Passes {
		st.record.Passes = passes
	}
	return nil
}

// stateChanged consults ChangeReporter; other objects count as changed on
// the first pass only.
func stateChanged(obj Object, pass int) bool {
	if cr, ok := obj.(ChangeReporter); ok {
		return cr.StateChanged()
	}
	return pass == 1
}

// flagContingent handles an object's NeedsUpdate event.
func (s *Simulator) flagContingent(obj Object) {
	c := obj.component()
	st := s.step
	if st == nil {
		s.pending[c.index] = true
		return
	}
	st.contingent[c.index] = true
	if st.groupRank >= 0 && c.rank == st.groupRank {
		st.requested[c.index] = true
		return
	}
	st.queue.Schedule(obj)
}

// pendingIDs lists objects whose between-step requests are still queued,
// ascending by index.
func (s *Simulator) pendingIDs() []string {
	idx := make([]int, 0, len(s.pending))
	for k := range s.pending {
		idx = append(idx, k)
	}
	slices.Sort(idx)
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = s.registry.objects[j].ID()
	}
	return out
}

func objectIDs(objs []Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID()
	}
	return out
}

// WillStartNewTimestep is triggered once per timestep, before any object updates.
func (s *Simulator) WillStartNewTimestep() *Event { return s.willStartNewTimestep }

// DidCompleteTimestep is triggered once per timestep, after the clock advances.
func (s *Simulator) DidCompleteTimestep() *Event { return s.didCompleteTimestep }

// CurrentTime returns the shared clock.
func (s *Simulator) CurrentTime() Time { return s.clock }

// StartTime returns the configured start time, NegInf if unset.
func (s *Simulator) StartTime() Time { return s.start }

// SetStartTime sets the start time used by the next Initialize.
func (s *Simulator) SetStartTime(t Time) { s.start = t }

// EndTime returns the configured end time, PosInf if unset.
func (s *Simulator) EndTime() Time { return s.end }

// SetEndTime sets the end time.
func (s *Simulator) SetEndTime(t Time) { s.end = t }

// State returns the lifecycle state.
func (s *Simulator) State() State { return s.state }

// StepCount returns the number of completed timesteps.
func (s *Simulator) StepCount() int { return s.stepCount }

// RunID identifies this simulator instance in logs and traces.
func (s *Simulator) RunID() uuid.UUID { return s.runID }

// Trace returns the timestep trace.
func (s *Simulator) Trace() *trace.SimulationTrace { return s.trace }

// Summary reports the run so far.
func (s *Simulator) Summary(wall time.Duration) RunSummary {
	return RunSummary{
		RunID:      s.runID.String(),
		Objects:    s.registry.Len(),
		Ranks:      s.registry.NumRanks(),
		Timesteps:  s.stepCount,
		StartTime:  s.start,
		EndTime:    s.end,
		FinalClock: s.clock,
		WallTime:   wall,
	}
}
