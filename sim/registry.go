package sim

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim/weakorder"
)

// Registry is the arena of scheduled objects for one simulation. Objects are
// addressed by a stable index; dependencies are stored as indices.
type Registry struct {
	objects []Object
	byID    map[string]int

	// groups[r] lists the indices of rank r, ascending.
	groups [][]int
	dirty  bool
	epoch  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]int),
		dirty: true,
	}
}

// Register adds obj to the arena.
func (r *Registry) Register(obj Object) error {
	if obj == nil {
		return fmt.Errorf("object cannot be nil")
	}
	c := obj.component()
	if c == nil {
		return fmt.Errorf("object has no embedded component")
	}
	if c.reg != nil {
		return fmt.Errorf("object %s: %w", c.id, ErrAlreadyRegistered)
	}
	if c.id == "" {
		return fmt.Errorf("object id cannot be empty")
	}
	if _, exists := r.byID[c.id]; exists {
		return fmt.Errorf("object %s: %w", c.id, ErrDuplicateID)
	}

	c.reg = r
	c.index = len(r.objects)
	r.byID[c.id] = c.index
	r.objects = append(r.objects, obj)
	r.dirty = true
	return nil
}

// ObjectByID looks up a registered object.
func (r *Registry) ObjectByID(id string) (Object, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.objects[i], true
}

// Objects returns all objects in registration order.
func (r *Registry) Objects() []Object {
	out := make([]Object, len(r.objects))
	copy(out, r.objects)
	return out
}

// Len returns the number of registered objects.
func (r *Registry) Len() int { return len(r.objects) }

// Dirty reports whether dependencies changed since the last Validate.
func (r *Registry) Dirty() bool { return r.dirty }

// Epoch counts successful validations.
func (r *Registry) Epoch() int { return r.epoch }

// Validate ranks every object. Each dependency becomes a weak-order edge
// dependency → dependent; objects on a dependency cycle share a rank.
func (r *Registry) Validate() error {
	g := weakorder.New(len(r.objects))
	for i, obj := range r.objects {
		for _, dep := range obj.component().deps {
			if err := g.Link(dep, i); err != nil {
				return fmt.Errorf("linking %s: %w", obj.ID(), err)
			}
		}
	}
	g.ComputeOrder()

	r.groups = g.Groups()
	for rank, members := range r.groups {
		for _, i := range members {
			r.objects[i].component().rank = rank
		}
		if len(members) > 1 {
			logrus.Warnf("dependency cycle at rank %d: %s", rank, strings.Join(r.ids(members), ", "))
		}
	}
	r.dirty = false
	r.epoch++
	logrus.Debugf("validated %d objects into %d ranks (epoch %d)", len(r.objects), len(r.groups), r.epoch)
	return nil
}

// Ranked returns all objects sorted by rank, ties broken by index.
func (r *Registry) Ranked() []Object {
	out := r.Objects()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].component().rank < out[j].component().rank
	})
	return out
}

// Group returns the members of rank, ascending by index.
func (r *Registry) Group(rank int) []Object {
	if rank < 0 || rank >= len(r.groups) {
		return nil
	}
	out := make([]Object, 0, len(r.groups[rank]))
	for _, i := range r.groups[rank] {
		out = append(out, r.objects[i])
	}
	return out
}

// Cyclic reports whether rank holds more than one mutually dependent object.
func (r *Registry) Cyclic(rank int) bool {
	return rank >= 0 && rank < len(r.groups) && len(r.groups[rank]) > 1
}

// NumRanks returns the number of ranks after the last Validate.
func (r *Registry) NumRanks() int { return len(r.groups) }

func (r *Registry) ids(indices []int) []string {
	out := make([]string, len(indices))
	for k, i := range indices {
		out[k] = r.objects[i].ID()
	}
	return out
}
