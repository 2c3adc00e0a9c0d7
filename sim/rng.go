package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same key and scenario produce identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// PartitionedRNG hands out one deterministic random stream per object, so
// adding or reordering objects does not perturb the others' draws.
//
// Derivation: masterSeed XOR fnv1a64(objectID).
//
// Not safe for concurrent use; the scheduler is single-threaded.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[string]*rand.Rand),
	}
}

// ForObject returns the stream for the object with the given id. The same id
// always returns the same *rand.Rand. Never returns nil.
func (p *PartitionedRNG) ForObject(id string) *rand.Rand {
	if rng, ok := p.streams[id]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(id)))
	p.streams[id] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
