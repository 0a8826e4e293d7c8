package stats

import (
	"fmt"
	"math/rand"

	"github.com/wbrown/janus-reasoner/datalog"
)

// SyntheticConfig describes a generated statistics set for benchmarks
type SyntheticConfig struct {
	Relations int   // Number of relations, named :r0, :r1, ...
	MaxArity  int   // Relation i has arity 1 + i%MaxArity
	MinCount  int   // Smallest fact count
	MaxCount  int   // Largest fact count
	Seed      int64 // Generation is deterministic per seed
}

// DefaultSyntheticConfig returns a small configuration
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Relations: 10, MaxArity: 2, MinCount: 100, MaxCount: 10000, Seed: 1}
}

// MediumSyntheticConfig returns a medium configuration
func MediumSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Relations: 100, MaxArity: 3, MinCount: 1000, MaxCount: 1000000, Seed: 1}
}

// LargeSyntheticConfig returns a large configuration
func LargeSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Relations: 1000, MaxArity: 4, MinCount: 1000, MaxCount: 100000000, Seed: 1}
}

// Synthetic generates a table from cfg. Distinct counts never exceed the
// relation's fact count.
func Synthetic(cfg SyntheticConfig) (*Table, error) {
	if cfg.Relations < 0 || cfg.MaxArity < 1 || cfg.MinCount < 1 || cfg.MaxCount < cfg.MinCount {
		return nil, fmt.Errorf("invalid synthetic config %+v", cfg)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	t := NewTable()
	for i := 0; i < cfg.Relations; i++ {
		count := cfg.MinCount + rng.Intn(cfg.MaxCount-cfg.MinCount+1)
		distinct := make([]float64, 1+i%cfg.MaxArity)
		for pos := range distinct {
			distinct[pos] = float64(1 + rng.Intn(count))
		}
		t.Put(Relation{
			Name:     datalog.NewKeyword(fmt.Sprintf(":r%d", i)),
			Count:    float64(count),
			Distinct: distinct,
		})
	}
	return t, nil
}
