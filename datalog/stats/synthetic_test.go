package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	a, err := Synthetic(cfg)
	require.NoError(t, err)
	b, err := Synthetic(cfg)
	require.NoError(t, err)

	rels := a.Relations()
	require.Len(t, rels, cfg.Relations)
	assert.Equal(t, rels, b.Relations(), "same seed, same statistics")

	for _, r := range rels {
		assert.GreaterOrEqual(t, r.Count, float64(cfg.MinCount))
		assert.LessOrEqual(t, r.Count, float64(cfg.MaxCount))
		assert.NotEmpty(t, r.Distinct)
		for _, d := range r.Distinct {
			assert.LessOrEqual(t, d, r.Count, "distinct values of %s", r.Name)
		}
	}

	_, err = Synthetic(SyntheticConfig{Relations: 1, MaxArity: 0, MinCount: 1, MaxCount: 1})
	assert.Error(t, err)
}
