package annotations

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsAndDispatches(t *testing.T) {
	var seen []string
	c := NewCollector(func(e Event) { seen = append(seen, e.Name) })

	c.Add(Event{Name: PlanRequested})
	c.AddTiming(PlanComplete, time.Now(), map[string]interface{}{"success": true})

	require.Len(t, c.Events(), 2)
	assert.Equal(t, []string{PlanRequested, PlanComplete}, seen)
	assert.GreaterOrEqual(t, c.Events()[1].Latency, time.Duration(0))

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestCollectorDisabled(t *testing.T) {
	c := NewCollector(nil)
	c.Add(Event{Name: PlanRequested})
	assert.False(t, c.Enabled())
	assert.Empty(t, c.Events())

	var nilCollector *Collector
	assert.False(t, nilCollector.Enabled())
	nilCollector.Add(Event{Name: PlanRequested})
}

func TestCollectorSurvivesPanickingHandler(t *testing.T) {
	c := NewCollector(func(e Event) { panic("handler broke") })

	assert.NotPanics(t, func() {
		c.Add(Event{Name: PlanRequested})
		c.Add(Event{Name: PlanComplete})
	})
	assert.Equal(t, 2, c.Dropped())
	assert.Len(t, c.Events(), 2)
}

func TestFanoutIsolatesHandlers(t *testing.T) {
	count := 0
	h := Fanout(nil, func(Event) { panic("first") }, func(Event) { count++ })
	require.NotNil(t, h)

	assert.NotPanics(t, func() { h(Event{Name: PlanCached}) })
	assert.Equal(t, 1, count)
	assert.Nil(t, Fanout(nil, nil))
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)

	f.Handle(Event{Name: OrderingsGenerated, Latency: 250 * time.Microsecond, Data: map[string]interface{}{
		"call_mode":       "q[?a]",
		"orderings.count": 4,
		"choices.count":   2,
	}})
	f.Handle(Event{Name: PlanComplete, Latency: 3 * time.Millisecond, Data: map[string]interface{}{
		"success": false,
		"error":   "boom",
	}})
	f.Handle(Event{Name: PlanCommitted, Data: map[string]interface{}{
		"call_mode": "q[]",
		"cost":      int64(12),
		"ordering":  strings.Repeat("[:r ?x] ", 40),
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[250µs] q[?a]: 4 Orderings kept as 2 Choices", lines[0])
	assert.Contains(t, lines[1], "[3.0ms]")
	assert.Contains(t, lines[1], "Planning failed: boom")
	assert.True(t, strings.HasSuffix(lines[2], "..."))
}
