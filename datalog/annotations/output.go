package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case PlanRequested:
		return fmt.Sprintf("%s %s Plan requested for %s",
			latency,
			f.colorize("===", color.FgYellow),
			event.Data["call_mode"])

	case PlanCached:
		return fmt.Sprintf("%s Reusing plan for %s (cost %v)",
			latency,
			event.Data["call_mode"],
			event.Data["cost"])

	case OrderingsGenerated:
		return fmt.Sprintf("%s %s: %s kept as %s",
			latency,
			event.Data["call_mode"],
			f.colorizeCount("Orderings", intData(event, "orderings.count")),
			f.colorizeCount("Choices", intData(event, "choices.count")))

	case SubgraphPlanned:
		return fmt.Sprintf("%s Subgraph of %s planned jointly over %s, cost %.1f",
			latency,
			event.Data["root"],
			f.colorizeCount("Call modes", intData(event, "call_modes.count")),
			event.Data["cost"])

	case PlanCommitted:
		return fmt.Sprintf("%s %s %s cost=%v %s",
			latency,
			f.colorize("→", color.FgCyan),
			event.Data["call_mode"],
			event.Data["cost"],
			truncate(fmt.Sprint(event.Data["ordering"])))

	case PlanComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Planning failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Data["error"])
		}
		return fmt.Sprintf("%s %s Planned %s with cost %v",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["call_mode"],
			event.Data["cost"])

	case StatsLoaded:
		return fmt.Sprintf("%s Loaded statistics for %s",
			latency,
			f.colorizeCount("Relations", intData(event, "relations.count")))

	case ErrorPlannerInternal:
		return fmt.Sprintf("%s %s %v", latency, f.colorize("internal error:", color.FgRed), event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

func intData(event Event, key string) int {
	n, _ := event.Data[key].(int)
	return n
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "orderings":
		return color.CyanString(text)
	case "choices":
		return color.MagentaString(text)
	case "relations", "call modes":
		return color.BlueString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// truncate shortens long orderings for display.
func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

// isTerminal checks if the file descriptor is stdout or stderr.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
