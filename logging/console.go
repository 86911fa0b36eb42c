package logging

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsolePublisher writes one line per event to a writer, filtered by
// minimum severity.
type ConsolePublisher struct {
	mu    sync.Mutex
	out   io.Writer
	min   Severity
	color bool
}

// NewConsolePublisher creates a console sink.
func NewConsolePublisher(out io.Writer, min Severity, cfg ConsoleConfig) *ConsolePublisher {
	return &ConsolePublisher{out: out, min: min, color: cfg.UseColor}
}

func (p *ConsolePublisher) Publish(_ context.Context, event Event) {
	if p == nil || p.out == nil || event.Severity < p.min {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	label := severityLabel(event.Severity)
	if p.color {
		label = colorize(event.Severity, label)
	}
	if event.Payload != nil {
		fmt.Fprintf(p.out, "%s tick=%d [%s] %s %s/%s %v\n",
			event.Time.Format("15:04:05.000"), event.Tick, label,
			event.Type, event.Actor.Kind, event.Actor.ID, event.Payload)
		return
	}
	fmt.Fprintf(p.out, "%s tick=%d [%s] %s %s/%s\n",
		event.Time.Format("15:04:05.000"), event.Tick, label,
		event.Type, event.Actor.Kind, event.Actor.ID)
}

func colorize(s Severity, label string) string {
	switch s {
	case SeverityDebug:
		return "\x1b[2m" + label + "\x1b[0m"
	case SeverityWarn:
		return "\x1b[33m" + label + "\x1b[0m"
	case SeverityError:
		return "\x1b[31m" + label + "\x1b[0m"
	}
	return label
}

func severityLabel(s Severity) string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	}
	return "info"
}
