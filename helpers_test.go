package streamsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/streamsink/model"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []ProducerRecord
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, rec ProducerRecord) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, 0, p.err
	}
	p.records = append(p.records, rec)
	partition := rec.Partition
	if partition < 0 {
		partition = 0
	}
	return partition, int64(len(p.records) - 1), nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) Records() []ProducerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProducerRecord(nil), p.records...)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) { l.add("DEBUG", format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})  { l.add("INFO", format, args...) }
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.add("WARN", format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.add("ERROR", format, args...) }
func (l *recordingLogger) Info(message string)                       { l.add("INFO", "%s", message) }

func (l *recordingLogger) Lines(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, line := range l.lines {
		if len(line) > len(level) && line[:len(level)+1] == level+" " {
			out = append(out, line)
		}
	}
	return out
}

// scriptedHandler fails the first failures calls and records every call time.
type scriptedHandler struct {
	mu       sync.Mutex
	failures int
	calls    []time.Time
	ctxErrs  []error
	panicMsg string
}

func (h *scriptedHandler) Handle(ctx context.Context, _ *model.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, time.Now())
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	if len(h.calls) <= h.failures {
		if h.panicMsg != "" {
			panic(h.panicMsg)
		}
		return fmt.Errorf("attempt %d failed", len(h.calls))
	}
	return nil
}

func (h *scriptedHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type recordingNotifier struct {
	mu           sync.Mutex
	retries      []time.Duration
	deadLettered []model.DeadLetterRecord
	failed       []error
	outcomes     []Outcome
}

func (n *recordingNotifier) NotifyRetry(_ context.Context, _ *model.Envelope, _ error, delay time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.retries = append(n.retries, delay)
	return nil
}

func (n *recordingNotifier) NotifyDeadLettered(_ context.Context, _ string, rec model.DeadLetterRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deadLettered = append(n.deadLettered, rec)
	return nil
}

func (n *recordingNotifier) NotifyDeadLetterFailed(_ context.Context, _ *model.Envelope, cause error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, cause)
	return nil
}

func (n *recordingNotifier) NotifyOutcome(_ context.Context, _ *model.Envelope, outcome Outcome, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return fmt.Errorf("notifier errors are ignored")
}
