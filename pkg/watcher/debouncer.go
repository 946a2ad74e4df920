package watcher

import (
	"context"
	"time"

	"github.com/ritzau/build-state/pkg/logging"
)

// Debouncer batches rapid file system events so a burst of editor saves does
// not trigger one state update per file
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run processes events and applies debouncing logic. Timer expiry is consumed
// inside the select, so flushing and accumulation stay on this one goroutine
// and never race with closing the output channel.
func (d *Debouncer) run(ctx context.Context) {
	quiet := time.NewTimer(d.quietPeriod)
	quiet.Stop()
	maxWait := time.NewTimer(d.maxWait)
	maxWait.Stop()

	accumulated := make(map[ChangeType][]string)
	eventCount := 0

	flush := func() {
		if eventCount == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", eventCount)

		// Deletions first, then modifications; see RootWatcher for the
		// delete+recreate ordering rationale
		if paths := accumulated[ChangeDeleted]; len(paths) > 0 {
			d.output <- ChangeEvent{Type: ChangeDeleted, Paths: paths, Timestamp: time.Now()}
		}
		if paths := accumulated[ChangeModified]; len(paths) > 0 {
			d.output <- ChangeEvent{Type: ChangeModified, Paths: paths, Timestamp: time.Now()}
		}

		accumulated = make(map[ChangeType][]string)
		eventCount = 0
		quiet.Stop()
		maxWait.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			// Every event restarts the quiet period; the max-wait timer caps
			// total latency under a steady stream of events
			quiet.Reset(d.quietPeriod)
			if eventCount == 1 {
				maxWait.Reset(d.maxWait)
			}

		case <-quiet.C:
			flush()

		case <-maxWait.C:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
