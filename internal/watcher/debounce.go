package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of changes into batches. A batch is emitted
// once no change has arrived for the delay; it holds one event per path,
// the latest, sorted by path.
type Debouncer struct {
	delay time.Duration
	in    chan ChangeEvent
	out   chan []ChangeEvent

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]ChangeEvent
	stopped bool
}

// NewDebouncer returns a debouncer emitting batches after delay of quiet.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		in:      make(chan ChangeEvent, 100),
		out:     make(chan []ChangeEvent, 1),
		pending: make(map[string]ChangeEvent),
	}
}

// Batches delivers debounced batches.
func (d *Debouncer) Batches() <-chan []ChangeEvent { return d.out }

// offer queues ev without blocking and reports whether it was accepted.
func (d *Debouncer) offer(ev ChangeEvent) bool {
	select {
	case d.in <- ev:
		return true
	default:
		return false
	}
}

func (d *Debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case ev := <-d.in:
			d.add(ev)
		}
	}
}

func (d *Debouncer) add(ev ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[ev.Path] = ev
	d.schedule()
}

// schedule restarts the quiet period. Callers hold mu.
func (d *Debouncer) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.stopped {
		return
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// flush emits the pending batch. When the consumer is still busy with the
// previous batch the events stay pending and the flush is retried.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}

	batch := make([]ChangeEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.out <- batch:
		clear(d.pending)
	default:
		d.schedule()
	}
}
