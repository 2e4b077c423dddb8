package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering. With DropIfFull, routine events
// are dropped on a full buffer; critical events still wait for space.
// FlushTimeout bounds how long Close drains; zero waits for every event.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	FlushTimeout time.Duration
}

// Dispatcher forwards events to a sink on its own goroutine so audit
// writes never sit on the request path.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	stop    chan struct{}
	stopped chan struct{}
	dropped atomic.Uint64
	closing atomic.Bool
	once    sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		queue:   make(chan Event, cfg.BufferSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

// Emit queues event after scrubbing secret-looking metadata keys.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Metadata = scrub(event.Metadata)

	if d.cfg.DropIfFull && !event.Critical {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops intake and drains the buffer. Events still queued when
// FlushTimeout passes are counted as dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		if d.cfg.FlushTimeout <= 0 {
			<-d.stopped
			return
		}
		timer := time.NewTimer(d.cfg.FlushTimeout)
		defer timer.Stop()
		select {
		case <-d.stopped:
		case <-timer.C:
			d.dropped.Add(uint64(len(d.queue)))
		}
	})
}

// Dropped counts events lost to a full buffer, a cancelled caller or the
// flush timeout.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

var secretKeys = map[string]bool{
	"code": true, "otp": true, "password": true,
	"token": true, "secret": true, "hash": true,
}

// scrub drops metadata entries whose key ends in a credential name, such
// as "code" or "refresh_token".
func scrub(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return metadata
	}
	var out map[string]string
	for k, v := range metadata {
		if isSecretKey(k) {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(metadata))
		}
		out[k] = v
	}
	return out
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	if i := strings.LastIndexAny(key, "_-."); i >= 0 {
		key = key[i+1:]
	}
	return secretKeys[key]
}
