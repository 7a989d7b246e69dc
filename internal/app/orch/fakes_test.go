package orch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

type capture struct {
	id   string
	kind domain.MediaKind
}

func (c *capture) ID() string              { return c.id }
func (c *capture) Kind() domain.MediaKind { return c.kind }

type remoteTrack struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

func (r remoteTrack) ID() string              { return fmt.Sprintf("%s-%s", r.participant, r.kind) }
func (r remoteTrack) Kind() domain.MediaKind { return r.kind }

// fakeDevices counts open captures so tests can assert nothing leaks.
type fakeDevices struct {
	mu       sync.Mutex
	seq      int
	open     map[string]*capture
	acquired int
	fail     map[domain.MediaKind]error
	// gate, when set, holds Acquire until closed or ctx ends.
	gate chan struct{}
	// stubborn makes Acquire wait for gate even after ctx ended.
	stubborn bool
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{open: make(map[string]*capture), fail: make(map[domain.MediaKind]error)}
}

func (d *fakeDevices) Acquire(ctx context.Context, kind domain.MediaKind) (domain.CaptureHandle, error) {
	d.mu.Lock()
	gate, stubborn := d.gate, d.stubborn
	err := d.fail[kind]
	d.mu.Unlock()
	if gate != nil {
		if err := waitGate(ctx, gate, stubborn); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.acquired++
	c := &capture{id: fmt.Sprintf("%s-%d", kind, d.seq), kind: kind}
	d.open[c.id] = c
	return c, nil
}

func (d *fakeDevices) Release(h domain.CaptureHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, h.ID())
	return nil
}

func (d *fakeDevices) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

func (d *fakeDevices) acquiredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// fakeTransport records calls and lets tests inject provider events.
type fakeTransport struct {
	mu          sync.Mutex
	sink        core.EventSink
	cred        core.Credential
	connectErr  error
	connectGate chan struct{}
	// stubborn makes Connect wait for connectGate even after ctx ended.
	stubborn    bool
	connected   bool
	connects    int
	disconnects int
	published   map[string]bool

	subscribeGate chan struct{}
	subscribes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: make(map[string]bool)}
}

func (f *fakeTransport) Connect(ctx context.Context, cred core.Credential, sink core.EventSink) error {
	f.mu.Lock()
	f.connects++
	f.cred = cred
	f.sink = sink
	gate, err, stubborn := f.connectGate, f.connectErr, f.stubborn
	f.mu.Unlock()
	if gate != nil {
		if err := waitGate(ctx, gate, stubborn); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	f.sink = nil
	return nil
}

func (f *fakeTransport) Publish(ctx context.Context, tracks ...domain.CaptureHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		f.published[t.ID()] = true
	}
	return nil
}

func (f *fakeTransport) Unpublish(ctx context.Context, tracks ...domain.CaptureHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		delete(f.published, t.ID())
	}
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, participant domain.ParticipantID, kind domain.MediaKind) (domain.RemoteTrack, error) {
	f.mu.Lock()
	gate := f.subscribeGate
	f.mu.Unlock()
	if gate != nil {
		if err := waitGate(ctx, gate, false); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.subscribes++
	f.mu.Unlock()
	return remoteTrack{participant: participant, kind: kind}, nil
}

func (f *fakeTransport) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// emit delivers ev to the sink of the current connection, if any.
func (f *fakeTransport) emit(ev core.Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (f *fakeTransport) counts() (connects, disconnects, published int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, len(f.published)
}

// waitGate blocks until gate is closed. Unless stubborn, a done ctx ends the
// wait early.
func waitGate(ctx context.Context, gate chan struct{}, stubborn bool) error {
	if stubborn {
		<-gate
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
