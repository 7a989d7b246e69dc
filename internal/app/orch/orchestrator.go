// Package orch drives one call session: credential, provider connection,
// local media and remote participants, in that order, and back.
package orch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/telecall/internal/app"
	"github.com/dkeye/telecall/internal/app/tracks"
	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

const (
	defaultLeaveTimeout = 10 * time.Second
	eventBuffer         = 64
)

// Orchestrator is the call session state machine. At most one session is
// active at a time; Start while not Idle is rejected.
type Orchestrator struct {
	Tokens    core.TokenProvisioner
	Transport core.TransportClient
	Tracks    *tracks.Manager
	Registry  *app.Registry
	Policy    app.MediaPolicy
	// LeaveTimeout bounds teardown calls to the provider and devices.
	LeaveTimeout time.Duration

	mu      sync.Mutex
	state   domain.CallState
	epoch   uint64
	current *attempt

	cbMu           sync.RWMutex
	onParticipants []func([]domain.RemoteParticipant)
	onError        []func(error)
	onState        []func(domain.CallState)
}

// attempt is everything owned by one Start, identified by its epoch.
type attempt struct {
	epoch   uint64
	session domain.CallSession

	ctx    context.Context
	cancel context.CancelCauseFunc
	events chan core.Event

	forward   chan struct{} // closed when Start returns
	loopDone  chan struct{} // closed when the event loop exits
	left      chan struct{} // closed when teardown completed
	leaveOnce sync.Once
	connected atomic.Bool // Connect was issued, Disconnect is owed

	// guarded by Orchestrator.mu
	forwardDone bool
	abandoned   bool // Stop gave up waiting; Start finishes the cleanup

	// owned by the event loop
	subSeq  uint64
	pending map[subKey]uint64
	results chan subscribeResult
}

func newAttempt(epoch uint64, session domain.CallSession) *attempt {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &attempt{
		epoch:    epoch,
		session:  session,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan core.Event, eventBuffer),
		forward:  make(chan struct{}),
		loopDone: make(chan struct{}),
		left:     make(chan struct{}),
		pending:  make(map[subKey]uint64),
		results:  make(chan subscribeResult),
	}
}

// bind derives a context that ends with either ctx or the attempt.
func (a *attempt) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(a.ctx, func() { cancel(context.Cause(a.ctx)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// sink is handed to the transport; events of a finished attempt are dropped.
func (a *attempt) sink(ev core.Event) {
	select {
	case <-a.ctx.Done():
	case a.events <- ev:
	}
}

// Status is a point-in-time view for the UI layer.
type Status struct {
	State        domain.CallState           `json:"state"`
	Session      *domain.CallSession        `json:"session,omitempty"`
	Tracks       []domain.LocalTrackHandle  `json:"tracks"`
	Participants []domain.RemoteParticipant `json:"participants"`
}

func (o *Orchestrator) State() domain.CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Epoch returns the number of Start attempts accepted so far.
func (o *Orchestrator) Epoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{State: o.state}
	if a := o.current; a != nil {
		sess := a.session
		sess.State = o.state
		st.Session = &sess
	}
	o.mu.Unlock()
	st.Tracks = o.Tracks.Handles()
	st.Participants = o.Registry.Snapshot()
	return st
}

// OnRemoteParticipantsChanged registers fn; it receives the registry
// contents right after each mutation.
func (o *Orchestrator) OnRemoteParticipantsChanged(fn func([]domain.RemoteParticipant)) {
	o.cbMu.Lock()
	o.onParticipants = append(o.onParticipants, fn)
	o.cbMu.Unlock()
}

// OnError registers fn for failures that no pending call can report, such
// as the provider dropping the connection mid-call.
func (o *Orchestrator) OnError(fn func(error)) {
	o.cbMu.Lock()
	o.onError = append(o.onError, fn)
	o.cbMu.Unlock()
}

// OnStateChanged registers fn; it receives every state the session enters.
func (o *Orchestrator) OnStateChanged(fn func(domain.CallState)) {
	o.cbMu.Lock()
	o.onState = append(o.onState, fn)
	o.cbMu.Unlock()
}

func (o *Orchestrator) emitState(st domain.CallState) {
	o.cbMu.RLock()
	handlers := make([]func(domain.CallState), len(o.onState))
	copy(handlers, o.onState)
	o.cbMu.RUnlock()
	for _, fn := range handlers {
		fn(st)
	}
}

func (o *Orchestrator) emitParticipants() {
	snap := o.Registry.Snapshot()
	o.cbMu.RLock()
	handlers := make([]func([]domain.RemoteParticipant), len(o.onParticipants))
	copy(handlers, o.onParticipants)
	o.cbMu.RUnlock()
	for _, fn := range handlers {
		fn(snap)
	}
}

func (o *Orchestrator) emitError(err error) {
	o.cbMu.RLock()
	handlers := make([]func(error), len(o.onError))
	copy(handlers, o.onError)
	o.cbMu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (o *Orchestrator) policy() app.MediaPolicy {
	if o.Policy == nil {
		return app.SimplePolicy{}
	}
	return o.Policy
}

func (o *Orchestrator) leaveTimeout() time.Duration {
	if o.LeaveTimeout <= 0 {
		return defaultLeaveTimeout
	}
	return o.LeaveTimeout
}

// advance moves a from one state to the next if a is still current and
// has not been canceled.
func (o *Orchestrator) advance(a *attempt, from, to domain.CallState) bool {
	o.mu.Lock()
	if o.current != a || a.ctx.Err() != nil || o.state != from {
		o.mu.Unlock()
		return false
	}
	o.state = to
	o.mu.Unlock()
	o.emitState(to)
	return true
}
