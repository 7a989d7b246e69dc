package orch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/telecall/internal/app"
	"github.com/dkeye/telecall/internal/app/tracks"
	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/core/mocks"
	"github.com/dkeye/telecall/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	o         *Orchestrator
	tokens    *mocks.MockTokenProvisioner
	devices   *fakeDevices
	transport *fakeTransport
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	h := &harness{
		tokens:    mocks.NewMockTokenProvisioner(ctrl),
		devices:   newFakeDevices(),
		transport: newFakeTransport(),
	}
	h.o = &Orchestrator{
		Tokens:       h.tokens,
		Transport:    h.transport,
		Tracks:       tracks.NewManager(h.devices, h.transport),
		Registry:     app.NewRegistry(),
		Policy:       app.SimplePolicy{},
		LeaveTimeout: time.Second,
	}
	t.Cleanup(func() { _ = h.o.Stop(context.Background()) })
	return h
}

func (h *harness) grant(channel domain.ChannelName, identity domain.Identity) {
	h.tokens.EXPECT().
		RequestToken(gomock.Any(), channel, identity, core.RolePublisher).
		Return(core.Credential{Token: "tok-" + string(identity), Channel: channel, Identity: identity}, nil)
}

func (h *harness) requireClean(t *testing.T) {
	t.Helper()
	require.Equal(t, domain.StateIdle, h.o.State())
	require.Zero(t, h.devices.openCount(), "capture devices left open")
	require.Zero(t, h.o.Registry.Len())
	for _, th := range h.o.Tracks.Handles() {
		require.Equal(t, domain.Unpublished, th.Publication)
		require.Nil(t, th.Capture)
	}
}

func participant(o *Orchestrator, id domain.ParticipantID) func() (domain.RemoteParticipant, bool) {
	return func() (domain.RemoteParticipant, bool) { return o.Registry.Get(id) }
}

func TestCallBetweenAliceAndBob(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")

	changes := make(chan []domain.RemoteParticipant, 16)
	h.o.OnRemoteParticipantsChanged(func(ps []domain.RemoteParticipant) { changes <- ps })

	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeVideo}))
	require.Equal(t, domain.StateJoined, h.o.State())
	require.Equal(t, "tok-alice", h.transport.cred.Token)

	for _, th := range h.o.Tracks.Handles() {
		require.Equal(t, domain.Published, th.Publication)
		require.True(t, th.Enabled)
	}
	require.Equal(t, 2, h.devices.openCount())

	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})
	h.transport.emit(core.Event{Kind: core.EventMediaPublished, Participant: "bob", Media: domain.MediaVideo})
	h.transport.emit(core.Event{Kind: core.EventMediaPublished, Participant: "bob", Media: domain.MediaAudio})

	get := participant(h.o, "bob")
	require.Eventually(t, func() bool {
		p, ok := get()
		return ok && p.HasAudio() && p.HasVideo()
	}, waitFor, tick)

	first := <-changes
	require.Len(t, first, 1)
	require.Equal(t, domain.ParticipantID("bob"), first[0].ID)

	h.transport.emit(core.Event{Kind: core.EventMediaUnpublished, Participant: "bob", Media: domain.MediaVideo})
	require.Eventually(t, func() bool {
		p, ok := get()
		return ok && p.HasAudio() && !p.HasVideo()
	}, waitFor, tick)

	h.transport.emit(core.Event{Kind: core.EventParticipantLeft, Participant: "bob"})
	require.Eventually(t, func() bool { return h.o.Registry.Len() == 0 }, waitFor, tick)

	require.NoError(t, h.o.Stop(ctx))
	h.requireClean(t)
	connects, disconnects, published := h.transport.counts()
	require.Equal(t, 1, connects)
	require.Equal(t, 1, disconnects)
	require.Zero(t, published)
}

func TestStartUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.tokens.EXPECT().
		RequestToken(gomock.Any(), domain.ChannelName("standup"), domain.Identity("mallory"), core.RolePublisher).
		Return(core.Credential{}, fmt.Errorf("%w: status 401", core.ErrUnauthorized))

	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "mallory"})
	require.ErrorIs(t, err, domain.ErrCredential)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	h.requireClean(t)
	require.Zero(t, h.devices.acquiredCount())
	connects, _, _ := h.transport.counts()
	require.Zero(t, connects)
}

func TestStartWithSuppliedToken(t *testing.T) {
	h := newHarness(t)

	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice", Token: "given"})
	require.NoError(t, err)
	require.Equal(t, "given", h.transport.cred.Token)
	require.Equal(t, domain.ChannelName("standup"), h.transport.cred.Channel)
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t)

	err := h.o.Start(context.Background(), StartRequest{Channel: "", Identity: "alice"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	require.ErrorIs(t, err, domain.ErrChannelEmpty)
	require.Equal(t, domain.StateIdle, h.o.State())
	require.Zero(t, h.o.Epoch())
}

func TestDoubleStartAndStopDuringStart(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	h.transport.connectGate = make(chan struct{})

	ctx := context.Background()
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"})
	}()
	require.Eventually(t, func() bool { return h.o.State() == domain.StateJoining }, waitFor, tick)

	err := h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"})
	require.ErrorIs(t, err, domain.ErrAlreadyActive)
	require.Equal(t, uint64(1), h.o.Epoch())

	require.NoError(t, h.o.Stop(ctx))
	require.ErrorIs(t, <-firstErr, domain.ErrCanceled)
	h.requireClean(t)
	_, disconnects, _ := h.transport.counts()
	require.Equal(t, 1, disconnects)
}

func TestStopDuringDeviceAcquisition(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	h.devices.gate = make(chan struct{})

	ctx := context.Background()
	startErr := make(chan error, 1)
	go func() {
		startErr <- h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"})
	}()
	require.Eventually(t, func() bool { return h.o.State() == domain.StateJoined }, waitFor, tick)

	require.NoError(t, h.o.Stop(ctx))
	require.ErrorIs(t, <-startErr, domain.ErrCanceled)
	h.requireClean(t)
	require.Zero(t, h.devices.acquiredCount())
}

func TestNoCaptureLeaksAcrossCycles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := range 5 {
		id := domain.Identity(fmt.Sprintf("alice-%d", i))
		h.grant("standup", id)
		require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: id}))
		h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})
		require.NoError(t, h.o.Stop(ctx))
		h.requireClean(t)
	}
	require.Equal(t, 10, h.devices.acquiredCount())
	require.Equal(t, uint64(5), h.o.Epoch())

	// stopping again is a no-op
	require.NoError(t, h.o.Stop(ctx))
}

func TestPublishedBeforeJoined(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeAudioOnly}))

	h.transport.emit(core.Event{Kind: core.EventMediaPublished, Participant: "bob", Media: domain.MediaVideo})
	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})

	require.Eventually(t, func() bool {
		p, ok := h.o.Registry.Get("bob")
		return ok && p.HasVideo()
	}, waitFor, tick)
	require.Equal(t, 1, h.o.Registry.Len())
}

func TestCameraDeniedFailsStart(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	h.devices.fail[domain.MediaVideo] = core.ErrPermissionDenied

	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"})
	require.ErrorIs(t, err, domain.ErrDeviceUnavailable)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	h.requireClean(t)
	_, disconnects, published := h.transport.counts()
	require.Equal(t, 1, disconnects)
	require.Zero(t, published)
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	h.transport.connectErr = fmt.Errorf("join timeout")

	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"})
	require.ErrorIs(t, err, domain.ErrConnection)
	h.requireClean(t)
	require.Zero(t, h.devices.acquiredCount())
}

func TestProviderDisconnect(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	errs := make(chan error, 1)
	h.o.OnError(func(err error) { errs <- err })

	require.NoError(t, h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"}))
	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})
	h.transport.emit(core.Event{Kind: core.EventConnectionLost, Err: fmt.Errorf("ice failed")})

	select {
	case err := <-errs:
		require.ErrorIs(t, err, domain.ErrProviderDisconnected)
	case <-time.After(waitFor):
		t.Fatal("no error reported")
	}
	require.Eventually(t, func() bool {
		return h.o.State() == domain.StateIdle && h.devices.openCount() == 0
	}, waitFor, tick)
	h.requireClean(t)
}

func TestToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.o.ToggleAudio(ctx, true)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeAudioOnly}))
	require.Equal(t, 1, h.devices.openCount())

	require.ErrorIs(t, h.o.ToggleVideo(ctx, true), domain.ErrInvalidState)

	require.NoError(t, h.o.ToggleAudio(ctx, false))
	require.Zero(t, h.devices.openCount())
	require.NoError(t, h.o.ToggleAudio(ctx, false))
	require.Equal(t, domain.StateJoined, h.o.State())

	require.NoError(t, h.o.ToggleAudio(ctx, true))
	require.Equal(t, 1, h.devices.openCount())
	a, _ := h.o.Tracks.Handle(domain.MediaAudio)
	require.Equal(t, domain.Published, a.Publication)
}

func TestToggleFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"}))

	require.NoError(t, h.o.ToggleVideo(ctx, false))
	h.devices.mu.Lock()
	h.devices.fail[domain.MediaVideo] = core.ErrDeviceUnavailable
	h.devices.mu.Unlock()

	require.ErrorIs(t, h.o.ToggleVideo(ctx, true), domain.ErrDeviceUnavailable)
	require.Equal(t, domain.StateJoined, h.o.State())
	a, _ := h.o.Tracks.Handle(domain.MediaAudio)
	require.Equal(t, domain.Published, a.Publication)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	st := h.o.Status()
	require.Equal(t, domain.StateIdle, st.State)
	require.Nil(t, st.Session)

	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"}))
	st = h.o.Status()
	require.Equal(t, domain.StateJoined, st.State)
	require.NotNil(t, st.Session)
	require.Equal(t, domain.StateJoined, st.Session.State)
	require.Len(t, st.Tracks, 2)
}

func TestExpiredCredentialRejected(t *testing.T) {
	h := newHarness(t)
	h.tokens.EXPECT().
		RequestToken(gomock.Any(), domain.ChannelName("standup"), domain.Identity("alice"), core.RolePublisher).
		Return(core.Credential{Token: "stale", Channel: "standup", Identity: "alice", ExpiresAt: time.Now().Add(-time.Minute)}, nil)

	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"})
	require.ErrorIs(t, err, domain.ErrCredential)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	h.requireClean(t)
	connects, _, _ := h.transport.counts()
	require.Zero(t, connects)
	require.Zero(t, h.devices.acquiredCount())
}

func TestConnectAcknowledgedAfterStopIsUndone(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	gate := make(chan struct{})
	h.transport.connectGate = gate
	h.transport.stubborn = true

	startErr := make(chan error, 1)
	go func() {
		startErr <- h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"})
	}()
	require.Eventually(t, func() bool {
		connects, _, _ := h.transport.counts()
		return connects == 1 && h.o.State() == domain.StateJoining
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, h.o.Stop(ctx))

	// the forward sequence has not returned yet, so the session is not free
	require.Equal(t, domain.StateLeaving, h.o.State())
	err := h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "bob"})
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	close(gate)
	require.ErrorIs(t, <-startErr, domain.ErrCanceled)
	h.requireClean(t)
	require.False(t, h.transport.isConnected(), "provider connection left open")
	_, disconnects, _ := h.transport.counts()
	require.Equal(t, 2, disconnects)
}

func TestCaptureOpenedAfterStopIsReleased(t *testing.T) {
	h := newHarness(t)
	h.o.LeaveTimeout = 50 * time.Millisecond
	h.grant("standup", "alice")
	gate := make(chan struct{})
	h.devices.gate = gate
	h.devices.stubborn = true

	startErr := make(chan error, 1)
	go func() {
		startErr <- h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice"})
	}()
	require.Eventually(t, func() bool {
		a, _ := h.o.Tracks.Handle(domain.MediaAudio)
		return a.Publication == domain.Publishing
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, h.o.Stop(ctx))
	require.Equal(t, domain.StateLeaving, h.o.State())

	close(gate)
	require.ErrorIs(t, <-startErr, domain.ErrCanceled)
	h.requireClean(t)
	require.Equal(t, 1, h.devices.acquiredCount())
	require.False(t, h.transport.isConnected())
}

func TestSlowSubscribeDoesNotStallEvents(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeAudioOnly}))

	gate := make(chan struct{})
	h.transport.mu.Lock()
	h.transport.subscribeGate = gate
	h.transport.mu.Unlock()

	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})
	h.transport.emit(core.Event{Kind: core.EventMediaPublished, Participant: "bob", Media: domain.MediaVideo})
	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "carol"})

	require.Eventually(t, func() bool {
		_, ok := h.o.Registry.Get("carol")
		return ok
	}, waitFor, tick)
	bob, ok := h.o.Registry.Get("bob")
	require.True(t, ok)
	require.False(t, bob.HasVideo())

	close(gate)
	require.Eventually(t, func() bool {
		p, ok := h.o.Registry.Get("bob")
		return ok && p.HasVideo()
	}, waitFor, tick)
}

func TestUnpublishWhileSubscribingDropsTrack(t *testing.T) {
	h := newHarness(t)
	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(context.Background(), StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeAudioOnly}))

	gate := make(chan struct{})
	h.transport.mu.Lock()
	h.transport.subscribeGate = gate
	h.transport.mu.Unlock()

	h.transport.emit(core.Event{Kind: core.EventParticipantJoined, Participant: "bob"})
	h.transport.emit(core.Event{Kind: core.EventMediaPublished, Participant: "bob", Media: domain.MediaVideo})
	h.transport.emit(core.Event{Kind: core.EventMediaUnpublished, Participant: "bob", Media: domain.MediaVideo})
	close(gate)

	require.Eventually(t, func() bool { return h.transport.subscribeCount() == 1 }, waitFor, tick)
	require.Never(t, func() bool {
		p, _ := h.o.Registry.Get("bob")
		return p.HasVideo()
	}, 100*time.Millisecond, tick)
	_, ok := h.o.Registry.Get("bob")
	require.True(t, ok)
}

type stateLog struct {
	mu     sync.Mutex
	states []domain.CallState
}

func (l *stateLog) record(st domain.CallState) {
	l.mu.Lock()
	l.states = append(l.states, st)
	l.mu.Unlock()
}

func (l *stateLog) all() []domain.CallState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CallState(nil), l.states...)
}

func TestStateChangesAreReported(t *testing.T) {
	h := newHarness(t)
	log := &stateLog{}
	h.o.OnStateChanged(log.record)
	ctx := context.Background()

	h.grant("standup", "alice")
	require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"}))
	require.NoError(t, h.o.Stop(ctx))
	require.Equal(t, []domain.CallState{
		domain.StateProvisioning,
		domain.StateJoining,
		domain.StateJoined,
		domain.StateLeaving,
		domain.StateIdle,
	}, log.all())

	log = &stateLog{}
	h.o.OnStateChanged(log.record)
	h.transport.connectErr = fmt.Errorf("join timeout")
	h.grant("standup", "alice")
	require.ErrorIs(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice"}), domain.ErrConnection)
	require.Equal(t, []domain.CallState{
		domain.StateProvisioning,
		domain.StateJoining,
		domain.StateFailed,
		domain.StateIdle,
	}, log.all())
}

func TestToggleEnabledAfterStopIsUndone(t *testing.T) {
	h := newHarness(t)
	h.o.LeaveTimeout = 50 * time.Millisecond
	h.grant("standup", "alice")
	ctx := context.Background()
	require.NoError(t, h.o.Start(ctx, StartRequest{Channel: "standup", Identity: "alice", Mode: domain.ModeVideo}))
	require.NoError(t, h.o.ToggleVideo(ctx, false))

	gate := make(chan struct{})
	h.devices.mu.Lock()
	h.devices.gate = gate
	h.devices.stubborn = true
	h.devices.mu.Unlock()

	toggleErr := make(chan error, 1)
	go func() { toggleErr <- h.o.ToggleVideo(ctx, true) }()
	require.Eventually(t, func() bool {
		v, _ := h.o.Tracks.Handle(domain.MediaVideo)
		return v.Publication == domain.Publishing
	}, waitFor, tick)

	require.NoError(t, h.o.Stop(ctx))
	require.Equal(t, domain.StateIdle, h.o.State())

	close(gate)
	require.ErrorIs(t, <-toggleErr, domain.ErrCanceled)
	h.requireClean(t)
	_, _, published := h.transport.counts()
	require.Zero(t, published)
}
