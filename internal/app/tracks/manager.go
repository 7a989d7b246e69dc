// Package tracks maps the user's per-medium intent onto capture devices and
// provider publications.
package tracks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

// slot is the lifecycle of one medium. gate serializes enable/disable for
// the medium; mu only protects handle for readers.
type slot struct {
	gate *semaphore.Weighted

	mu     sync.RWMutex
	handle domain.LocalTrackHandle
}

func (s *slot) get() domain.LocalTrackHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *slot) update(fn func(h *domain.LocalTrackHandle)) domain.LocalTrackHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.handle)
	return s.handle
}

func (s *slot) reset() {
	s.update(func(h *domain.LocalTrackHandle) {
		h.Capture = nil
		h.Publication = domain.Unpublished
		h.Enabled = false
	})
}

type Manager struct {
	devices   core.MediaDevices
	transport core.TransportClient
	slots     map[domain.MediaKind]*slot
}

func NewManager(devices core.MediaDevices, transport core.TransportClient) *Manager {
	m := &Manager{
		devices:   devices,
		transport: transport,
		slots:     make(map[domain.MediaKind]*slot, len(domain.MediaKinds)),
	}
	for _, kind := range domain.MediaKinds {
		m.slots[kind] = &slot{
			gate:   semaphore.NewWeighted(1),
			handle: domain.LocalTrackHandle{Kind: kind, Publication: domain.Unpublished},
		}
	}
	return m
}

func (m *Manager) slot(kind domain.MediaKind) (*slot, error) {
	s, ok := m.slots[kind]
	if !ok {
		return nil, domain.NewCallError(domain.KindInvalidRequest, "tracks", fmt.Errorf("unknown media kind %q", kind))
	}
	return s, nil
}

// Enable captures and publishes kind. A medium that is already published is
// returned as is, without touching the device again.
func (m *Manager) Enable(ctx context.Context, kind domain.MediaKind) (domain.LocalTrackHandle, error) {
	op := "enable " + string(kind)
	s, err := m.slot(kind)
	if err != nil {
		return domain.LocalTrackHandle{}, err
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindCanceled, op, err)
	}
	defer s.gate.Release(1)
	// Acquire may succeed on a done context.
	if err := ctx.Err(); err != nil {
		return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindCanceled, op, context.Cause(ctx))
	}

	if h := s.get(); h.Publication == domain.Published || h.Publication == domain.Publishing {
		return h, nil
	}

	logger := log.With().Str("module", "tracks").Str("kind", string(kind)).Logger()
	s.update(func(h *domain.LocalTrackHandle) {
		h.Enabled = true
		h.Publication = domain.Publishing
	})

	capture, err := m.devices.Acquire(ctx, kind)
	if err != nil {
		s.reset()
		logger.Warn().Err(err).Msg("device acquisition failed")
		if ctx.Err() != nil {
			return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindCanceled, op, err)
		}
		return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindDeviceUnavailable, op, err)
	}
	s.update(func(h *domain.LocalTrackHandle) { h.Capture = capture })

	if err := m.transport.Publish(ctx, capture); err != nil {
		m.release(logger, capture)
		s.reset()
		logger.Warn().Err(err).Str("capture", capture.ID()).Msg("publish failed, device released")
		if ctx.Err() != nil {
			return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindCanceled, op, err)
		}
		return domain.LocalTrackHandle{}, domain.NewCallError(domain.KindPublish, op, err)
	}

	h := s.update(func(h *domain.LocalTrackHandle) { h.Publication = domain.Published })
	logger.Info().Str("capture", capture.ID()).Msg("track published")
	return h, nil
}

// Disable unpublishes kind and releases its device. The device is released
// even when the provider rejects the unpublish.
func (m *Manager) Disable(ctx context.Context, kind domain.MediaKind) error {
	s, err := m.slot(kind)
	if err != nil {
		return err
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return domain.NewCallError(domain.KindCanceled, "disable "+string(kind), err)
	}
	defer s.gate.Release(1)

	h := s.get()
	if h.Publication == domain.Unpublished {
		s.update(func(h *domain.LocalTrackHandle) { h.Enabled = false })
		return nil
	}

	logger := log.With().Str("module", "tracks").Str("kind", string(kind)).Logger()
	s.update(func(h *domain.LocalTrackHandle) {
		h.Enabled = false
		h.Publication = domain.Unpublishing
	})
	if h.Capture != nil {
		if err := m.transport.Unpublish(ctx, h.Capture); err != nil {
			logger.Warn().Err(err).Str("capture", h.Capture.ID()).Msg("unpublish failed, releasing device anyway")
		}
		m.release(logger, h.Capture)
	}
	s.reset()
	logger.Info().Msg("track unpublished")
	return nil
}

// DisableAll disables every medium; audio and video are torn down in parallel.
func (m *Manager) DisableAll(ctx context.Context) error {
	var g errgroup.Group
	for _, kind := range domain.MediaKinds {
		g.Go(func() error { return m.Disable(ctx, kind) })
	}
	return g.Wait()
}

// Handle returns a snapshot of kind's current state.
func (m *Manager) Handle(kind domain.MediaKind) (domain.LocalTrackHandle, bool) {
	s, ok := m.slots[kind]
	if !ok {
		return domain.LocalTrackHandle{}, false
	}
	return s.get(), true
}

// Handles returns snapshots of every medium, audio first.
func (m *Manager) Handles() []domain.LocalTrackHandle {
	out := make([]domain.LocalTrackHandle, 0, len(domain.MediaKinds))
	for _, kind := range domain.MediaKinds {
		out = append(out, m.slots[kind].get())
	}
	return out
}

func (m *Manager) release(logger zerolog.Logger, capture domain.CaptureHandle) {
	if err := m.devices.Release(capture); err != nil {
		logger.Error().Err(err).Str("capture", capture.ID()).Msg("device release failed")
	}
}
