// Package media opens local cameras and microphones through pion/mediadevices.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

type Options struct {
	VideoWidth   int
	VideoHeight  int
	VideoBitRate int
}

// Capture is one open device track. It implements domain.CaptureHandle and
// hands its webrtc.TrackLocal to the transport.
type Capture struct {
	kind  domain.MediaKind
	track mediadevices.Track
}

func (c *Capture) ID() string              { return c.track.ID() }
func (c *Capture) Kind() domain.MediaKind { return c.kind }

func (c *Capture) TrackLocal() webrtc.TrackLocal { return c.track }

// Devices implements core.MediaDevices. It is safe for concurrent use.
type Devices struct {
	opts     Options
	selector *mediadevices.CodecSelector

	mu   sync.Mutex
	open map[string]*Capture
}

// NewDevices prepares the encoders. On platforms without capture drivers the
// returned Devices reports every device as unavailable.
func NewDevices(opts Options) (*Devices, error) {
	sel, err := newCodecSelector(opts)
	if err != nil {
		return nil, fmt.Errorf("media: codecs: %w", err)
	}
	if sel == nil {
		log.Warn().Str("module", "media").Msg("local capture not supported on this platform")
	} else {
		for _, d := range mediadevices.EnumerateDevices() {
			log.Debug().Str("module", "media").Str("label", d.Label).Str("kind", fmt.Sprint(d.Kind)).Msg("device found")
		}
	}
	return &Devices{
		opts:     opts,
		selector: sel,
		open:     make(map[string]*Capture),
	}, nil
}

// Populate registers the codecs the captures encode with, so the transport
// negotiates what the devices produce.
func (d *Devices) Populate(me *webrtc.MediaEngine) error {
	if d.selector == nil {
		return me.RegisterDefaultCodecs()
	}
	d.selector.Populate(me)
	return nil
}

func (d *Devices) constraints(kind domain.MediaKind) mediadevices.MediaStreamConstraints {
	c := mediadevices.MediaStreamConstraints{Codec: d.selector}
	switch kind {
	case domain.MediaAudio:
		c.Audio = func(*mediadevices.MediaTrackConstraints) {}
	case domain.MediaVideo:
		c.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras feed the encoder broken frames.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if d.opts.VideoWidth > 0 {
				mc.Width = prop.IntRanged{Max: d.opts.VideoWidth}
			}
			if d.opts.VideoHeight > 0 {
				mc.Height = prop.IntRanged{Max: d.opts.VideoHeight}
			}
		}
	}
	return c
}

func (d *Devices) Acquire(ctx context.Context, kind domain.MediaKind) (domain.CaptureHandle, error) {
	if kind != domain.MediaAudio && kind != domain.MediaVideo {
		return nil, fmt.Errorf("%w: unknown media kind %q", core.ErrDeviceUnavailable, kind)
	}
	if d.selector == nil {
		return nil, fmt.Errorf("%w: no capture drivers for %s", core.ErrDeviceUnavailable, kind)
	}

	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := mediadevices.GetUserMedia(d.constraints(kind))
		done <- result{stream: s, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		// the driver cannot be interrupted; close whatever it opens late
		go func() {
			if late := <-done; late.err == nil {
				closeStream(late.stream)
			}
		}()
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, classify(r.err)
	}

	var picked mediadevices.Track
	for _, t := range r.stream.GetTracks() {
		if picked == nil && t.Kind() == rtpKind(kind) {
			picked = t
			continue
		}
		_ = t.Close()
	}
	if picked == nil {
		return nil, fmt.Errorf("%w: no %s track in stream", core.ErrDeviceUnavailable, kind)
	}

	c := &Capture{kind: kind, track: picked}
	logger := log.With().Str("module", "media").Str("kind", string(kind)).Str("capture", c.ID()).Logger()
	picked.OnEnded(func(err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("capture ended")
		}
	})

	d.mu.Lock()
	d.open[c.ID()] = c
	d.mu.Unlock()
	logger.Info().Msg("device acquired")
	return c, nil
}

func (d *Devices) Release(h domain.CaptureHandle) error {
	if h == nil {
		return nil
	}
	d.mu.Lock()
	c, ok := d.open[h.ID()]
	delete(d.open, h.ID())
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if err := c.track.Close(); err != nil {
		return fmt.Errorf("media: close %s: %w", c.kind, err)
	}
	log.Info().Str("module", "media").Str("kind", string(c.kind)).Str("capture", h.ID()).Msg("device released")
	return nil
}

// Open returns how many captures are currently held.
func (d *Devices) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

func rtpKind(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.MediaVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func closeStream(s mediadevices.MediaStream) {
	for _, t := range s.GetTracks() {
		_ = t.Close()
	}
}

// classify maps driver failures onto the core sentinels.
func classify(err error) error {
	if errors.Is(err, core.ErrPermissionDenied) || errors.Is(err, core.ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not permitted") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
}
