package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/domain"
)

func (o *Orchestrator) ToggleAudio(ctx context.Context, enabled bool) error {
	return o.toggle(ctx, domain.MediaAudio, enabled)
}

func (o *Orchestrator) ToggleVideo(ctx context.Context, enabled bool) error {
	return o.toggle(ctx, domain.MediaVideo, enabled)
}

// toggle is only legal while Joined. A failure leaves the other medium and
// the session untouched.
func (o *Orchestrator) toggle(ctx context.Context, kind domain.MediaKind, enabled bool) error {
	op := "toggle " + string(kind)

	o.mu.Lock()
	a, state := o.current, o.state
	o.mu.Unlock()
	if a == nil || state != domain.StateJoined {
		return domain.NewCallError(domain.KindInvalidState, op, fmt.Errorf("session is %s", state))
	}
	if enabled && !o.policy().Allows(a.session.Mode, kind) {
		return domain.NewCallError(domain.KindInvalidState, op,
			fmt.Errorf("%s not allowed in %s mode", kind, a.session.Mode))
	}

	stepCtx, release := a.bind(ctx)
	defer release()

	log.Debug().
		Str("module", "orch").
		Str("sid", string(a.session.ID)).
		Str("kind", string(kind)).
		Bool("enabled", enabled).
		Msg("toggle media")

	if !enabled {
		return o.Tracks.Disable(stepCtx, kind)
	}
	if _, err := o.Tracks.Enable(stepCtx, kind); err != nil {
		return err
	}
	// The session may have ended while the device was opening.
	if a.ctx.Err() != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.leaveTimeout())
		defer cancel()
		if err := o.Tracks.Disable(ctx, kind); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("kind", string(kind)).Msg("undo late enable")
		}
		return domain.NewCallError(domain.KindCanceled, op, context.Cause(a.ctx))
	}
	return nil
}
