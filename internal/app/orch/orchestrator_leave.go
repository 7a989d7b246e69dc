package orch

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/domain"
)

var errStopped = domain.NewCallError(domain.KindCanceled, "start", context.Canceled)

// Stop ends the current session from whatever point it reached. It is
// idempotent and a no-op when Idle. ctx bounds only the wait for an
// in-flight Start: when it runs out, resources are released anyway and the
// session stays Leaving until Start returns and undoes its late steps.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	a := o.current
	if a == nil {
		o.mu.Unlock()
		return nil
	}
	leaving := o.state != domain.StateFailed && o.state != domain.StateLeaving
	if leaving {
		o.state = domain.StateLeaving
	}
	o.mu.Unlock()
	if leaving {
		o.emitState(domain.StateLeaving)
	}

	logger := log.With().
		Str("module", "orch").
		Str("sid", string(a.session.ID)).
		Uint64("epoch", a.epoch).
		Logger()
	logger.Info().Msg("stopping call")

	a.cancel(errStopped)
	select {
	case <-a.forward:
	case <-ctx.Done():
		o.mu.Lock()
		if !a.forwardDone {
			a.abandoned = true
		}
		o.mu.Unlock()
		logger.Warn().Err(ctx.Err()).Msg("start did not unwind in time, tearing down anyway")
	}
	o.teardown(a)
	logger.Info().Msg("call stopped")
	return nil
}

// teardown releases everything a acquired. It runs once per attempt;
// concurrent callers wait for the first to finish.
func (o *Orchestrator) teardown(a *attempt) {
	a.leaveOnce.Do(func() {
		defer close(a.left)
		a.cancel(errStopped)
		<-a.loopDone

		logger := log.With().Str("module", "orch").Str("sid", string(a.session.ID)).Logger()
		cleared := o.release(a, logger)

		o.mu.Lock()
		hold := a.abandoned
		o.mu.Unlock()
		if !hold {
			o.finish(a)
		}
		if cleared > 0 {
			o.emitParticipants()
		}
		logger.Debug().Int("participants", cleared).Bool("held", hold).Msg("session torn down")
	})
	<-a.left
}

// endForward runs when Start returns. If Stop stopped waiting for it, a
// step may have succeeded after teardown; those are undone here before the
// session goes Idle.
func (o *Orchestrator) endForward(a *attempt) {
	o.mu.Lock()
	a.forwardDone = true
	close(a.forward)
	abandoned := a.abandoned
	o.mu.Unlock()
	if !abandoned {
		return
	}

	o.teardown(a)
	o.mu.Lock()
	stale := o.current != a
	o.mu.Unlock()
	if stale {
		return
	}

	logger := log.With().Str("module", "orch").Str("sid", string(a.session.ID)).Logger()
	logger.Warn().Msg("undoing steps that completed after stop")
	cleared := o.release(a, logger)
	o.finish(a)
	if cleared > 0 {
		o.emitParticipants()
	}
}

// release disables local media, leaves the provider and clears the
// registry. It returns how many participants were dropped.
func (o *Orchestrator) release(a *attempt, logger zerolog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), o.leaveTimeout())
	defer cancel()

	if err := o.Tracks.DisableAll(ctx); err != nil {
		logger.Warn().Err(err).Msg("disable local tracks")
	}
	if a.connected.Load() {
		if err := o.Transport.Disconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("disconnect transport")
		}
	}
	return o.Registry.Clear()
}

// finish returns the orchestrator to Idle if a is still the current attempt.
func (o *Orchestrator) finish(a *attempt) {
	o.mu.Lock()
	done := o.current == a
	if done {
		o.current = nil
		o.state = domain.StateIdle
	}
	o.mu.Unlock()
	if done {
		o.emitState(domain.StateIdle)
	}
}
