package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

type subKey struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

// subscribeResult is posted back to the event loop by a subscribe worker.
// seq identifies the publication it answers.
type subscribeResult struct {
	key   subKey
	seq   uint64
	track domain.RemoteTrack
	err   error
}

// eventLoop applies provider events of a, in delivery order, until a ends.
// Subscriptions run off the loop so a slow one does not hold up the rest.
func (o *Orchestrator) eventLoop(a *attempt) {
	defer close(a.loopDone)
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.events:
			o.handleEvent(a, ev)
		case res := <-a.results:
			o.applySubscription(a, res)
		}
	}
}

func (o *Orchestrator) handleEvent(a *attempt, ev core.Event) {
	logger := log.With().
		Str("module", "orch").
		Str("sid", string(a.session.ID)).
		Str("event", ev.Kind.String()).
		Str("participant", string(ev.Participant)).
		Logger()

	switch ev.Kind {
	case core.EventParticipantJoined:
		if o.Registry.Join(ev.Participant) {
			o.emitParticipants()
		}

	case core.EventParticipantLeft:
		for _, kind := range domain.MediaKinds {
			delete(a.pending, subKey{ev.Participant, kind})
		}
		if o.Registry.Leave(ev.Participant) {
			o.emitParticipants()
		}

	case core.EventMediaPublished:
		if o.Registry.Ensure(ev.Participant) {
			logger.Debug().Msg("media published before join, placeholder created")
			o.emitParticipants()
		}
		key := subKey{ev.Participant, ev.Media}
		a.subSeq++
		a.pending[key] = a.subSeq
		go o.subscribe(a, key, a.subSeq)

	case core.EventMediaUnpublished:
		delete(a.pending, subKey{ev.Participant, ev.Media})
		if o.Registry.ClearTrack(ev.Participant, ev.Media) {
			o.emitParticipants()
		}

	case core.EventConnectionLost:
		o.onConnectionLost(a, ev.Err)

	default:
		logger.Debug().Msg("ignoring unknown event")
	}
}

func (o *Orchestrator) subscribe(a *attempt, key subKey, seq uint64) {
	track, err := o.Transport.Subscribe(a.ctx, key.participant, key.kind)
	select {
	case a.results <- subscribeResult{key: key, seq: seq, track: track, err: err}:
	case <-a.ctx.Done():
	}
}

// applySubscription records a finished subscription unless the
// publication it belongs to was withdrawn or replaced meanwhile.
func (o *Orchestrator) applySubscription(a *attempt, res subscribeResult) {
	logger := log.With().
		Str("module", "orch").
		Str("sid", string(a.session.ID)).
		Str("participant", string(res.key.participant)).
		Str("kind", string(res.key.kind)).
		Logger()

	if a.pending[res.key] != res.seq {
		logger.Debug().Msg("dropping stale subscription")
		return
	}
	delete(a.pending, res.key)
	if res.err != nil {
		logger.Warn().Err(res.err).Msg("subscribe failed")
		return
	}
	if o.Registry.SetTrack(res.key.participant, res.key.kind, res.track) {
		o.emitParticipants()
	}
}

// onConnectionLost fails the session and tears it down. A pending Start
// reports the failure itself; otherwise OnError handlers are told.
func (o *Orchestrator) onConnectionLost(a *attempt, cause error) {
	o.mu.Lock()
	if o.current != a || o.state == domain.StateLeaving || o.state == domain.StateFailed {
		o.mu.Unlock()
		return
	}
	o.state = domain.StateFailed
	o.mu.Unlock()
	o.emitState(domain.StateFailed)

	err := domain.NewCallError(domain.KindProviderDisconnected, "transport", cause)
	log.Warn().Err(cause).Str("module", "orch").Str("sid", string(a.session.ID)).Msg("provider connection lost")
	a.cancel(err)

	select {
	case <-a.forward:
		o.emitError(err)
	default:
	}
	go func() {
		<-a.forward
		o.teardown(a)
	}()
}
