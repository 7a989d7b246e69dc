package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

// StartRequest describes the call to join. A non-empty Token skips the
// provisioner and is used as the join credential directly.
type StartRequest struct {
	Channel  domain.ChannelName
	Identity domain.Identity
	Mode     domain.CallMode
	Token    string
}

// Start joins req.Channel and brings up local media. It returns only after
// the session is Joined or, on failure, after everything it opened has been
// released again.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) error {
	sess, err := domain.NewCallSession(req.Channel, req.Identity, req.Mode)
	if err != nil {
		return domain.NewCallError(domain.KindInvalidRequest, "start", err)
	}

	o.mu.Lock()
	if o.state != domain.StateIdle {
		state := o.state
		o.mu.Unlock()
		return domain.NewCallError(domain.KindAlreadyActive, "start", fmt.Errorf("session is %s", state))
	}
	o.epoch++
	a := newAttempt(o.epoch, *sess)
	o.current = a
	o.state = domain.StateProvisioning
	o.mu.Unlock()
	defer o.endForward(a)
	o.emitState(domain.StateProvisioning)

	logger := log.With().
		Str("module", "orch").
		Str("sid", string(sess.ID)).
		Str("channel", string(sess.Channel)).
		Uint64("epoch", a.epoch).
		Logger()
	logger.Info().Str("identity", string(sess.LocalIdentity)).Str("mode", string(sess.Mode)).Msg("starting call")

	go o.eventLoop(a)

	stepCtx, release := a.bind(ctx)
	defer release()

	cred, err := o.credential(stepCtx, a, req.Token)
	if err != nil {
		return o.abort(a, domain.KindCredential, "provision", err)
	}

	if !o.advance(a, domain.StateProvisioning, domain.StateJoining) {
		return o.superseded(a)
	}
	a.connected.Store(true)
	if err := o.Transport.Connect(stepCtx, cred, a.sink); err != nil {
		return o.abort(a, domain.KindConnection, "connect", err)
	}

	if !o.advance(a, domain.StateJoining, domain.StateJoined) {
		return o.superseded(a)
	}
	logger.Info().Msg("joined channel")

	for _, kind := range o.policy().InitialMedia(sess.Mode) {
		if _, err := o.Tracks.Enable(stepCtx, kind); err != nil {
			kindOfErr := domain.KindOf(err)
			if kindOfErr == "" {
				kindOfErr = domain.KindDeviceUnavailable
			}
			return o.abort(a, kindOfErr, "enable "+string(kind), err)
		}
	}

	o.mu.Lock()
	ok := o.current == a && o.state == domain.StateJoined && a.ctx.Err() == nil
	o.mu.Unlock()
	if !ok {
		return o.superseded(a)
	}
	logger.Info().Msg("call started")
	return nil
}

func (o *Orchestrator) credential(ctx context.Context, a *attempt, token string) (core.Credential, error) {
	if token != "" {
		return core.Credential{
			Token:    token,
			Channel:  a.session.Channel,
			Identity: a.session.LocalIdentity,
		}, nil
	}
	if o.Tokens == nil {
		return core.Credential{}, fmt.Errorf("%w: no token provisioner configured", core.ErrUnavailable)
	}
	cred, err := o.Tokens.RequestToken(ctx, a.session.Channel, a.session.LocalIdentity, core.RolePublisher)
	if err != nil {
		return core.Credential{}, err
	}
	if cred.Token == "" {
		return core.Credential{}, fmt.Errorf("%w: empty token", core.ErrUnauthorized)
	}
	if cred.Expired(time.Now()) {
		return core.Credential{}, fmt.Errorf("%w: token expired at %s", core.ErrUnauthorized, cred.ExpiresAt.Format(time.RFC3339))
	}
	return cred, nil
}

// abort fails the attempt, tears it down and returns the typed error. When
// the attempt was already canceled, the cancel cause wins.
func (o *Orchestrator) abort(a *attempt, kind domain.ErrorKind, op string, err error) error {
	if a.ctx.Err() != nil {
		return o.superseded(a)
	}
	if errors.Is(err, context.Canceled) {
		kind = domain.KindCanceled
	}
	var callErr *domain.CallError
	if !errors.As(err, &callErr) || callErr.Kind != kind {
		callErr = domain.NewCallError(kind, op, err)
	}
	a.cancel(callErr)

	o.mu.Lock()
	failed := o.current == a && o.state != domain.StateLeaving && o.state != domain.StateFailed
	if failed {
		o.state = domain.StateFailed
	}
	o.mu.Unlock()
	if failed {
		o.emitState(domain.StateFailed)
	}

	log.Warn().
		Err(err).
		Str("module", "orch").
		Str("sid", string(a.session.ID)).
		Str("kind", string(kind)).
		Msg("start failed, tearing down")
	o.teardown(a)
	return callErr
}

// superseded finishes an attempt canceled from outside the forward
// sequence and reports why it was cut short.
func (o *Orchestrator) superseded(a *attempt) error {
	o.teardown(a)
	cause := context.Cause(a.ctx)
	var callErr *domain.CallError
	if errors.As(cause, &callErr) {
		return callErr
	}
	return domain.NewCallError(domain.KindCanceled, "start", cause)
}
