// Package token provides the credential sources a call can join with.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

const defaultBackendTimeout = 10 * time.Second

// BackendProvisioner asks the application backend to mint provider tokens.
type BackendProvisioner struct {
	BaseURL string
	// Bearer, when set, returns the user's API token for the Authorization header.
	Bearer func() string
	Client *http.Client
	// TTL is the lifetime assumed for issued tokens; zero means unknown.
	TTL time.Duration
}

type tokenRequest struct {
	ChannelName string    `json:"channelName"`
	UID         string    `json:"uid"`
	Role        core.Role `json:"role"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (p *BackendProvisioner) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: defaultBackendTimeout}
}

func (p *BackendProvisioner) RequestToken(ctx context.Context, channel domain.ChannelName, identity domain.Identity, role core.Role) (core.Credential, error) {
	body, err := json.Marshal(tokenRequest{ChannelName: string(channel), UID: string(identity), Role: role})
	if err != nil {
		return core.Credential{}, err
	}
	url := strings.TrimRight(p.BaseURL, "/") + "/agora/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.Credential{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Bearer != nil {
		if tok := p.Bearer(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	logger := log.With().Str("module", "token").Str("channel", string(channel)).Str("identity", string(identity)).Logger()
	start := time.Now()
	resp, err := p.client().Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("token request failed")
		return core.Credential{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return core.Credential{}, fmt.Errorf("%w: backend returned %d", core.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.Credential{}, fmt.Errorf("%w: backend returned %d: %s", core.ErrUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.Credential{}, fmt.Errorf("%w: decode token response: %v", core.ErrUnavailable, err)
	}
	if out.Token == "" {
		return core.Credential{}, fmt.Errorf("%w: empty token", core.ErrUnavailable)
	}

	logger.Debug().Dur("took", time.Since(start)).Msg("token issued")
	cred := core.Credential{Token: out.Token, Channel: channel, Identity: identity}
	if p.TTL > 0 {
		cred.ExpiresAt = start.Add(p.TTL)
	}
	return cred, nil
}
