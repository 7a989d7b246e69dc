package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/telecall/internal/config"
)

func TestStartLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewStartLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	require.True(t, rl.Allow("a"))
}

func TestStartLimiterDisabled(t *testing.T) {
	rl := NewStartLimiter(0, time.Minute)
	for range 100 {
		require.True(t, rl.Allow("a"))
	}
	var nilLimiter *StartLimiter
	require.True(t, nilLimiter.Allow("a"))
}

func TestStartIsRateLimited(t *testing.T) {
	svc := &fakeService{}
	r, _ := newTestRouter(t, svc, func(c *config.Config) { c.StartLimit = 1; c.StartInterval = time.Minute })
	cookie := &http.Cookie{Name: clientTokenCookie, Value: "browser-1"}

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/call/start", `{"channel":"standup"}`, cookie).Code)
	require.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/api/call/start", `{"channel":"standup"}`, cookie).Code)
	require.Len(t, svc.starts, 1)
}
