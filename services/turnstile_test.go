package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luminar-api/config"
)

func TestTurnstileVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "shh", r.PostForm.Get("secret"))
		assert.Equal(t, "203.0.113.9", r.PostForm.Get("remoteip"))

		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(config.TurnstileConfig{SecretKey: "shh", VerifyURL: srv.URL}, srv.Client())

	ok, err := v.Verify(context.Background(), "good", "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "bad", "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTurnstileVerify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(config.TurnstileConfig{SecretKey: "shh", VerifyURL: srv.URL}, srv.Client())
	_, err := v.Verify(context.Background(), "good", "")
	assert.Error(t, err)
}

func TestRedisReplayGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	guard := NewRedisReplayGuard(rdb, 5*time.Minute)
	ctx := context.Background()

	first, err := guard.MarkUsed(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.MarkUsed(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := guard.MarkUsed(ctx, "token-b")
	require.NoError(t, err)
	assert.True(t, other)

	mr.FastForward(6 * time.Minute)
	expired, err := guard.MarkUsed(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestDevChallengeVerifier(t *testing.T) {
	ok, err := DevChallengeVerifier{}.Verify(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = DevChallengeVerifier{}.Verify(context.Background(), "", "")
	assert.False(t, ok)
}
