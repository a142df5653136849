package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"luminar-api/config"
)

// ChallengeVerifier checks one-time bot-check tokens
type ChallengeVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// ReplayGuard remembers challenge tokens that were already spent
type ReplayGuard interface {
	// MarkUsed records token and reports whether this was its first use
	MarkUsed(ctx context.Context, token string) (bool, error)
}

// TurnstileVerifier calls Cloudflare Turnstile siteverify
type TurnstileVerifier struct {
	SecretKey string
	VerifyURL string
	Client    *http.Client
}

func NewTurnstileVerifier(cfg config.TurnstileConfig, client *http.Client) *TurnstileVerifier {
	return &TurnstileVerifier{SecretKey: cfg.SecretKey, VerifyURL: cfg.VerifyURL, Client: client}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.SecretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	var out siteverifyResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.VerifyURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := v.Client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call siteverify: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("siteverify returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("siteverify returned status %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode siteverify response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)); err != nil {
		return false, err
	}
	return out.Success, nil
}

// DevChallengeVerifier accepts any non-empty token. Dev mode only.
type DevChallengeVerifier struct{}

func (DevChallengeVerifier) Verify(_ context.Context, token, _ string) (bool, error) {
	return token != "", nil
}

// RedisReplayGuard stores a hash of each spent token with a TTL at least as
// long as the token's own validity window.
type RedisReplayGuard struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewRedisReplayGuard(rdb *redis.Client, ttl time.Duration) *RedisReplayGuard {
	return &RedisReplayGuard{RDB: rdb, TTL: ttl}
}

func (g *RedisReplayGuard) MarkUsed(ctx context.Context, token string) (bool, error) {
	sum := sha256.Sum256([]byte(token))
	key := "turnstile:used:" + hex.EncodeToString(sum[:])
	first, err := g.RDB.SetNX(ctx, key, 1, g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record challenge token: %w", err)
	}
	return first, nil
}
