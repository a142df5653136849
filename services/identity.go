package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"luminar-api/config"
	"luminar-api/logger"
)

// ErrInvalidToken means the bearer credential was rejected by the identity provider
var ErrInvalidToken = errors.New("invalid access token")

// Identity is what the identity provider vouches for
type Identity struct {
	Subject string
	Email   string
}

// IdentityProvider verifies bearer credentials and resolves profile details
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
	LookupEmail(ctx context.Context, subject string) (string, error)
}

const privyIssuer = "privy.io"

// PrivyIdentityProvider verifies Privy access tokens locally against the
// app's ES256 verification key and reads emails from the Privy REST API.
type PrivyIdentityProvider struct {
	AppID     string
	AppSecret string
	APIURL    string
	Client    *http.Client
	Clock     clockwork.Clock

	key *ecdsa.PublicKey
}

func NewPrivyIdentityProvider(cfg config.AuthConfig, client *http.Client) (*PrivyIdentityProvider, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.PrivyVerificationKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse privy verification key: %w", err)
	}
	return &PrivyIdentityProvider{
		AppID:     cfg.PrivyAppID,
		AppSecret: cfg.PrivyAppSecret,
		APIURL:    strings.TrimRight(cfg.PrivyAPIURL, "/"),
		Client:    client,
		Clock:     clockwork.NewRealClock(),
		key:       key,
	}, nil
}

// VerifyToken checks signature, issuer, audience and expiry of a Privy access token
func (p *PrivyIdentityProvider) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return p.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(privyIssuer),
		jwt.WithAudience(p.AppID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.Clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Identity{Subject: claims.Subject}, nil
}

type privyLinkedAccount struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

type privyUser struct {
	ID             string               `json:"id"`
	LinkedAccounts []privyLinkedAccount `json:"linked_accounts"`
}

// LookupEmail fetches the user's profile and returns the first linked email.
// 5xx and network failures are retried with backoff; 4xx is final.
func (p *PrivyIdentityProvider) LookupEmail(ctx context.Context, subject string) (string, error) {
	endpoint := fmt.Sprintf("%s/users/%s", p.APIURL, url.PathEscape(subject))

	var user privyUser
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(p.AppID, p.AppSecret)
		req.Header.Set("privy-app-id", p.AppID)

		resp, err := p.Client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call privy: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("privy returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode privy user: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		return "", err
	}

	for _, acct := range user.LinkedAccounts {
		if acct.Type == "email" && acct.Address != "" {
			return acct.Address, nil
		}
	}
	for _, acct := range user.LinkedAccounts {
		if acct.Email != "" {
			return acct.Email, nil
		}
	}
	return "", nil
}

// DevIdentityProvider treats the bearer token itself as the subject. Dev mode only.
type DevIdentityProvider struct{}

func (DevIdentityProvider) VerifyToken(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	logger.Debug("dev identity accepted", zap.String("subject", token))
	return &Identity{Subject: token}, nil
}

// LookupEmail returns the subject when it looks like an email, so dev
// tokens such as "ops@luminar.dev" can exercise the admin allowlist.
func (DevIdentityProvider) LookupEmail(_ context.Context, subject string) (string, error) {
	if strings.Contains(subject, "@") {
		return subject, nil
	}
	return "", nil
}
