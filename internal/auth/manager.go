// Package auth owns the OAuth token lifecycle: acquire, cache, validate,
// refresh, persist.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/atmosync/atmosync/internal/metrics"
	"github.com/atmosync/atmosync/internal/netatmo"
	"github.com/atmosync/atmosync/internal/netatmo/client"
	"github.com/atmosync/atmosync/internal/store"
)

// Credentials are the OAuth application credentials registered with the
// cloud provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Manager produces currently-valid access tokens, refreshing transparently
// when the cached one has expired.
type Manager struct {
	store   store.TokenStore
	client  *client.Client
	creds   Credentials
	metrics *metrics.Metrics
}

// NewManager creates a Manager. metrics may be nil.
func NewManager(st store.TokenStore, cl *client.Client, creds Credentials, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   st,
		client:  cl,
		creds:   creds,
		metrics: m,
	}
}

// ValidToken returns a usable access token. A missing token, or an expired
// one that could not be refreshed, yields netatmo.ErrAuthRequired.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	token, err := m.store.Token(ctx, netatmo.TokenNameAuth)
	if errors.Is(err, store.ErrNotFound) {
		return "", netatmo.ErrAuthRequired
	}
	if err != nil {
		return "", err
	}

	if token.Valid(time.Now()) {
		return token.Value, nil
	}

	log.Printf("auth: access token expired, refreshing")
	newToken, err := m.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", netatmo.ErrAuthRequired, err)
	}
	return newToken, nil
}

// Refresh exchanges the stored refresh token for a new token pair and
// persists it. On any failure the previously stored tokens are left
// untouched.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	refresh, err := m.store.Token(ctx, netatmo.TokenNameRefresh)
	if errors.Is(err, store.ErrNotFound) {
		return "", netatmo.ErrRefreshTokenMissing
	}
	if err != nil {
		return "", err
	}

	resp, err := m.client.RefreshGrant(ctx, m.creds.ClientID, m.creds.ClientSecret, refresh.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", netatmo.ErrTokenRefreshFailed, err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn == nil {
		return "", fmt.Errorf("%w: incomplete grant response", netatmo.ErrTokenRefreshFailed)
	}

	if err := m.storeTokenPair(ctx, resp); err != nil {
		return "", fmt.Errorf("%w: %w", netatmo.ErrTokenRefreshFailed, err)
	}

	m.metrics.TokenRefresh()
	return resp.AccessToken, nil
}

// Authenticate returns a valid access token, performing a password grant
// only when no cached token can serve. Calling it with a still-valid cached
// token issues no HTTP requests.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (string, error) {
	token, err := m.ValidToken(ctx)
	if err == nil {
		log.Printf("auth: using cached token")
		return token, nil
	}
	if !errors.Is(err, netatmo.ErrAuthRequired) {
		return "", err
	}

	resp, err := m.client.PasswordGrant(ctx, m.creds.ClientID, m.creds.ClientSecret, username, password)
	if err != nil {
		if errors.Is(err, netatmo.ErrTransport) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", netatmo.ErrMalformedAuthResponse, err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn == nil {
		return "", fmt.Errorf("%w: incomplete grant response", netatmo.ErrMalformedAuthResponse)
	}

	if err := m.storeTokenPair(ctx, resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Logout deletes the cached access token; the refresh token is not touched.
// Idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.DeleteToken(ctx, netatmo.TokenNameAuth)
}

func (m *Manager) storeTokenPair(ctx context.Context, resp *client.TokenResponse) error {
	expiresAt := time.Now().Add(time.Duration(*resp.ExpiresIn * float64(time.Second)))
	return m.store.SaveTokenPair(ctx,
		netatmo.Token{Name: netatmo.TokenNameAuth, Value: resp.AccessToken, ExpiresAt: expiresAt},
		netatmo.Token{Name: netatmo.TokenNameRefresh, Value: resp.RefreshToken, ExpiresAt: expiresAt},
	)
}
