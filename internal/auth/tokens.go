package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homelens/client/internal/api"
	"github.com/homelens/client/internal/model"
	"github.com/homelens/client/internal/store"
)

// DefaultExpiryBuffer is subtracted from a token's expiry before the
// comparison with now, so a token is treated as expired slightly before
// the server would reject it.
const DefaultExpiryBuffer = 30 * time.Second

// IsExpired reports whether a credential with the given expiry is no
// longer usable. A zero expiry (absent record) is always expired.
func IsExpired(expiresAt time.Time, buffer time.Duration) bool {
	if expiresAt.IsZero() {
		return true
	}
	return !expiresAt.Add(-buffer).After(time.Now())
}

// RefreshFailedError is the unrecoverable outcome of a silent refresh
// attempt: network failure or a rejection from the backend. It carries
// the mobile number the lost session belonged to so the caller can
// offer re-authentication without re-entering the phone.
type RefreshFailedError struct {
	MobileNumber string
	Err          error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// TokenLifecycle decides whether the stored access token is usable,
// refreshes it when expired, and invalidates persisted credentials when
// refresh is impossible. It never touches session state; that belongs
// to Session.
type TokenLifecycle struct {
	store  store.CredentialStore
	api    *api.Client
	log    *zap.Logger
	buffer time.Duration
}

// NewTokenLifecycle creates a lifecycle manager over the given store
// and backend client
func NewTokenLifecycle(credStore store.CredentialStore, client *api.Client, logger *zap.Logger) *TokenLifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenLifecycle{
		store:  credStore,
		api:    client,
		log:    logger,
		buffer: DefaultExpiryBuffer,
	}
}

// Refresh exchanges the refresh token for a new TokenSet, persists it
// and returns it. MobileNumber is carried over from the old set.
func (l *TokenLifecycle) Refresh(ctx context.Context, tokens model.TokenSet) (model.TokenSet, error) {
	deviceID, err := l.store.DeviceID()
	if err != nil {
		return model.TokenSet{}, fmt.Errorf("device id: %w", err)
	}

	resp, err := l.api.Refresh(ctx, tokens.RefreshToken, deviceID)
	if err != nil {
		return model.TokenSet{}, err
	}

	next := model.TokenSet{
		AccessToken:           resp.AccessToken,
		AccessTokenExpiresAt:  resp.AccessTokenExpiresAt,
		RefreshToken:          resp.RefreshToken,
		RefreshTokenExpiresAt: resp.RefreshTokenExpiresAt,
		MobileNumber:          tokens.MobileNumber,
	}
	if err := l.store.WriteTokens(next); err != nil {
		// Storage failures stay local; the refreshed set is still usable
		// for the rest of this run.
		l.log.Warn("persist refreshed tokens", zap.Error(err))
	}
	l.log.Debug("access token refreshed", zap.Time("expiresAt", next.AccessTokenExpiresAt))
	return next, nil
}

// EnsureAccessToken returns a currently valid access token, or "" when
// none can be obtained. The unexpired-token fast path makes no network
// call. When both tokens are expired the stored set is cleared. A
// failed refresh clears all persisted auth and user state and is
// reported as *RefreshFailedError so the session can run its recovery
// transition; no other error shape crosses this boundary.
func (l *TokenLifecycle) EnsureAccessToken(ctx context.Context) (string, error) {
	tokens, ok := l.store.ReadTokens()
	if !ok {
		return "", nil
	}

	if !IsExpired(tokens.AccessTokenExpiresAt, l.buffer) {
		return tokens.AccessToken, nil
	}

	if IsExpired(tokens.RefreshTokenExpiresAt, l.buffer) {
		// Session cannot be salvaged; don't bother the backend.
		if err := l.store.ClearTokens(); err != nil {
			l.log.Warn("clear expired tokens", zap.Error(err))
		}
		return "", nil
	}

	next, err := l.Refresh(ctx, tokens)
	if err != nil {
		l.log.Warn("silent refresh failed", zap.Error(err))
		if cerr := l.store.ClearTokens(); cerr != nil {
			l.log.Warn("clear tokens after failed refresh", zap.Error(cerr))
		}
		if cerr := l.store.ClearUser(); cerr != nil {
			l.log.Warn("clear user after failed refresh", zap.Error(cerr))
		}
		return "", &RefreshFailedError{MobileNumber: tokens.MobileNumber, Err: err}
	}
	return next.AccessToken, nil
}
