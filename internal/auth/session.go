package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homelens/client/internal/api"
	"github.com/homelens/client/internal/model"
	"github.com/homelens/client/internal/store"
)

// ProfileInput is the data submitted to complete a new user's profile
type ProfileInput struct {
	Username string
	Email    string
	Age      int
	Gender   model.Gender
}

// Session drives the phone -> OTP -> profile-completion flow and exposes
// the current authentication state. It is the only writer of that state.
// Operations are serialized on a per-session lock; the observable state
// is guarded separately so reads never wait on an in-flight network call.
type Session struct {
	ops sync.Mutex
	mu  sync.RWMutex

	store  store.CredentialStore
	api    *api.Client
	tokens *TokenLifecycle
	log    *zap.Logger

	state        model.State
	user         *model.UserProfile
	pendingPhone string
	otpSent      bool
	inFlight     int
}

// New creates a session hydrated from the persisted records: a stored
// profile yields an authenticated session, otherwise it starts anonymous.
func New(credStore store.CredentialStore, client *api.Client, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		store:  credStore,
		api:    client,
		tokens: NewTokenLifecycle(credStore, client, logger),
		log:    logger,
		state:  model.StateAnonymous,
	}
	if u, ok := credStore.ReadUser(); ok {
		s.user = &u
		s.state = model.StateAuthenticated
		logger.Debug("session hydrated", zap.String("phone", maskPhone(u.Phone)))
	}
	return s
}

// Login requests an OTP for the phone number. On success the session
// moves to OTPPending; on backend failure the state does not change and
// the error is returned for display.
func (s *Session) Login(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrPhoneRequired
	}

	s.ops.Lock()
	defer s.ops.Unlock()
	s.beginOp()
	defer s.endOp()

	if err := s.api.SendOTP(ctx, phone); err != nil {
		s.log.Debug("otp send failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.state = model.StateOTPPending
	s.pendingPhone = phone
	s.otpSent = true
	s.mu.Unlock()

	s.log.Info("otp sent", zap.String("phone", maskPhone(phone)))
	return nil
}

// VerifyOTP exchanges the code for a token bundle. The returned bool is
// true for a new user who still has to complete a profile.
func (s *Session) VerifyOTP(ctx context.Context, otp string) (isNewUser bool, err error) {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return false, ErrOTPRequired
	}

	s.ops.Lock()
	defer s.ops.Unlock()
	s.beginOp()
	defer s.endOp()

	phone := s.PendingPhone()
	if phone == "" {
		return false, ErrNoPendingLogin
	}

	deviceID, err := s.store.DeviceID()
	if err != nil {
		return false, fmt.Errorf("device id: %w", err)
	}

	resp, err := s.api.VerifyOTP(ctx, phone, otp, deviceID)
	if err != nil {
		return false, err
	}

	// The token bundle is persisted unconditionally, before any profile
	// decision.
	tokens := model.TokenSet{
		AccessToken:           resp.AccessToken,
		AccessTokenExpiresAt:  resp.AccessTokenExpiresAt,
		RefreshToken:          resp.RefreshToken,
		RefreshTokenExpiresAt: resp.RefreshTokenExpiresAt,
		MobileNumber:          phone,
	}
	if werr := s.store.WriteTokens(tokens); werr != nil {
		s.log.Warn("persist tokens", zap.Error(werr))
	}

	if !resp.IsSignedIn {
		s.mu.Lock()
		s.state = model.StateProfileIncomplete
		s.mu.Unlock()
		return true, nil
	}

	user := s.adoptOrSynthesizeProfile(phone)
	s.mu.Lock()
	s.user = &user
	s.state = model.StateAuthenticated
	s.mu.Unlock()
	s.log.Info("signed in", zap.String("phone", maskPhone(phone)))
	return false, nil
}

// adoptOrSynthesizeProfile resolves the profile for a returning user: a
// cached profile for the same phone is adopted as-is; without one (fresh
// device) a minimal verified profile is synthesized and persisted. The
// synthesized record is degraded data: the backend considers the user
// signed in but offers no endpoint to fetch the canonical profile.
func (s *Session) adoptOrSynthesizeProfile(phone string) model.UserProfile {
	if cached, ok := s.store.ReadUser(); ok && cached.Phone == phone {
		return cached
	}
	user := model.UserProfile{
		ID:         phone,
		Phone:      phone,
		IsVerified: true,
		CreatedAt:  time.Now(),
	}
	if err := s.store.WriteUser(user); err != nil {
		s.log.Warn("persist synthesized profile", zap.Error(err))
	}
	return user
}

// CompleteProfile submits the profile data for a freshly verified user
// and moves the session to Authenticated. Returns ErrSessionExpired when
// no usable access token can be obtained; the caller must restart at
// Login.
func (s *Session) CompleteProfile(ctx context.Context, input ProfileInput) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.beginOp()
	defer s.endOp()

	phone := s.PendingPhone()
	if phone == "" {
		return ErrNoPendingLogin
	}

	accessToken := s.ensureAccessToken(ctx)
	if accessToken == "" {
		return ErrSessionExpired
	}

	deviceID, err := s.store.DeviceID()
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	err = s.api.SignIn(ctx, accessToken, api.SignInRequest{
		UserName: input.Username,
		Age:      input.Age,
		Email:    input.Email,
		DeviceID: deviceID,
	})
	if err != nil {
		return err
	}

	user := model.UserProfile{
		ID:         phone,
		Phone:      phone,
		Username:   input.Username,
		Email:      input.Email,
		Age:        input.Age,
		Gender:     input.Gender,
		IsVerified: true,
		CreatedAt:  time.Now(),
	}
	if werr := s.store.WriteUser(user); werr != nil {
		s.log.Warn("persist profile", zap.Error(werr))
	}

	s.mu.Lock()
	s.user = &user
	s.state = model.StateAuthenticated
	s.otpSent = false
	s.mu.Unlock()

	s.log.Info("profile completed", zap.String("phone", maskPhone(phone)))
	return nil
}

// Logout clears all persisted and in-memory session state. It makes no
// network call and always succeeds.
func (s *Session) Logout() {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.store.ClearTokens(); err != nil {
		s.log.Warn("clear tokens", zap.Error(err))
	}
	if err := s.store.ClearUser(); err != nil {
		s.log.Warn("clear user", zap.Error(err))
	}

	s.mu.Lock()
	s.user = nil
	s.pendingPhone = ""
	s.otpSent = false
	s.state = model.StateAnonymous
	s.mu.Unlock()

	s.log.Info("logged out")
}

// ensureAccessToken is the only place silent re-authentication happens.
// A failed refresh collapses the session: persisted credentials are
// already cleared by the lifecycle manager, and when the mobile number
// is known an OTP re-send is attempted so the user can re-authenticate
// without re-entering the phone. All failure paths resolve to a state
// transition; nothing escapes as an error.
func (s *Session) ensureAccessToken(ctx context.Context) string {
	token, err := s.tokens.EnsureAccessToken(ctx)
	if err == nil {
		return token
	}

	var refreshErr *RefreshFailedError
	if !errors.As(err, &refreshErr) {
		// EnsureAccessToken only reports RefreshFailedError, but don't
		// let an unexpected shape past this boundary either.
		s.log.Warn("unexpected ensure-access-token failure", zap.Error(err))
		return ""
	}

	phone := refreshErr.MobileNumber
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if phone == "" {
		s.transitionAnonymous()
		return ""
	}

	if sendErr := s.api.SendOTP(ctx, phone); sendErr != nil {
		s.log.Warn("otp re-send after failed refresh", zap.String("phone", maskPhone(phone)), zap.Error(sendErr))
		s.transitionAnonymous()
		return ""
	}

	s.mu.Lock()
	s.pendingPhone = phone
	s.otpSent = true
	s.state = model.StateOTPPending
	s.mu.Unlock()
	s.log.Info("session recovered to otp_pending", zap.String("phone", maskPhone(phone)))
	return ""
}

func (s *Session) transitionAnonymous() {
	s.mu.Lock()
	s.pendingPhone = ""
	s.otpSent = false
	s.state = model.StateAnonymous
	s.mu.Unlock()
}

func (s *Session) beginOp() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *Session) endOp() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

// State returns the current session state
func (s *Session) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns a copy of the authenticated profile, or nil
func (s *Session) User() *model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a profile is held
func (s *Session) IsAuthenticated() bool {
	return s.User() != nil
}

// IsLoading reports whether a network operation owned by this session
// is in flight
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

// PendingPhone returns the phone number awaiting OTP verification
func (s *Session) PendingPhone() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingPhone
}

// OTPSent reports whether an OTP was sent for the pending phone
func (s *Session) OTPSent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.otpSent
}

// maskPhone masks a phone number for logging (e.g. 98******10)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
