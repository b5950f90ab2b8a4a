package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homelens/client/internal/api"
	"github.com/homelens/client/internal/model"
)

func verifyHandler(t *testing.T, isSignedIn bool) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testPhone, body["mobileNumber"])
		assert.NotEmpty(t, body["deviceId"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"accessToken":           "verified-access",
			"accessTokenExpiresAt":  time.Now().Add(15 * time.Minute).Format(time.RFC3339),
			"refreshToken":          "verified-refresh",
			"refreshTokenExpiresAt": time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
			"isSignedIn":            isSignedIn,
		})
	}
}

func TestLogin_TransitionsToOTPPending(t *testing.T) {
	credStore := newTestStore(t)
	stub := &backendStub{send: okHandler}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	require.NoError(t, s.Login(context.Background(), testPhone))

	assert.Equal(t, model.StateOTPPending, s.State())
	assert.Equal(t, testPhone, s.PendingPhone())
	assert.True(t, s.OTPSent())
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.IsLoading())
}

func TestLogin_BackendFailureLeavesStateUntouched(t *testing.T) {
	credStore := newTestStore(t)
	stub := &backendStub{
		send: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Invalid mobile number", http.StatusBadRequest)
		},
	}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	err := s.Login(context.Background(), testPhone)
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.StateAnonymous, s.State())
	assert.Empty(t, s.PendingPhone())
	assert.False(t, s.OTPSent())
}

func TestLogin_EmptyPhone(t *testing.T) {
	s := New(newTestStore(t), api.New("http://unused", nil), zap.NewNop())
	assert.ErrorIs(t, s.Login(context.Background(), "  "), ErrPhoneRequired)
}

func TestVerifyOTP_WithoutPendingLogin(t *testing.T) {
	s := New(newTestStore(t), api.New("http://unused", nil), zap.NewNop())
	_, err := s.VerifyOTP(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrNoPendingLogin)
}

func TestNewUserFlow(t *testing.T) {
	credStore := newTestStore(t)
	stub := &backendStub{
		send:   okHandler,
		verify: verifyHandler(t, false),
		signIn: func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Asha", body["userName"])
			assert.Equal(t, float64(29), body["age"])
			w.WriteHeader(http.StatusOK)
		},
	}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	require.NoError(t, s.Login(context.Background(), testPhone))

	isNewUser, err := s.VerifyOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, isNewUser)
	assert.Equal(t, model.StateProfileIncomplete, s.State())
	assert.False(t, s.IsAuthenticated())

	persisted, ok := credStore.ReadTokens()
	require.True(t, ok, "token bundle must be persisted on verify")
	assert.Equal(t, testPhone, persisted.MobileNumber)

	err = s.CompleteProfile(context.Background(), ProfileInput{
		Username: "Asha",
		Age:      29,
		Email:    "asha@example.com",
		Gender:   model.GenderFemale,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StateAuthenticated, s.State())
	user := s.User()
	require.NotNil(t, user)
	assert.Equal(t, testPhone, user.Phone)
	assert.Equal(t, "Asha", user.Username)
	assert.True(t, user.IsVerified)
	assert.False(t, s.OTPSent())

	stored, ok := credStore.ReadUser()
	require.True(t, ok)
	assert.Equal(t, "Asha", stored.Username)
	assert.EqualValues(t, 0, stub.refreshCalls, "fresh tokens must not trigger a refresh")
}

func TestReturningUserAdoptsCachedProfile(t *testing.T) {
	credStore := newTestStore(t)
	cached := model.UserProfile{
		ID:         testPhone,
		Phone:      testPhone,
		Username:   "Asha",
		Age:        29,
		IsVerified: true,
		CreatedAt:  time.Now().Add(-48 * time.Hour).Truncate(time.Second),
	}

	stub := &backendStub{send: okHandler, verify: verifyHandler(t, true)}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	require.NoError(t, s.Login(context.Background(), testPhone))

	// Profile cached from an earlier run on this device.
	require.NoError(t, credStore.WriteUser(cached))

	isNewUser, err := s.VerifyOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.False(t, isNewUser)

	user := s.User()
	require.NotNil(t, user)
	assert.Equal(t, "Asha", user.Username, "cached profile must be adopted, not replaced")
	assert.True(t, user.CreatedAt.Equal(cached.CreatedAt))
	assert.Equal(t, model.StateAuthenticated, s.State())
}

func TestReturningUserOnFreshDeviceSynthesizesProfile(t *testing.T) {
	credStore := newTestStore(t)
	stub := &backendStub{send: okHandler, verify: verifyHandler(t, true)}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	require.NoError(t, s.Login(context.Background(), testPhone))

	isNewUser, err := s.VerifyOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.False(t, isNewUser)

	user := s.User()
	require.NotNil(t, user)
	assert.Equal(t, testPhone, user.ID)
	assert.Equal(t, testPhone, user.Phone)
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.Username, "synthesized profile carries no directory data")

	stored, ok := credStore.ReadUser()
	require.True(t, ok, "synthesized profile must be persisted")
	assert.Equal(t, testPhone, stored.Phone)
}

func TestCompleteProfile_SessionExpired(t *testing.T) {
	credStore := newTestStore(t)
	stub := &backendStub{send: okHandler}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	require.NoError(t, s.Login(context.Background(), testPhone))

	// No token bundle was ever stored, so no access token is obtainable.
	err := s.CompleteProfile(context.Background(), ProfileInput{Username: "Asha", Age: 29})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotEqual(t, model.StateAuthenticated, s.State())
}

func TestRefreshFailureRecovery_ResendSucceeds(t *testing.T) {
	credStore := newTestStore(t)
	require.NoError(t, credStore.WriteTokens(storedTokens(-time.Minute, 24*time.Hour)))
	require.NoError(t, credStore.WriteUser(model.UserProfile{ID: testPhone, Phone: testPhone, IsVerified: true}))

	stub := &backendStub{
		refresh: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		},
		send: okHandler,
	}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	token := s.ensureAccessToken(context.Background())
	assert.Empty(t, token)

	assert.Equal(t, model.StateOTPPending, s.State())
	assert.Equal(t, testPhone, s.PendingPhone(), "known mobile number is re-used for the OTP resend")
	assert.True(t, s.OTPSent())
	assert.Nil(t, s.User())
	assert.EqualValues(t, 1, stub.sendCalls)

	_, ok := credStore.ReadTokens()
	assert.False(t, ok)
	_, ok = credStore.ReadUser()
	assert.False(t, ok)
}

func TestRefreshFailureRecovery_ResendFails(t *testing.T) {
	credStore := newTestStore(t)
	require.NoError(t, credStore.WriteTokens(storedTokens(-time.Minute, 24*time.Hour)))

	stub := &backendStub{
		refresh: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		},
		send: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
		},
	}
	srv := stub.start(t)

	s := New(credStore, api.New(srv.URL, nil), zap.NewNop())
	token := s.ensureAccessToken(context.Background())
	assert.Empty(t, token)

	assert.Equal(t, model.StateAnonymous, s.State())
	assert.Empty(t, s.PendingPhone())
	assert.False(t, s.OTPSent())
	assert.Nil(t, s.User())
}

func TestLogoutIsTotal(t *testing.T) {
	credStore := newTestStore(t)
	require.NoError(t, credStore.WriteTokens(storedTokens(time.Hour, 24*time.Hour)))
	require.NoError(t, credStore.WriteUser(model.UserProfile{ID: testPhone, Phone: testPhone, IsVerified: true}))

	s := New(credStore, api.New("http://unused", nil), zap.NewNop())
	require.True(t, s.IsAuthenticated(), "session should hydrate from the stored profile")

	s.Logout()

	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, model.StateAnonymous, s.State())
	assert.Empty(t, s.PendingPhone())
	assert.False(t, s.OTPSent())

	_, ok := credStore.ReadTokens()
	assert.False(t, ok)
	_, ok = credStore.ReadUser()
	assert.False(t, ok)

	// An application restart re-reads storage and still lands anonymous.
	restarted := New(credStore, api.New("http://unused", nil), zap.NewNop())
	assert.Equal(t, model.StateAnonymous, restarted.State())
	assert.False(t, restarted.IsAuthenticated())
}

func TestHydration_FromStoredUser(t *testing.T) {
	credStore := newTestStore(t)
	require.NoError(t, credStore.WriteUser(model.UserProfile{
		ID: testPhone, Phone: testPhone, Username: "Asha", IsVerified: true,
	}))

	s := New(credStore, api.New("http://unused", nil), zap.NewNop())
	assert.Equal(t, model.StateAuthenticated, s.State())
	require.NotNil(t, s.User())
	assert.Equal(t, "Asha", s.User().Username)
}
