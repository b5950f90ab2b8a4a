package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/homelens/client/internal/model"
)

func newTestStore() (CredentialStore, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewFileStore(fs, "/state"), fs
}

func sampleTokens() model.TokenSet {
	now := time.Now().Truncate(time.Second)
	return model.TokenSet{
		AccessToken:           "access-1",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshToken:          "refresh-1",
		RefreshTokenExpiresAt: now.Add(30 * 24 * time.Hour),
		MobileNumber:          "9876543210",
	}
}

func TestFileStore_TokensRoundTrip(t *testing.T) {
	s, _ := newTestStore()

	if _, ok := s.ReadTokens(); ok {
		t.Fatal("tokens should be absent in a fresh store")
	}

	want := sampleTokens()
	if err := s.WriteTokens(want); err != nil {
		t.Fatalf("WriteTokens: %v", err)
	}

	got, ok := s.ReadTokens()
	if !ok {
		t.Fatal("tokens should be present after write")
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("tokens mismatch: got %+v want %+v", got, want)
	}
	if got.MobileNumber != want.MobileNumber {
		t.Errorf("mobile number not preserved: got %q", got.MobileNumber)
	}
	if !got.AccessTokenExpiresAt.Equal(want.AccessTokenExpiresAt) {
		t.Errorf("access expiry mismatch: got %v want %v", got.AccessTokenExpiresAt, want.AccessTokenExpiresAt)
	}

	if err := s.ClearTokens(); err != nil {
		t.Fatalf("ClearTokens: %v", err)
	}
	if _, ok := s.ReadTokens(); ok {
		t.Error("tokens should be absent after clear")
	}
}

func TestFileStore_MalformedRecordsReadAsAbsent(t *testing.T) {
	s, fs := newTestStore()

	if err := afero.WriteFile(fs, "/state/auth.json", []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/state/user.json", []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.ReadTokens(); ok {
		t.Error("corrupt token record should read as absent")
	}
	if _, ok := s.ReadUser(); ok {
		t.Error("corrupt user record should read as absent")
	}
}

func TestFileStore_TokensWithoutExpiryAreAbsent(t *testing.T) {
	s, fs := newTestStore()

	// Wire-shaped but missing both expiries: not a usable record.
	raw := []byte(`{"accessToken":"a","refreshToken":"r","mobileNumber":"9876543210"}`)
	if err := afero.WriteFile(fs, "/state/auth.json", raw, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.ReadTokens(); ok {
		t.Error("token record without expiries should read as absent")
	}
}

func TestFileStore_UserRoundTrip(t *testing.T) {
	s, _ := newTestStore()

	want := model.UserProfile{
		ID:         "9876543210",
		Phone:      "9876543210",
		Username:   "Asha",
		Age:        29,
		Gender:     model.GenderFemale,
		IsVerified: true,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
	if err := s.WriteUser(want); err != nil {
		t.Fatalf("WriteUser: %v", err)
	}

	got, ok := s.ReadUser()
	if !ok {
		t.Fatal("user should be present after write")
	}
	if got.Username != want.Username || got.Phone != want.Phone || !got.IsVerified {
		t.Errorf("user mismatch: got %+v", got)
	}

	if err := s.ClearUser(); err != nil {
		t.Fatalf("ClearUser: %v", err)
	}
	if _, ok := s.ReadUser(); ok {
		t.Error("user should be absent after clear")
	}
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	if err := s.ClearTokens(); err != nil {
		t.Errorf("clearing absent tokens should not fail: %v", err)
	}
	if err := s.ClearUser(); err != nil {
		t.Errorf("clearing absent user should not fail: %v", err)
	}
}

func TestFileStore_DeviceIDIsStable(t *testing.T) {
	s, _ := newTestStore()

	first, err := s.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("device id should be a UUID, got %q", first)
	}

	for i := 0; i < 3; i++ {
		again, err := s.DeviceID()
		if err != nil {
			t.Fatalf("DeviceID: %v", err)
		}
		if again != first {
			t.Fatalf("device id changed between calls: %q then %q", first, again)
		}
	}
}
