package stub

import (
	"context"
	"sync"
	"time"
)

// OTPStore keeps the active OTP per mobile number with a TTL
type OTPStore interface {
	Put(ctx context.Context, mobileNumber, code string, ttl time.Duration) error
	Get(ctx context.Context, mobileNumber string) (string, bool, error)
	Delete(ctx context.Context, mobileNumber string) error
}

// RefreshStore keeps the issued refresh token per (mobile, device)
type RefreshStore interface {
	Put(ctx context.Context, mobileNumber, deviceID, token string, ttl time.Duration) error
	Get(ctx context.Context, mobileNumber, deviceID string) (string, bool, error)
	Delete(ctx context.Context, mobileNumber, deviceID string) error
}

// UserRecord is a completed profile in the user directory
type UserRecord struct {
	MobileNumber string `json:"mobileNumber"`
	DeviceID     string `json:"deviceId,omitempty"`
	UserName     string `json:"userName,omitempty"`
	Age          int    `json:"age,omitempty"`
	Email        string `json:"email,omitempty"`
}

// UserDirectory records which mobile numbers completed a profile;
// Exists drives the isSignedIn flag on verify.
type UserDirectory interface {
	Exists(ctx context.Context, mobileNumber string) (bool, error)
	Save(ctx context.Context, rec UserRecord) error
}

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired() bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(time.Now())
}

// memKV is a TTL-aware in-process key-value map
type memKV struct {
	mu      sync.Mutex
	entries map[string]entry
}

func newMemKV() *memKV {
	return &memKV{entries: make(map[string]entry)}
}

func (m *memKV) put(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *memKV) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if e.expired() {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *memKV) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// MemoryOTPStore is the default in-process OTPStore
type MemoryOTPStore struct{ kv *memKV }

// NewMemoryOTPStore creates an empty in-memory OTP store
func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{kv: newMemKV()}
}

func (s *MemoryOTPStore) Put(_ context.Context, mobileNumber, code string, ttl time.Duration) error {
	s.kv.put(otpKey(mobileNumber), code, ttl)
	return nil
}

func (s *MemoryOTPStore) Get(_ context.Context, mobileNumber string) (string, bool, error) {
	code, ok := s.kv.get(otpKey(mobileNumber))
	return code, ok, nil
}

func (s *MemoryOTPStore) Delete(_ context.Context, mobileNumber string) error {
	s.kv.delete(otpKey(mobileNumber))
	return nil
}

// MemoryRefreshStore is the default in-process RefreshStore
type MemoryRefreshStore struct{ kv *memKV }

// NewMemoryRefreshStore creates an empty in-memory refresh store
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{kv: newMemKV()}
}

func (s *MemoryRefreshStore) Put(_ context.Context, mobileNumber, deviceID, token string, ttl time.Duration) error {
	s.kv.put(refreshKey(mobileNumber, deviceID), token, ttl)
	return nil
}

func (s *MemoryRefreshStore) Get(_ context.Context, mobileNumber, deviceID string) (string, bool, error) {
	token, ok := s.kv.get(refreshKey(mobileNumber, deviceID))
	return token, ok, nil
}

func (s *MemoryRefreshStore) Delete(_ context.Context, mobileNumber, deviceID string) error {
	s.kv.delete(refreshKey(mobileNumber, deviceID))
	return nil
}

// MemoryUserDirectory is the default in-process UserDirectory
type MemoryUserDirectory struct {
	mu    sync.Mutex
	users map[string]UserRecord
}

// NewMemoryUserDirectory creates an empty in-memory user directory
func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{users: make(map[string]UserRecord)}
}

func (d *MemoryUserDirectory) Exists(_ context.Context, mobileNumber string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[mobileNumber]
	return ok, nil
}

func (d *MemoryUserDirectory) Save(_ context.Context, rec UserRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[rec.MobileNumber] = rec
	return nil
}

func otpKey(mobileNumber string) string {
	return "otp:" + mobileNumber
}

func refreshKey(mobileNumber, deviceID string) string {
	return "refresh:" + mobileNumber + ":" + deviceID
}

func userKey(mobileNumber string) string {
	return "user:" + mobileNumber
}
