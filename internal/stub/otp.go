package stub

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	otpTTL     = 5 * time.Minute
	devOTPCode = "123456"
)

// OTPService issues and verifies one-time codes. There is no SMS
// gateway behind the stub; the generated code is written to the log.
type OTPService struct {
	store   OTPStore
	devMode bool
	log     *zap.Logger
}

// NewOTPService creates the OTP service. In dev mode every issued code
// is the fixed devOTPCode.
func NewOTPService(store OTPStore, devMode bool, logger *zap.Logger) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{store: store, devMode: devMode, log: logger}
}

// Send generates a 6-digit code for the mobile number and stores it
// with a 5-minute TTL, replacing any previous code
func (s *OTPService) Send(ctx context.Context, mobileNumber string) error {
	code := generateCode()
	if s.devMode {
		code = devOTPCode
	}
	if err := s.store.Put(ctx, mobileNumber, code, otpTTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	// A real deployment hands the code to an SMS gateway here.
	s.log.Info("otp generated",
		zap.String("phone", maskPhone(mobileNumber)),
		zap.String("otp", code),
		zap.Duration("ttl", otpTTL))
	return nil
}

// Verify checks the code against the active one for the mobile number
// and consumes it on a match
func (s *OTPService) Verify(ctx context.Context, mobileNumber, code string) (bool, error) {
	stored, ok, err := s.store.Get(ctx, mobileNumber)
	if err != nil {
		return false, fmt.Errorf("load otp: %w", err)
	}
	if !ok {
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if err := s.store.Delete(ctx, mobileNumber); err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}

func generateCode() string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return fmt.Sprintf("%06d", rng.Intn(900000)+100000)
}
