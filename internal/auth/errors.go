package auth

import "errors"

var (
	// ErrSessionExpired: no usable access token could be obtained; the
	// caller must restart at Login.
	ErrSessionExpired = errors.New("session expired, verify OTP again")

	// ErrNoPendingLogin: VerifyOTP or CompleteProfile called without a
	// preceding Login for this session.
	ErrNoPendingLogin = errors.New("no pending login")

	// ErrPhoneRequired: Login called with an empty phone number.
	ErrPhoneRequired = errors.New("phone number is required")

	// ErrOTPRequired: VerifyOTP called with an empty code.
	ErrOTPRequired = errors.New("otp is required")
)
