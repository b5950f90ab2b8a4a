package model

import "time"

// TokenSet holds the credentials issued for one session.
// It is replaced wholesale on every successful verify or refresh, never
// partially mutated.
type TokenSet struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	MobileNumber          string    `json:"mobileNumber"`
}

// Gender is the self-reported gender on a user profile
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// UserProfile is the application-visible identity. Phone always matches
// the MobileNumber of the TokenSet that authenticated it.
type UserProfile struct {
	ID         string    `json:"id"`
	Phone      string    `json:"phone"`
	Username   string    `json:"username,omitempty"`
	Email      string    `json:"email,omitempty"`
	Age        int       `json:"age,omitempty"`
	Gender     Gender    `json:"gender,omitempty"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// State is the runtime authentication state of a session. It is never
// persisted; it is rebuilt from the stored records at startup.
type State int

const (
	// StateAnonymous: no user, no pending phone.
	StateAnonymous State = iota
	// StateOTPPending: an OTP was requested for the pending phone, not yet verified.
	StateOTPPending
	// StateProfileIncomplete: OTP verified, the backend has no completed
	// profile for the phone yet.
	StateProfileIncomplete
	// StateAuthenticated: a valid UserProfile is held.
	StateAuthenticated
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateOTPPending:
		return "otp_pending"
	case StateProfileIncomplete:
		return "profile_incomplete"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
