package stub

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var mobileRe = regexp.MustCompile(`^\d{8,15}$`)

type contextKey string

const claimsKey contextKey = "claims"

// Server is an in-process implementation of the HomeLens auth backend,
// used for local development and end-to-end tests
type Server struct {
	signer       *TokenSigner
	otp          *OTPService
	refreshStore RefreshStore
	users        UserDirectory
	refreshTTL   time.Duration
	log          *zap.Logger
	sendLimiter  *rateLimiter
}

// NewServer wires the stub's services together
func NewServer(signer *TokenSigner, otp *OTPService, refreshStore RefreshStore, users UserDirectory, refreshTTL time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		signer:       signer,
		otp:          otp,
		refreshStore: refreshStore,
		users:        users,
		refreshTTL:   refreshTTL,
		log:          logger,
		// 10 OTP sends per 10 minutes per caller IP.
		sendLimiter: newRateLimiter(10*time.Minute, 10),
	}
}

// Router builds the chi router with all auth routes configured
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	r.Route("/auth", func(r chi.Router) {
		// The original backend served both spellings of the OTP routes.
		r.Post("/otp/send", s.handleSendOTP)
		r.Post("/send-otp", s.handleSendOTP)
		r.Post("/otp/verify", s.handleVerifyOTP)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Post("/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccessToken)
			r.Post("/signIn", s.handleSignIn)
		})
	})

	return r
}

type sendOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondText(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	if !mobileRe.MatchString(req.MobileNumber) {
		respondText(w, http.StatusBadRequest, "Invalid mobile number")
		return
	}

	if !s.sendLimiter.allow(r.RemoteAddr) {
		respondJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := s.otp.Send(r.Context(), req.MobileNumber); err != nil {
		s.log.Error("send otp", zap.String("phone", maskPhone(req.MobileNumber)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "failed to send OTP")
		return
	}

	respondText(w, http.StatusOK, "OTP sent successfully")
}

type verifyOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
	OTP          string `json:"otp"`
	DeviceID     string `json:"deviceId"`
}

type verifyOTPResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	IsSignedIn            bool      `json:"isSignedIn"`
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondText(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.OTP = strings.TrimSpace(req.OTP)
	if !mobileRe.MatchString(req.MobileNumber) || req.OTP == "" || !validDeviceID(req.DeviceID) {
		respondText(w, http.StatusBadRequest, "Invalid mobile number, OTP, or device")
		return
	}

	verified, err := s.otp.Verify(r.Context(), req.MobileNumber, req.OTP)
	if err != nil {
		s.log.Error("verify otp", zap.String("phone", maskPhone(req.MobileNumber)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "failed to verify OTP")
		return
	}
	if !verified {
		respondText(w, http.StatusUnauthorized, "Invalid or expired OTP")
		return
	}

	accessToken, accessExp, err := s.signer.MintAccessToken(req.MobileNumber)
	if err == nil {
		var refreshToken string
		var refreshExp time.Time
		refreshToken, refreshExp, err = s.issueRefreshToken(r.Context(), req.MobileNumber, req.DeviceID)
		if err == nil {
			isSignedIn, derr := s.users.Exists(r.Context(), req.MobileNumber)
			if derr != nil {
				s.log.Warn("user directory lookup", zap.Error(derr))
			}
			respondJSON(w, http.StatusOK, verifyOTPResponse{
				AccessToken:           accessToken,
				AccessTokenExpiresAt:  accessExp,
				RefreshToken:          refreshToken,
				RefreshTokenExpiresAt: refreshExp,
				IsSignedIn:            isSignedIn,
			})
			return
		}
	}

	s.log.Error("issue tokens", zap.String("phone", maskPhone(req.MobileNumber)), zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "failed to issue tokens")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type refreshResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondText(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" || !validDeviceID(req.DeviceID) {
		respondText(w, http.StatusBadRequest, "Invalid refresh request")
		return
	}

	claims, err := s.signer.Verify(req.RefreshToken)
	if err != nil {
		respondText(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	mobileNumber := claims.Subject

	stored, ok, err := s.refreshStore.Get(r.Context(), mobileNumber, req.DeviceID)
	if err != nil {
		s.log.Error("load refresh token", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "failed to validate refresh token")
		return
	}
	if !ok || stored != req.RefreshToken || claims.DeviceID != req.DeviceID {
		// A mismatch invalidates whatever is stored for this device.
		_ = s.refreshStore.Delete(r.Context(), mobileNumber, req.DeviceID)
		respondText(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	accessToken, accessExp, err := s.signer.MintAccessToken(mobileNumber)
	if err == nil {
		var refreshToken string
		var refreshExp time.Time
		refreshToken, refreshExp, err = s.issueRefreshToken(r.Context(), mobileNumber, req.DeviceID)
		if err == nil {
			respondJSON(w, http.StatusOK, refreshResponse{
				AccessToken:           accessToken,
				AccessTokenExpiresAt:  accessExp,
				RefreshToken:          refreshToken,
				RefreshTokenExpiresAt: refreshExp,
			})
			return
		}
	}

	s.log.Error("rotate tokens", zap.String("phone", maskPhone(mobileNumber)), zap.Error(err))
	respondJSONError(w, http.StatusInternalServerError, "failed to issue tokens")
}

type signInRequest struct {
	UserName string `json:"userName"`
	Age      int    `json:"age"`
	Email    string `json:"email"`
	DeviceID string `json:"deviceId"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	if !ok || claims == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondText(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)
	if req.UserName == "" {
		respondText(w, http.StatusBadRequest, "Invalid user request")
		return
	}

	rec := UserRecord{
		MobileNumber: claims.Subject,
		DeviceID:     req.DeviceID,
		UserName:     req.UserName,
		Age:          req.Age,
		Email:        req.Email,
	}
	if err := s.users.Save(r.Context(), rec); err != nil {
		s.log.Error("save user", zap.String("phone", maskPhone(claims.Subject)), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "failed to save user")
		return
	}

	s.log.Info("profile completed", zap.String("phone", maskPhone(claims.Subject)))
	respondText(w, http.StatusOK, "Profile saved")
}

// issueRefreshToken mints a refresh token for (mobile, device) and
// stores it for later validation
func (s *Server) issueRefreshToken(ctx context.Context, mobileNumber, deviceID string) (string, time.Time, error) {
	token, expiresAt, err := s.signer.MintRefreshToken(mobileNumber, deviceID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.refreshStore.Put(ctx, mobileNumber, deviceID, token, s.refreshTTL); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// requireAccessToken guards a route behind a valid Bearer access token
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			respondJSONError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := s.signer.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			respondJSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validDeviceID(deviceID string) bool {
	return deviceID != "" && len(deviceID) <= 100
}

func respondText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(message))
}

func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func respondJSONError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// maskPhone masks a phone number for logging (e.g. 98******10)
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
