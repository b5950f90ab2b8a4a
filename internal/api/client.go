package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Error is a failed backend call: the transport reached the server but
// the response was non-2xx. Message carries whatever the backend said.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// TokenResponse is the token bundle returned by verify and refresh.
// IsSignedIn is only meaningful on verify.
type TokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	IsSignedIn            bool      `json:"isSignedIn"`
}

// SignInRequest is the profile-completion payload for POST /auth/signIn
type SignInRequest struct {
	UserName string `json:"userName"`
	Age      int    `json:"age"`
	Email    string `json:"email"`
	DeviceID string `json:"deviceId"`
}

// Client talks to the HomeLens auth backend
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New creates a backend client. baseURL is the server root without a
// trailing slash (e.g. http://localhost:8080).
func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// SendOTP requests an OTP for the mobile number
func (c *Client) SendOTP(ctx context.Context, mobileNumber string) error {
	body := map[string]string{"mobileNumber": mobileNumber}
	return c.post(ctx, "/auth/otp/send", "", body, nil)
}

// VerifyOTP exchanges an OTP for a fresh token bundle
func (c *Client) VerifyOTP(ctx context.Context, mobileNumber, otp, deviceID string) (TokenResponse, error) {
	body := map[string]string{
		"mobileNumber": mobileNumber,
		"otp":          otp,
		"deviceId":     deviceID,
	}
	var out TokenResponse
	if err := c.post(ctx, "/auth/otp/verify", "", body, &out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// Refresh exchanges a refresh token for a new token bundle
func (c *Client) Refresh(ctx context.Context, refreshToken, deviceID string) (TokenResponse, error) {
	body := map[string]string{
		"refreshToken": refreshToken,
		"deviceId":     deviceID,
	}
	var out TokenResponse
	if err := c.post(ctx, "/auth/refresh", "", body, &out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// SignIn submits the profile-completion payload. Requires a currently
// valid access token.
func (c *Client) SignIn(ctx context.Context, accessToken string, req SignInRequest) error {
	return c.post(ctx, "/auth/signIn", accessToken, req, nil)
}

// post sends a JSON request and decodes a JSON response into out (when
// out is non-nil). Non-2xx responses become *Error with the message
// extracted from the body.
func (c *Client) post(ctx context.Context, path, bearer string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp),
		}
		c.log.Debug("request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// extractMessage pulls a failure message out of the response body: a
// JSON body when the Content-Type says JSON, raw text otherwise.
func extractMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			return asString
		}
		var asObject map[string]interface{}
		if err := json.Unmarshal(raw, &asObject); err == nil {
			for _, key := range []string{"error", "message"} {
				if msg, ok := asObject[key].(string); ok && msg != "" {
					return msg
				}
			}
		}
		return "request failed"
	}
	return strings.TrimSpace(string(raw))
}
