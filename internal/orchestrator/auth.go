package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ai-servis/core/internal/rpc"
)

// UserInfo describes an authenticated principal.
type UserInfo struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Verifier authenticates tokens and answers permission checks.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*UserInfo, error)
	CheckPermission(ctx context.Context, token, permission string) (bool, error)
}

// IntentPermission maps an intent name to the permission guarding it.
// The service segment is the intent name up to the first underscore,
// so audio_control requires service:audio.
func IntentPermission(intentName string) string {
	service, _, _ := strings.Cut(intentName, "_")
	return "service:" + service
}

// HTTPVerifier defers verification to an external auth service over
// its REST endpoints.
type HTTPVerifier struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPVerifier creates a verifier against the given base URL.
func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return rpc.Errorf(rpc.CodeServiceUnavailable, "auth service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return rpc.Errorf(rpc.CodeUnauthorized, "auth service rejected request")
	}
	if resp.StatusCode != http.StatusOK {
		return rpc.Errorf(rpc.CodeServiceUnavailable, "auth service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyToken checks the token against POST /api/verify_token.
func (v *HTTPVerifier) VerifyToken(ctx context.Context, token string) (*UserInfo, error) {
	var out struct {
		Valid bool     `json:"valid"`
		User  UserInfo `json:"user"`
	}
	if err := v.post(ctx, "/api/verify_token", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	if !out.Valid {
		return nil, rpc.Errorf(rpc.CodeUnauthorized, "invalid token")
	}
	return &out.User, nil
}

// CheckPermission asks POST /api/check_permission whether the token
// holder has the permission.
func (v *HTTPVerifier) CheckPermission(ctx context.Context, token, permission string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	payload := map[string]string{"token": token, "permission": permission}
	if err := v.post(ctx, "/api/check_permission", payload, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// JWTVerifier validates HMAC-signed tokens locally. Permissions come
// from the "permissions" claim.
type JWTVerifier struct {
	Secret []byte
}

type platformClaims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// VerifyToken parses and validates the JWT.
func (v *JWTVerifier) VerifyToken(ctx context.Context, token string) (*UserInfo, error) {
	claims := &platformClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, rpc.Errorf(rpc.CodeUnauthorized, "invalid token")
	}
	return &UserInfo{
		UserID:      claims.Subject,
		Username:    claims.Username,
		Permissions: claims.Permissions,
	}, nil
}

// CheckPermission tests the permissions claim. A wildcard "*" entry
// grants everything.
func (v *JWTVerifier) CheckPermission(ctx context.Context, token, permission string) (bool, error) {
	info, err := v.VerifyToken(ctx, token)
	if err != nil {
		return false, err
	}
	for _, p := range info.Permissions {
		if p == permission || p == "*" {
			return true, nil
		}
	}
	return false, nil
}

// IssueJWT mints a token for tests and local development.
func (v *JWTVerifier) IssueJWT(userID, username string, permissions []string, ttl time.Duration) (string, error) {
	claims := platformClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username:    username,
		Permissions: permissions,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
