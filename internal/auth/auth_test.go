package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfydeps/internal/config"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

const (
	testIssuer   = "https://test-issuer.com"
	testClientID = "test-client"
)

func fakeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	headerBytes, err := json.Marshal(map[string]interface{}{"alg": "RS256", "typ": "JWT", "kid": "test-key"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func validClaims(email string) map[string]interface{} {
	return map[string]interface{}{
		"iss":   testIssuer,
		"aud":   testClientID,
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": email,
	}
}

func testAuth() *Auth {
	cfg := &oidc.Config{ClientID: testClientID}
	return &Auth{
		verifier:    oidc.NewVerifier(testIssuer, &MockKeySet{}, cfg),
		apiVerifier: oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{SkipClientIDCheck: true}),
		logger:      &NoOpLogger{},
	}
}

func captureUser(t *testing.T, want string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, want, UserFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_BearerToken_RecordsCaller(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, validClaims("user@acme.com")))
	rec := httptest.NewRecorder()

	testAuth().RequireAuth(captureUser(t, "user@acme.com")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_CookieToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/resolutions", nil)
	req.AddCookie(&http.Cookie{Name: "id_token", Value: fakeToken(t, validClaims("cookie@acme.com"))})
	rec := httptest.NewRecorder()

	testAuth().RequireAuth(captureUser(t, "cookie@acme.com")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_FallsBackToSubject(t *testing.T) {
	claims := validClaims("")
	delete(claims, "email")
	req := httptest.NewRequest("GET", "/api/v1/resolutions", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken(t, claims))
	rec := httptest.NewRecorder()

	testAuth().RequireAuth(captureUser(t, "test-user")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_Rejects(t *testing.T) {
	expired := validClaims("user@acme.com")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"malformed bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") }},
		{"expired bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+fakeToken(t, expired)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/resolutions", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			testAuth().RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{
		Environment:   "DEV",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, &NoOpLogger{})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/resolutions", nil)
	rec := httptest.NewRecorder()
	a.RequireAuth(captureUser(t, DevUser)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.LoginHandler(rec, httptest.NewRequest("GET", "/login", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestNew_IncompleteConfig(t *testing.T) {
	cfg := &config.Config{Environment: "PROD", DevModeBypass: true}
	_, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.Error(t, err, "bypass only applies in DEV")
}

func TestLogoutClearsCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	testAuth().LogoutHandler(rec, httptest.NewRequest("GET", "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "id_token=;")
}
