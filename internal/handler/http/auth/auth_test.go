package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-at-least-32-characters-long")

func mint(t *testing.T, c Claims, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueToken(testSecret, c, ttl, time.Now())
	require.NoError(t, err)
	return tok
}

/* ───────── トークン ───────── */

func TestIssueAndParseToken(t *testing.T) {
	tok := mint(t, Claims{Subject: "42", Role: RoleFarmer, FarmID: 7}, time.Hour)

	c, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, Claims{Subject: "42", Role: RoleFarmer, FarmID: 7}, c)
	assert.Equal(t, int64(42), c.UserID())
}

func TestIssueToken_RejectsUnknownRoleAndEmptySubject(t *testing.T) {
	_, err := IssueToken(testSecret, Claims{Subject: "1", Role: "root"}, time.Hour, time.Now())
	assert.Error(t, err)
	_, err = IssueToken(testSecret, Claims{Role: RoleAdmin}, time.Hour, time.Now())
	assert.Error(t, err)
}

func TestParseToken_Failures(t *testing.T) {
	expired, err := IssueToken(testSecret, Claims{Subject: "1", Role: RoleAdmin}, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "role": "admin"}).SignedString(testSecret)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "1", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	foreign, err := IssueToken([]byte("another-secret-key-at-least-32-characters"), Claims{Subject: "1", Role: RoleAdmin}, time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"missing exp", noExp, ErrInvalidToken},
		{"missing role", noRole, ErrInvalidToken},
		{"wrong algorithm", hs512, ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(testSecret, tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateSecret(t *testing.T) {
	assert.NoError(t, ValidateSecret(string(testSecret)))
	assert.ErrorIs(t, ValidateSecret(""), ErrWeakSecret)
	assert.ErrorIs(t, ValidateSecret("short"), ErrWeakSecret)
	assert.ErrorIs(t, ValidateSecret(strings.Repeat("a", 40)), ErrWeakSecret)
}

func TestClaims_UserIDForServiceSubject(t *testing.T) {
	assert.Zero(t, Claims{Subject: "breeding-scheduler"}.UserID())
}

/* ───────── ロール ───────── */

func TestCheckRolePermission(t *testing.T) {
	tests := []struct {
		role, method, path string
		want               bool
	}{
		{RoleAdmin, "POST", "/notifications/dispatch", true},
		{RoleAdmin, "GET", "/live", true},
		{RoleService, "POST", "/notifications/dispatch", true},
		{RoleService, "GET", "/deliveries/stats", true},
		{RoleService, "GET", "/live", false},
		{RoleViewer, "GET", "/deliveries/abc", true},
		{RoleViewer, "POST", "/notifications/dispatch", false},
		{RoleFarmer, "GET", "/live", true},
		{RoleFarmer, "GET", "/deliveries/stats", false},
		{"", "GET", "/live", false},
		{"unknown", "GET", "/live", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, checkRolePermission(tt.role, tt.method, tt.path))
		})
	}
}

func TestIsPublicEndpoint(t *testing.T) {
	assert.True(t, IsPublicEndpoint("/health"))
	assert.True(t, IsPublicEndpoint("/health/channels"))
	assert.True(t, IsPublicEndpoint("/webhooks/sms"))
	assert.True(t, IsPublicEndpoint("/swagger/index.html"))
	assert.False(t, IsPublicEndpoint("/healthz"))
	assert.False(t, IsPublicEndpoint("/live"))
	assert.False(t, IsPublicEndpoint("/deliveries/stats"))
}

/* ───────── ミドルウェア ───────── */

func TestAuthz(t *testing.T) {
	var got Claims
	var called bool
	h := Authz(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	farmer := mint(t, Claims{Subject: "42", Role: RoleFarmer, FarmID: 7}, time.Hour)
	service := mint(t, Claims{Subject: "breeding-scheduler", Role: RoleService}, time.Hour)

	tests := []struct {
		name       string
		method     string
		target     string
		header     string
		wantStatus int
		wantCalled bool
		wantRole   string
	}{
		{"public webhook", "POST", "/webhooks/sms", "", http.StatusOK, true, ""},
		{"missing token", "POST", "/notifications/dispatch", "", http.StatusUnauthorized, false, ""},
		{"malformed header", "POST", "/notifications/dispatch", "Token " + service, http.StatusUnauthorized, false, ""},
		{"service dispatch", "POST", "/notifications/dispatch", "Bearer " + service, http.StatusOK, true, RoleService},
		{"farmer cannot dispatch", "POST", "/notifications/dispatch", "Bearer " + farmer, http.StatusForbidden, false, ""},
		{"live via header", "GET", "/live", "Bearer " + farmer, http.StatusOK, true, RoleFarmer},
		{"live via query", "GET", "/live?token=" + farmer, "", http.StatusOK, true, RoleFarmer},
		{"query token ignored elsewhere", "GET", "/deliveries/stats?token=" + service, "", http.StatusUnauthorized, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called, got = false, Claims{}
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantRole, got.Role)
		})
	}
}
