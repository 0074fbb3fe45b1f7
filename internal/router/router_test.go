package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	acctentity "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/entity"
	identityrepo "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/repo"
)

// identities is an in-memory identity repo without lockout bookkeeping.
type identities struct {
	mu   sync.Mutex
	rows map[string]entity.Identity
}

func (m *identities) Create(_ context.Context, i *entity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.Email == i.Email {
			return identityrepo.ErrEmailTaken
		}
	}
	m.rows[i.ID] = *i
	return nil
}

func (m *identities) GetByEmail(_ context.Context, email string) (*entity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if strings.EqualFold(o.Email, email) {
			return &o, nil
		}
	}
	return nil, identityrepo.ErrNotFound
}

func (m *identities) GetByID(_ context.Context, id string) (*entity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return nil, identityrepo.ErrNotFound
	}
	return &o, nil
}

func (m *identities) IncrementFailedLogin(context.Context, string) (int, error) { return 1, nil }
func (m *identities) LockIfThreshold(context.Context, string, int, int) (bool, error) {
	return false, nil
}
func (m *identities) UnlockIfExpired(context.Context, string) (bool, error) { return false, nil }
func (m *identities) ResetLoginSuccess(context.Context, string) error { return nil }

func (m *identities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return identityrepo.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type testServer struct {
	*httptest.Server
	app *app.App
}

func newTestServer(t *testing.T) *testServer {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	cfg := config.Config{JWTSecret: "router-test-secret", JWTIssuer: "hostlink-test", TokenTTL: time.Minute}
	a := app.Wire(repo.NewRedisStore(c, "rt:"), &identities{rows: map[string]entity.Identity{}}, cfg, zap.NewNop().Sugar())
	srv := httptest.NewServer(RegisterRoutes(a, "operator-key", zap.NewNop().Sugar()))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, app: a}
}

func (s *testServer) do(t *testing.T, method, path, token, body string, hdr ...string) (int, string, http.Header) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+Prefix+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b), resp.Header
}

func (s *testServer) signup(t *testing.T, email, role string) (subject, token string) {
	t.Helper()
	code, body, _ := s.do(t, http.MethodPost, "/auth/signup", "", `{"email":"`+email+`","password":"a long password","role":"`+role+`"}`)
	require.Equal(t, http.StatusCreated, code, body)
	var out struct {
		Subject     string `json:"subject"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out.Subject, out.AccessToken
}

func TestHealthAndHeaders(t *testing.T) {
	s := newTestServer(t)
	code, body, hdr := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, hdr.Get("X-Request-ID"))

	_, _, hdr = s.do(t, http.MethodGet, "/health", "", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", hdr.Get("X-Request-ID"))
}

func TestUnlockFlow(t *testing.T) {
	s := newTestServer(t)
	host, _ := s.signup(t, "host@example.com", "host")
	_, pTok := s.signup(t, "guest@example.com", "")

	code, body, _ := s.do(t, http.MethodGet, "/listing", pTok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"is_unlocked":false`)

	code, _, _ = s.do(t, http.MethodPost, "/unlock", "", `{"target_id":"`+host+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body, _ = s.do(t, http.MethodPost, "/unlock", pTok, `{"target_id":"`+host+`"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "UNLOCKED_NOW")

	code, body, _ = s.do(t, http.MethodGet, "/unlock/"+host, pTok, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"is_unlocked":true`)

	code, body, _ = s.do(t, http.MethodGet, "/profiles/"+host, pTok, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"unlock_count":1`)

	code, _, _ = s.do(t, http.MethodGet, "/listing", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAccountsRoutes(t *testing.T) {
	s := newTestServer(t)
	host, hTok := s.signup(t, "edit@example.com", "host")

	code, body, _ := s.do(t, http.MethodPatch, "/accounts/"+host, hTok, `{"name":"Ana","starters":["a","b","c","d"]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"starters":["a","b","c"]`)

	code, _, _ = s.do(t, http.MethodGet, "/accounts/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMaintenanceRequiresPrivilege(t *testing.T) {
	s := newTestServer(t)
	_, pTok := s.signup(t, "p@example.com", "")
	root, rootTok := s.signup(t, "root@example.com", "")
	admin := acctentity.RoleAdmin
	require.NoError(t, s.app.Store.SetMerge(context.Background(), root, acctentity.AccountPatch{Role: &admin}))

	code, _, _ := s.do(t, http.MethodGet, "/maintenance/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = s.do(t, http.MethodGet, "/maintenance/stats", pTok, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = s.do(t, http.MethodGet, "/maintenance/stats", "", "", "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body, _ := s.do(t, http.MethodGet, "/maintenance/stats", "", "", "X-Admin-Key", "operator-key")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"admins":1`)

	code, body, _ = s.do(t, http.MethodPost, "/maintenance/sweep", rootTok, `{"mode":"cleanup_inactive_participants"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"deleted":1`)

	code, _, _ = s.do(t, http.MethodGet, "/accounts/me", pTok, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = s.do(t, http.MethodDelete, "/maintenance/accounts/"+root, "", "", "X-Admin-Key", "operator-key")
	assert.Equal(t, http.StatusOK, code)
	code, _, _ = s.do(t, http.MethodGet, "/maintenance/accounts/"+root, "", "", "X-Admin-Key", "operator-key")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListingIgnoresUnverifiedViewerID(t *testing.T) {
	s := newTestServer(t)
	spoofed, _ := s.signup(t, "qr@example.com", "host")
	hidden, hTok := s.signup(t, "hidden@example.com", "host")
	code, _, _ := s.do(t, http.MethodPatch, "/accounts/"+hidden, hTok, `{"name":"Hidden","bio":"secret bio","visible":false}`)
	require.Equal(t, http.StatusOK, code)

	code, body, _ := s.do(t, http.MethodGet, "/listing?viewerId="+spoofed, "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "secret bio")
	assert.NotContains(t, body, hidden)
	assert.NotContains(t, body, `"is_unlocked":true`)

	code, _, _ = s.do(t, http.MethodGet, "/profiles/"+hidden+"?viewerId="+spoofed, "", "")
	assert.Equal(t, http.StatusNotFound, code)
}
