package loginpage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gotd/td/session"

	"signal-desk-bot/internal/core/domain/auth"
	"signal-desk-bot/internal/userbot"
)

type fakeTokens struct {
	valid    map[string]string // token -> jti
	consumed []string
}

func (f *fakeTokens) Verify(_ context.Context, token string) (*auth.LoginClaims, error) {
	id, ok := f.valid[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.LoginClaims{RegisteredClaims: jwt.RegisteredClaims{ID: id, Subject: "777"}}, nil
}

func (f *fakeTokens) Consume(_ context.Context, claims *auth.LoginClaims) error {
	f.consumed = append(f.consumed, claims.ID)
	for token, id := range f.valid {
		if id == claims.ID {
			delete(f.valid, token)
		}
	}
	return nil
}

type fakeFlow struct {
	phone        string
	codes        []string
	needPassword bool
	password     string
	closed       bool
}

func (f *fakeFlow) SendCode(_ context.Context, phone string) error {
	f.phone = phone
	return nil
}

func (f *fakeFlow) SignIn(_ context.Context, code string) (bool, error) {
	f.codes = append(f.codes, code)
	if code != "12345" {
		return false, userbot.ErrWrongCode
	}
	return f.needPassword, nil
}

func (f *fakeFlow) Password(_ context.Context, password string) error {
	if password != "hunter2" {
		return userbot.ErrWrongPassword
	}
	f.password = password
	return nil
}

func (f *fakeFlow) Save(ctx context.Context, dst session.Storage) error {
	return dst.StoreSession(ctx, []byte("session:"+f.phone))
}

func (f *fakeFlow) Close() { f.closed = true }

type memStorage struct{ data []byte }

func (m *memStorage) LoadSession(context.Context) ([]byte, error) { return m.data, nil }
func (m *memStorage) StoreSession(_ context.Context, data []byte) error {
	m.data = data
	return nil
}

func newTestServer(t *testing.T, flow *fakeFlow) (*Server, *fakeTokens, *memStorage) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := &fakeTokens{valid: map[string]string{"good": "jti-1"}}
	storage := &memStorage{}
	s := NewServer(context.Background(), tokens, func(context.Context) Flow { return flow }, storage)
	return s, tokens, storage
}

func post(t *testing.T, s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestLoginWithTwoStepPassword(t *testing.T) {
	flow := &fakeFlow{needPassword: true}
	s, tokens, storage := newTestServer(t, flow)

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login?token=good", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `name="phone"`) {
		t.Fatalf("phone page: %d %s", rec.Code, rec.Body.String())
	}

	rec = post(t, s, "/login/phone", url.Values{"token": {"good"}, "phone": {"+15550001"}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `name="code"`) {
		t.Fatalf("code page: %d %s", rec.Code, rec.Body.String())
	}

	rec = post(t, s, "/login/code", url.Values{"token": {"good"}, "code": {"00000"}})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `name="code"`) {
		t.Fatalf("wrong code: %d %s", rec.Code, rec.Body.String())
	}

	rec = post(t, s, "/login/code", url.Values{"token": {"good"}, "code": {"12345"}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `name="password"`) {
		t.Fatalf("password page: %d %s", rec.Code, rec.Body.String())
	}

	rec = post(t, s, "/login/password", url.Values{"token": {"good"}, "password": {"hunter2"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("finish: %d %s", rec.Code, rec.Body.String())
	}
	if string(storage.data) != "session:+15550001" {
		t.Fatalf("stored %q", storage.data)
	}
	if len(tokens.consumed) != 1 || !flow.closed {
		t.Fatalf("consumed %v, closed %v", tokens.consumed, flow.closed)
	}

	rec = post(t, s, "/login/password", url.Values{"token": {"good"}, "password": {"hunter2"}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("link reused: %d", rec.Code)
	}
}

func TestLoginRejectsBadLinks(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeFlow{})

	for _, target := range []string{"/login", "/login?token=forged"} {
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status %d", target, rec.Code)
		}
	}
}

func TestCodeBeforePhoneIsRefused(t *testing.T) {
	s, _, storage := newTestServer(t, &fakeFlow{})

	rec := post(t, s, "/login/code", url.Values{"token": {"good"}, "code": {"12345"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
	if storage.data != nil {
		t.Fatal("session stored without a sign-in")
	}
}
