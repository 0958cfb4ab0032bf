package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/adaptiq/adaptiq-engine/internal/rbac"
)

func newTestService(t *testing.T, devLogin bool) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthService("test-hmac-key", "admin", string(hash), devLogin)
}

func TestJWTRoundtrip(t *testing.T) {
	a := newTestService(t, false)
	tok, err := a.IssueJWT("alice", "learner")
	if err != nil {
		t.Fatal(err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sub != "alice" || c.Role != "learner" {
		t.Fatalf("claims: %+v", c)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	a := newTestService(t, false)
	other := NewAuthService("different-key", "admin", "", false)
	tok, _ := other.IssueJWT("alice", "admin")
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("token signed with another key accepted")
	}
}

func postLogin(t *testing.T, a *AuthService, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	LoginHandler(a)(rec, req)
	return rec
}

func TestLoginAdmin(t *testing.T) {
	a := newTestService(t, false)

	rec := postLogin(t, a, map[string]string{"username": "admin", "password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["role"] != "admin" || resp["access_token"] == "" {
		t.Fatalf("response: %v", resp)
	}

	rec = postLogin(t, a, map[string]string{"username": "admin", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status %d", rec.Code)
	}
}

func TestLoginDevMode(t *testing.T) {
	a := newTestService(t, true)

	rec := postLogin(t, a, map[string]string{"username": "alice", "password": "alice", "role": "learner"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	// Dev login never grants admin.
	rec = postLogin(t, a, map[string]string{"username": "x", "password": "x", "role": "admin"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("dev admin status %d", rec.Code)
	}

	// Disabled outside offline mode.
	off := newTestService(t, false)
	rec = postLogin(t, off, map[string]string{"username": "alice", "password": "alice", "role": "learner"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("dev login leaked into online mode: %d", rec.Code)
	}
}

func TestJWTMiddlewareAttachesContext(t *testing.T) {
	a := newTestService(t, false)
	tok, _ := a.IssueJWT("alice", "instructor")

	var gotSub, gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/quizzes", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	JWTMiddleware(a)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || gotSub != "alice" || gotRole != "instructor" {
		t.Fatalf("status=%d sub=%q role=%q", rec.Code, gotSub, gotRole)
	}

	rec = httptest.NewRecorder()
	JWTMiddleware(a)(next).ServeHTTP(rec, httptest.NewRequest("GET", "/quizzes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing bearer status %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/quizzes", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	JWTMiddleware(a)(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d", rec.Code)
	}
}
