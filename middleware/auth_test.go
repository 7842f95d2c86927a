package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authProtected(token string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return BearerAuth(token)(ok)
}

func TestBearerAuth_DisabledWithoutToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/parse", nil)
	rec := httptest.NewRecorder()

	authProtected("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected auth disabled without configured token, got %d", rec.Code)
	}
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/parse", nil)
	rec := httptest.NewRecorder()

	authProtected("secret").ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without Authorization header, got %d", rec.Code)
	}
}

func TestBearerAuth_WrongScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "/parse", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0")
	rec := httptest.NewRecorder()

	authProtected("secret").ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for non-bearer scheme, got %d", rec.Code)
	}
}

func TestBearerAuth_WrongToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/parse", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()

	authProtected("secret").ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong token, got %d", rec.Code)
	}
}

func TestBearerAuth_ValidToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/parse", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	authProtected("secret").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid token, got %d", rec.Code)
	}
}
