package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bookblendapp/backend/internal/upstream"
)

func TestHandleUserRequiresUserID(t *testing.T) {
	env := newTestEnv(t, &stubUpstream{})

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/user", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleUserRejectsUnparsableIdentifier(t *testing.T) {
	env := newTestEnv(t, &stubUpstream{})

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/user?user_id=%21%21%21", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder.Body.Bytes())
	if body["error"] != msgInvalidIdentifier {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestHandleUserCachesProfileAndAssignsSlug(t *testing.T) {
	stub := &stubUpstream{
		userResult: upstream.UserResult{
			User: upstream.Profile{
				ID:        "42944663",
				Name:      "Ben Wallace",
				BookCount: "312",
			},
			Friends: []upstream.Friend{{ID: "123456", Name: "Katie"}},
		},
	}
	env := newTestEnv(t, stub)

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/user?user_id=https%3A%2F%2Fwww.goodreads.com%2Fuser%2Fshow%2F42944663-ben-wallace", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder.Body.Bytes())
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user object: %v", body)
	}
	if user["slug"] != "ben-wallace" {
		t.Fatalf("expected allocated slug in response, got %v", user["slug"])
	}
	if user["book_count"] != float64(312) {
		t.Fatalf("expected parsed book_count, got %v", user["book_count"])
	}

	// the lookup must have landed in the cache, resolvable by slug
	resolver := httptest.NewRecorder()
	env.handler.ServeHTTP(resolver, httptest.NewRequest(http.MethodGet, "/api/share/resolve?slug=ben-wallace", nil))
	if resolver.Code != http.StatusOK {
		t.Fatalf("expected resolvable slug, got %d", resolver.Code)
	}
	resolved := decodeBody(t, resolver.Body.Bytes())
	if resolved["user_id"] != "42944663" {
		t.Fatalf("unexpected resolved user: %v", resolved)
	}
}

func TestHandleUserMapsUpstreamNotFound(t *testing.T) {
	stub := &stubUpstream{userErr: &upstream.StatusError{Code: http.StatusNotFound, Body: `{"error":"private"}`}}
	env := newTestEnv(t, stub)

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/user?user_id=42944663", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder.Body.Bytes())
	if body["error"] != msgProfileNotFound {
		t.Fatalf("raw upstream detail must not leak: %v", body["error"])
	}
}

func TestHandleUserMapsUpstreamOutage(t *testing.T) {
	stub := &stubUpstream{userErr: upstream.ErrUnavailable}
	env := newTestEnv(t, stub)

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/user?user_id=42944663", nil))

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
}
