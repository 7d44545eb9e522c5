package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bookblendapp/backend/internal/blends"
	"github.com/bookblendapp/backend/internal/database"
	"github.com/bookblendapp/backend/internal/server"
	"github.com/bookblendapp/backend/internal/share"
	"github.com/bookblendapp/backend/internal/upstream"
	"github.com/bookblendapp/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fakeScoringService stands in for the remote profile/scoring API.
func fakeScoringService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		profiles := map[string]upstream.Profile{
			"42944663": {ID: "42944663", Name: "Ben Wallace", BookCount: "312"},
			"123456":   {ID: "123456", Name: "Katie"},
		}
		profile, ok := profiles[r.URL.Query().Get("user_id")]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(upstream.UserResult{User: profile})
	})
	mux.HandleFunc("/blend", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"blend":{"score":87,"note":"great match"}}`))
	})
	return httptest.NewServer(mux)
}

func newAPIHandler(t *testing.T, upstreamURL string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "bookblend.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	blendService, err := blends.NewService(blends.ServiceConfig{Database: db, IDProvider: blends.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to create blend service: %v", err)
	}
	shareService, err := share.NewService(share.ServiceConfig{Database: db, Users: userService})
	if err != nil {
		t.Fatalf("failed to create share service: %v", err)
	}
	client, err := upstream.NewClient(upstream.Config{BaseURL: upstreamURL})
	if err != nil {
		t.Fatalf("failed to create upstream client: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:        userService,
		Blends:       blendService,
		Share:        shareService,
		Upstream:     client,
		ShareBaseURL: "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func getJSON(t *testing.T, handler http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	handler.ServeHTTP(recorder, request)
	decoded := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("non-JSON response (%d): %s", recorder.Code, recorder.Body.String())
	}
	return recorder.Code, decoded
}

func TestLookupShareAndBlendFlow(t *testing.T) {
	scoring := fakeScoringService(t)
	defer scoring.Close()
	handler := newAPIHandler(t, scoring.URL)

	// look up both users; the first lookup allocates slugs
	status, body := getJSON(t, handler, http.MethodGet, "/api/user?user_id=42944663", "")
	if status != http.StatusOK {
		t.Fatalf("user lookup failed: %d %v", status, body)
	}
	if body["user"].(map[string]any)["slug"] != "ben-wallace" {
		t.Fatalf("expected slug allocation, got %v", body["user"])
	}
	if status, body = getJSON(t, handler, http.MethodGet, "/api/user?user_id=123456", ""); status != http.StatusOK {
		t.Fatalf("friend lookup failed: %d %v", status, body)
	}

	// blend the pair; the result lands in the cache
	status, blendBody := getJSON(t, handler, http.MethodGet, "/api/blend?user_id1=42944663&user_id2=123456", "")
	if status != http.StatusOK {
		t.Fatalf("blend failed: %d %v", status, blendBody)
	}
	meta, ok := blendBody["_meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected persisted blend meta: %v", blendBody)
	}
	if meta["user1_id"] != "123456" || meta["user2_id"] != "42944663" {
		t.Fatalf("pair not canonically ordered: %v", meta)
	}

	// the stored row is addressable by id
	status, byID := getJSON(t, handler, http.MethodGet, "/api/blend/"+meta["blend_id"].(string), "")
	if status != http.StatusOK {
		t.Fatalf("blend by id failed: %d %v", status, byID)
	}

	// share link round trip via slug
	status, shareBody := getJSON(t, handler, http.MethodPost, "/api/share", `{"user_id":"42944663"}`)
	if status != http.StatusOK {
		t.Fatalf("share create failed: %d %v", status, shareBody)
	}
	if shareBody["share_url"] != "http://localhost:3000/share/ben-wallace" {
		t.Fatalf("unexpected share url: %v", shareBody["share_url"])
	}

	status, resolved := getJSON(t, handler, http.MethodGet, "/api/share/resolve?slug=ben-wallace", "")
	if status != http.StatusOK {
		t.Fatalf("resolve failed: %d %v", status, resolved)
	}
	if resolved["user_id"] != "42944663" {
		t.Fatalf("unexpected resolved user: %v", resolved)
	}
}
