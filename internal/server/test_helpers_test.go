package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/bookblendapp/backend/internal/blends"
	"github.com/bookblendapp/backend/internal/identity"
	"github.com/bookblendapp/backend/internal/share"
	"github.com/bookblendapp/backend/internal/upstream"
	"github.com/bookblendapp/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubUpstream struct {
	userResult   upstream.UserResult
	userErr      error
	blendPayload json.RawMessage
	blendErr     error
	userCalls    int
	blendCalls   int
}

func (s *stubUpstream) User(ctx context.Context, id identity.CanonicalID) (upstream.UserResult, error) {
	s.userCalls++
	return s.userResult, s.userErr
}

func (s *stubUpstream) Blend(ctx context.Context, userID1, userID2 string) (json.RawMessage, error) {
	s.blendCalls++
	return s.blendPayload, s.blendErr
}

type testEnv struct {
	handler http.Handler
	users   *users.Service
}

func newTestEnv(t *testing.T, stub *stubUpstream) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &blends.Blend{}, &share.Link{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
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

	handler, err := NewHTTPHandler(Dependencies{
		Users:        userService,
		Blends:       blendService,
		Share:        shareService,
		Upstream:     stub,
		ShareBaseURL: "http://localhost:3000",
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return testEnv{handler: handler, users: userService}
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("response is not a JSON object: %v\n%s", err, body)
	}
	return decoded
}
