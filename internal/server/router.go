package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookblendapp/backend/internal/blends"
	"github.com/bookblendapp/backend/internal/identity"
	"github.com/bookblendapp/backend/internal/share"
	"github.com/bookblendapp/backend/internal/upstream"
	"github.com/bookblendapp/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgInvalidIdentifier = "Enter a valid Goodreads user ID, username, or URL"
	msgProfileNotFound   = "User not found or the profile is private"
	msgUpstreamFailure   = "The lookup service is currently unavailable"
	msgUserNotCached     = "User not found. Please look up the user first."
	msgShareNotFound     = "Share link not found"
	msgBlendNotFound     = "Blend not found"
)

var (
	errMissingUserService  = errors.New("user service dependency required")
	errMissingBlendService = errors.New("blend service dependency required")
	errMissingShareService = errors.New("share service dependency required")
	errMissingUpstream     = errors.New("upstream client dependency required")
)

// UpstreamClient is the slice of the scoring service the handlers consume.
type UpstreamClient interface {
	User(ctx context.Context, id identity.CanonicalID) (upstream.UserResult, error)
	Blend(ctx context.Context, userID1, userID2 string) (json.RawMessage, error)
}

// Dependencies wires the API handlers.
type Dependencies struct {
	Users        *users.Service
	Blends       *blends.Service
	Share        *share.Service
	Upstream     UpstreamClient
	ShareBaseURL string
	Logger       *zap.Logger
}

// NewHTTPHandler builds the public JSON API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Blends == nil {
		return nil, errMissingBlendService
	}
	if deps.Share == nil {
		return nil, errMissingShareService
	}
	if deps.Upstream == nil {
		return nil, errMissingUpstream
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:        deps.Users,
		blends:       deps.Blends,
		share:        deps.Share,
		upstream:     deps.Upstream,
		shareBaseURL: strings.TrimSuffix(deps.ShareBaseURL, "/"),
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/user", handler.handleUser)
	api.GET("/blend", handler.handleBlend)
	api.GET("/blend/:id", handler.handleBlendByID)
	api.POST("/share", handler.handleShareCreate)
	api.GET("/share", handler.handleShareGet)
	api.GET("/share/resolve", handler.handleShareResolve)

	return router, nil
}

type httpHandler struct {
	users        *users.Service
	blends       *blends.Service
	share        *share.Service
	upstream     UpstreamClient
	shareBaseURL string
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type userResponsePayload struct {
	User    userSummaryPayload `json:"user"`
	Friends []upstream.Friend  `json:"friends"`
}

type userSummaryPayload struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ImageURL   *string `json:"image_url"`
	ProfileURL *string `json:"profile_url"`
	BookCount  *int    `json:"book_count"`
	Username   *string `json:"username"`
	Slug       string  `json:"slug,omitempty"`
}

// handleUser resolves free-form input to a canonical identifier, fetches the
// profile upstream and caches it. A cache write failure degrades to an
// uncached response; the fetched profile is always returned.
func (h *httpHandler) handleUser(c *gin.Context) {
	raw := c.Query("user_id")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	id, err := identity.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidIdentifier})
		return
	}

	result, err := h.upstream.User(c.Request.Context(), id)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	profile := profileFromUpstream(id, result.User)
	cached, err := h.users.CacheUser(c.Request.Context(), profile)
	if err != nil {
		h.logger.Warn("user cache write failed", zap.String("user_id", profile.ID), zap.Error(err))
		cached = users.User{
			ID:         profile.ID,
			Name:       profile.Name,
			ImageURL:   profile.ImageURL,
			ProfileURL: profile.ProfileURL,
			BookCount:  profile.BookCount,
			Username:   profile.Username,
		}
	}

	c.JSON(http.StatusOK, userResponsePayload{
		User: userSummaryPayload{
			ID:         cached.ID,
			Name:       cached.Name,
			ImageURL:   cached.ImageURL,
			ProfileURL: cached.ProfileURL,
			BookCount:  cached.BookCount,
			Username:   cached.Username,
			Slug:       cached.SlugValue(),
		},
		Friends: result.Friends,
	})
}

// handleBlend serves the composed caching policy: return the latest stored
// result unless force_new is set or no result exists, in which case a fresh
// computation is fetched upstream and persisted. A persistence failure still
// returns the fresh payload.
func (h *httpHandler) handleBlend(c *gin.Context) {
	id1, err := identity.Parse(c.Query("user_id1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id1 and user_id2 are required"})
		return
	}
	id2, err := identity.Parse(c.Query("user_id2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id1 and user_id2 are required"})
		return
	}
	forceNew := parseBool(c.Query("force_new"))

	if !forceNew {
		cached, err := h.blends.LatestBlend(c.Request.Context(), id1.String(), id2.String())
		if err == nil && cached != nil {
			h.respondBlend(c, cached)
			return
		}
	}

	payload, err := h.upstream.Blend(c.Request.Context(), id1.String(), id2.String())
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}

	saved, err := h.blends.SaveBlend(c.Request.Context(), id1.String(), id2.String(), payload)
	if err != nil {
		h.logger.Warn("blend persist failed",
			zap.String("user_id1", id1.String()),
			zap.String("user_id2", id2.String()),
			zap.Error(err))
		c.Data(http.StatusOK, "application/json", payload)
		return
	}
	h.respondBlend(c, &saved)
}

func (h *httpHandler) handleBlendByID(c *gin.Context) {
	id := c.Param("id")
	blend, err := h.blends.BlendByID(c.Request.Context(), id)
	if err != nil || blend == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgBlendNotFound})
		return
	}
	h.respondBlend(c, blend)
}

// respondBlend renders the stored payload with a _meta block describing the
// cached row.
func (h *httpHandler) respondBlend(c *gin.Context, blend *blends.Blend) {
	body := map[string]any{}
	if err := json.Unmarshal(blend.Payload(), &body); err != nil {
		h.logger.Error("stored blend payload is not an object", zap.String("blend_id", blend.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	body["_meta"] = gin.H{
		"blend_id":   blend.ID,
		"user1_id":   blend.User1ID,
		"user2_id":   blend.User2ID,
		"created_at": blend.CreatedAt.UTC().Format(time.RFC3339),
	}
	c.JSON(http.StatusOK, body)
}

type shareRequestPayload struct {
	UserID string `json:"user_id"`
}

func (h *httpHandler) handleShareCreate(c *gin.Context) {
	var request shareRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	user, err := h.users.CachedUser(c.Request.Context(), request.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgUserNotCached})
		return
	}

	link, err := h.share.Create(c.Request.Context(), request.UserID)
	if err != nil {
		h.logger.Error("share link create failed", zap.String("user_id", request.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create share link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"share_url":  h.shareURL(user),
		"user":       gin.H{"id": user.ID, "name": user.Name, "image_url": user.ImageURL},
		"created_at": link.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) handleShareGet(c *gin.Context) {
	userID := c.Query("user_id")
	if strings.TrimSpace(userID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	link, err := h.share.ByUserID(c.Request.Context(), userID)
	if err != nil || link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgShareNotFound})
		return
	}

	user, _ := h.users.CachedUser(c.Request.Context(), userID)
	var summary gin.H
	shareURL := h.shareBaseURL + "/share/" + userID
	if user != nil {
		summary = gin.H{"id": user.ID, "name": user.Name, "image_url": user.ImageURL}
		shareURL = h.shareURL(user)
	}

	c.JSON(http.StatusOK, gin.H{
		"share_url":  shareURL,
		"user":       summary,
		"created_at": link.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) handleShareResolve(c *gin.Context) {
	slug := c.Query("slug")
	if strings.TrimSpace(slug) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug is required"})
		return
	}

	user, err := h.share.Resolve(c.Request.Context(), slug)
	if err != nil || user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgShareNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": user.ID,
		"slug":    user.SlugValue(),
		"user": gin.H{
			"id":          user.ID,
			"name":        user.Name,
			"image_url":   user.ImageURL,
			"profile_url": user.ProfileURL,
		},
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// shareURL prefers the slug as the public share key and falls back to the
// canonical id for rows that predate slug support.
func (h *httpHandler) shareURL(user *users.User) string {
	key := user.SlugValue()
	if key == "" {
		key = user.ID
	}
	return h.shareBaseURL + "/share/" + key
}

// respondUpstreamError hides upstream detail from callers: not-found class
// statuses map to 404, everything else to 502. Raw detail is logged only.
func (h *httpHandler) respondUpstreamError(c *gin.Context, err error) {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		h.logger.Warn("upstream rejected request",
			zap.Int("status", statusErr.Code),
			zap.String("body", statusErr.Body))
		if statusErr.Code >= http.StatusBadRequest && statusErr.Code < http.StatusInternalServerError {
			c.JSON(http.StatusNotFound, gin.H{"error": msgProfileNotFound})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msgUpstreamFailure})
		return
	}
	h.logger.Error("upstream call failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": msgUpstreamFailure})
}

func profileFromUpstream(id identity.CanonicalID, user upstream.Profile) users.Profile {
	profileID := user.ID
	if profileID == "" {
		profileID = id.String()
	}
	profile := users.Profile{
		ID:   profileID,
		Name: user.Name,
	}
	if user.ImageURL != "" {
		profile.ImageURL = &user.ImageURL
	}
	if user.ProfileURL != "" {
		profile.ProfileURL = &user.ProfileURL
	}
	if user.Username != "" {
		profile.Username = &user.Username
	}
	if user.BookCount != "" {
		if count, err := strconv.Atoi(user.BookCount); err == nil {
			profile.BookCount = &count
		}
	}
	return profile
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
