package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"datapulse/internal/auth"
	"datapulse/internal/domain"
	"datapulse/internal/export"
	"datapulse/internal/notify"
	"datapulse/internal/quote"
	"datapulse/internal/service"
	"datapulse/internal/storage"
)

// QuoteFetcher reads the third-party price feed.
type QuoteFetcher interface {
	Fetch(ctx context.Context) (*quote.Quote, error)
}

// SnapshotArchiver uploads CSV exports to object storage.
type SnapshotArchiver interface {
	Archive(ctx context.Context, points []domain.DataPoint) (*export.Snapshot, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
}

// Options configures the surrounding middleware.
type Options struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	StartedAt   time.Time
	Realtime    http.Handler
	Archiver    SnapshotArchiver
	Logger      *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users  service.UserService
	data   service.DataService
	tokens *auth.TokenManager
	quotes QuoteFetcher
	opts   Options
	log    *logrus.Logger
}

func NewHandler(users service.UserService, data service.DataService, tokens *auth.TokenManager, quotes QuoteFetcher, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &Handler{
		users:  users,
		data:   data,
		tokens: tokens,
		quotes: quotes,
		opts:   opts,
		log:    opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log))
	router.Use(corsMiddleware(h.opts.CORSOrigins))
	router.Use(newRateLimiter(h.opts.RateLimit, h.opts.RateWindow).middleware())

	router.GET("/health", h.health)
	router.POST("/register", h.register)
	router.POST("/login", h.login)
	if h.opts.Realtime != nil {
		router.GET("/ws", gin.WrapH(h.opts.Realtime))
	}

	authed := router.Group("/", requireAuth(h.tokens))
	{
		authed.GET("/me", h.me)
		authed.GET("/data", h.listData)
		authed.GET("/data/export", h.exportCSV)
		authed.GET("/external-quote", h.externalQuote)
	}

	admin := router.Group("/", requireAuth(h.tokens), requireAdmin())
	{
		admin.POST("/data", h.createData)
		admin.POST("/data/export/archive", h.archiveExport)
		admin.GET("/data/exports", h.listExports)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.opts.StartedAt).Truncate(time.Second).String(),
	})
}

type credentialsRequest struct {
	Username string      `json:"username"`
	Secret   string      `json:"secret"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (r credentialsRequest) secret() string {
	if r.Secret != "" {
		return r.Secret
	}
	return r.Password
}

type UserResponse struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	CreatedAt string      `json:"created_at"`
}

type LoginResponse struct {
	Token    string      `json:"token"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.secret(), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.log.Errorf("register user %q: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.secret())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("authenticate %q: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	token, err := h.tokens.Issue(user.Username, user.Role)
	if err != nil {
		h.log.Errorf("issue token for %q: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, Username: user.Username, Role: user.Role})
}

// MeResponse reports the stored account next to the role the presented token carries.
// The two differ when the role changed after the token was issued.
type MeResponse struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	TokenRole domain.Role `json:"token_role"`
	CreatedAt string      `json:"created_at"`
}

func (h *Handler) me(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "kind": kindAuthentication})
		return
	}

	user, err := h.users.GetByUsername(c.Request.Context(), claims.Username)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("load user %q: %v", claims.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		TokenRole: claims.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	})
}

type createDataRequest struct {
	Label string   `json:"label" binding:"required"`
	Value *float64 `json:"value" binding:"required"`
	Date  string   `json:"date" binding:"required"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
}

func filterFrom(c *gin.Context) domain.DataFilter {
	return domain.DataFilter{
		Label: strings.TrimSpace(c.Query("label")),
		Sort:  domain.SortOrder(strings.TrimSpace(c.Query("sort"))),
	}
}

func (h *Handler) listData(c *gin.Context) {
	points, err := h.data.List(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.dataError(c, "list data points", err)
		return
	}

	resp := make([]notify.PointMessage, len(points))
	for i := range points {
		resp[i] = notify.NewPointMessage(points[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createData(c *gin.Context) {
	var req createDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	point, err := h.data.Create(c.Request.Context(), req.Label, *req.Value, date)
	if err != nil {
		h.dataError(c, "create data point", err)
		return
	}

	c.JSON(http.StatusCreated, notify.NewPointMessage(*point))
}

func (h *Handler) exportCSV(c *gin.Context) {
	points, err := h.data.List(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.dataError(c, "list data points for export", err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="data.csv"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, points); err != nil {
		h.log.Warnf("write csv export: %v", err)
	}
}

func (h *Handler) archiveExport(c *gin.Context) {
	if h.opts.Archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	points, err := h.data.List(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.dataError(c, "list data points for archive", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	snap, err := h.opts.Archiver.Archive(ctx, points)
	if err != nil {
		h.log.Errorf("archive export: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to archive export"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":      snap.Key,
		"location": snap.Location,
		"url":      snap.URL,
		"rows":     snap.Rows,
	})
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) listExports(c *gin.Context) {
	if h.opts.Archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	objects, err := h.opts.Archiver.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("list exports: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list exports"})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func (h *Handler) externalQuote(c *gin.Context) {
	q, err := h.quotes.Fetch(c.Request.Context())
	if err != nil {
		h.log.Warnf("fetch external quote: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch external quote"})
		return
	}
	c.Data(http.StatusOK, q.ContentType, q.Body)
}

func (h *Handler) dataError(c *gin.Context, op string, err error) {
	if errors.Is(err, service.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Errorf("%s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "data store error"})
}
