// Package api provides the HTTP handlers of the streamsink server.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// Stores groups the read-side repositories used by the query endpoints.
type Stores struct {
	Users       streamsink.UserRepository
	Orders      streamsink.OrderRepository
	DeadLetters streamsink.DeadLetterRepository
	Ping        func(ctx context.Context) error // Optional database health check
}

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher *streamsink.Publisher
	stores    Stores
	logger    streamsink.Logger
}

// NewHandler creates a new API handler.
func NewHandler(publisher *streamsink.Publisher, stores Stores, logger streamsink.Logger) *Handler {
	return &Handler{
		publisher: publisher,
		stores:    stores,
		logger:    logger,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResolveRequest is the body of POST /api/deadletters/:id/resolve.
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

// Register mounts every route under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/users", h.CreateUser)
	api.GET("/users", h.ListUsers)
	api.GET("/users/:id", h.GetUser)

	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)

	api.POST("/notifications", h.CreateNotification)
	api.POST("/events", h.CreateEvent)

	api.GET("/deadletters", h.ListDeadLetters)
	api.GET("/deadletters/stats", h.DeadLetterStats)
	api.POST("/deadletters/:id/resolve", h.ResolveDeadLetter)

	api.GET("/health", h.Health)
}

// CreateUser handles POST /api/users
func (h *Handler) CreateUser(c *gin.Context) {
	var u model.User
	if !h.bind(c, &u) {
		return
	}
	if _, err := h.publisher.PublishUser(c.Request.Context(), u); err != nil {
		h.respondPublishError(c, err)
		return
	}
	c.String(http.StatusOK, "User sent to Kafka: %s", u.ID)
}

// CreateOrder handles POST /api/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var o model.Order
	if !h.bind(c, &o) {
		return
	}
	if _, err := h.publisher.PublishOrder(c.Request.Context(), o); err != nil {
		h.respondPublishError(c, err)
		return
	}
	c.String(http.StatusOK, "Order sent to Kafka: %s", o.ID)
}

// CreateNotification handles POST /api/notifications
func (h *Handler) CreateNotification(c *gin.Context) {
	var n model.Notification
	if !h.bind(c, &n) {
		return
	}
	if _, err := h.publisher.PublishNotification(c.Request.Context(), n); err != nil {
		h.respondPublishError(c, err)
		return
	}
	c.String(http.StatusOK, "Notification sent: %s", n.ID)
}

// CreateEvent handles POST /api/events
func (h *Handler) CreateEvent(c *gin.Context) {
	var e model.GenericEvent
	if !h.bind(c, &e) {
		return
	}
	if _, err := h.publisher.PublishEvent(c.Request.Context(), e); err != nil {
		h.respondPublishError(c, err)
		return
	}
	c.String(http.StatusOK, "Event sent: %s", e.ID)
}

// ListUsers handles GET /api/users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.stores.Users.FindAll(c.Request.Context(), queryLimit(c))
	if streamsink.IsNoData(err) {
		users, err = []model.User{}, nil
	}
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUser handles GET /api/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.stores.Users.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ListOrders handles GET /api/orders, optionally filtered by ?userId=.
func (h *Handler) ListOrders(c *gin.Context) {
	var (
		orders []model.Order
		err    error
	)
	if userID := c.Query("userId"); userID != "" {
		orders, err = h.stores.Orders.FindByUser(c.Request.Context(), userID, queryLimit(c))
	} else {
		orders, err = h.stores.Orders.FindAll(c.Request.Context(), queryLimit(c))
	}
	if streamsink.IsNoData(err) {
		orders, err = []model.Order{}, nil
	}
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetOrder handles GET /api/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.stores.Orders.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// ListDeadLetters handles GET /api/deadletters.
//
// Query parameters: stream (items from one source stream), olderThan (a Go
// duration, unresolved items older than it) and limit. Without filters the
// unresolved items are listed oldest first.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryLimit(c)

	var (
		items []model.DeadLetter
		err   error
	)
	switch {
	case c.Query("stream") != "":
		items, err = h.stores.DeadLetters.FindByStream(ctx, c.Query("stream"), limit)
	case c.Query("olderThan") != "":
		threshold, perr := time.ParseDuration(c.Query("olderThan"))
		if perr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "olderThan must be a duration like 1h", Code: streamsink.ErrCodeValidation})
			return
		}
		items, err = h.stores.DeadLetters.FindOlderThan(ctx, threshold, limit)
	default:
		items, err = h.stores.DeadLetters.FindUnresolved(ctx, limit)
	}
	if streamsink.IsNoData(err) {
		items, err = []model.DeadLetter{}, nil
	}
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// DeadLetterStats handles GET /api/deadletters/stats
func (h *Handler) DeadLetterStats(c *gin.Context) {
	stats, err := h.stores.DeadLetters.GetStats(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ResolveDeadLetter handles POST /api/deadletters/:id/resolve
func (h *Handler) ResolveDeadLetter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid dead letter ID", Code: streamsink.ErrCodeValidation})
		return
	}

	var req ResolveRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "api"
	}

	ctx := c.Request.Context()
	item, err := h.stores.DeadLetters.Load(ctx, id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if item.IsResolved {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Dead letter already resolved", Code: "ALREADY_RESOLVED"})
		return
	}

	item.Resolve(req.ResolvedBy, req.Note)
	saved, err := h.stores.DeadLetters.Save(ctx, item)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	h.logger.Infof("Dead letter %d resolved by %s", id, req.ResolvedBy)
	c.JSON(http.StatusOK, saved)
}

// Health handles GET /api/health
func (h *Handler) Health(c *gin.Context) {
	if h.stores.Ping != nil {
		if err := h.stores.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON", Code: "INVALID_JSON", Message: err.Error()})
		return false
	}
	return true
}

func (h *Handler) respondPublishError(c *gin.Context, err error) {
	switch {
	case streamsink.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: streamsink.ErrCodeValidation, Message: err.Error()})
	case streamsink.IsPublishFailure(err):
		h.logger.Errorf("Failed to publish message: %v", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to publish message", Code: streamsink.ErrCodePublish})
	default:
		h.logger.Errorf("Failed to publish message: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Code: "INTERNAL_ERROR"})
	}
}

func (h *Handler) respondStoreError(c *gin.Context, err error) {
	if streamsink.IsNoData(err) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Code: streamsink.ErrCodeNoData})
		return
	}
	h.logger.Errorf("Store query failed: %v", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Code: streamsink.ErrCodeDatabase})
}

// queryLimit reads ?limit=, 0 meaning the repository default.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
