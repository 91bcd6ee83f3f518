package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/fanstage/live-service/internal/access"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/metrics"
	"github.com/fanstage/live-service/internal/service"
	"github.com/fanstage/live-service/internal/session"
	"github.com/fanstage/live-service/pkg/log"
	"github.com/fanstage/live-service/pkg/middleware"
	"github.com/fanstage/live-service/pkg/response"
)

// HTTPHandler serves the session management and playback REST surface.
type HTTPHandler struct {
	sessions session.LifecycleManager
	live     service.LiveService
	metrics  *metrics.Aggregator
}

// NewHTTPHandler creates the REST handler.
func NewHTTPHandler(sessions session.LifecycleManager, live service.LiveService, agg *metrics.Aggregator) *HTTPHandler {
	return &HTTPHandler{sessions: sessions, live: live, metrics: agg}
}

// RegisterRoutes attaches all routes to the engine.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, ws *WSHandler) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.GET("/sessions", middleware.OptionalIdentity(), h.ListSessions)
		v1.GET("/sessions/:id", middleware.OptionalIdentity(), h.GetSession)
		v1.GET("/sessions/:id/metrics", middleware.OptionalIdentity(), h.SessionMetrics)

		v1.POST("/sessions", middleware.Identity(), h.CreateSession)
		v1.POST("/sessions/:id/start", middleware.Identity(), h.StartSession)
		v1.POST("/sessions/:id/stop", middleware.Identity(), h.StopSession)
		v1.POST("/sessions/:id/cancel", middleware.Identity(), h.CancelSession)
		v1.POST("/sessions/:id/watch", middleware.Identity(), h.Watch)

		v1.GET("/users/me/sessions", middleware.Identity(), h.MySessions)
	}

	r.GET("/live/ws", middleware.Identity(), ws.HandleWebSocket)
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// CreateSession creates a session for the authenticated artist. Without a
// scheduled time the session starts immediately.
func (h *HTTPHandler) CreateSession(c *gin.Context) {
	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), middleware.UserID(c), middleware.Username(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Created(c, sess.ToOwnerResponse())
}

// ListSessions returns a page of sessions.
func (h *HTTPHandler) ListSessions(c *gin.Context) {
	var req domain.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	list, err := h.sessions.List(c.Request.Context(), req.Page, req.PageSize, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, list)
}

// GetSession returns one session. The owner additionally sees the ingest
// credentials.
func (h *HTTPHandler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	if middleware.UserID(c) == sess.OwnerID {
		response.Success(c, sess.ToOwnerResponse())
		return
	}
	response.Success(c, sess.ToResponse())
}

// MySessions returns every session of the authenticated artist, including
// ingest credentials.
func (h *HTTPHandler) MySessions(c *gin.Context) {
	sessions, err := h.sessions.OwnerSessions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]domain.OwnerSessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].ToOwnerResponse())
	}
	response.Success(c, out)
}

// StartSession begins the go-live transition for a scheduled session.
func (h *HTTPHandler) StartSession(c *gin.Context) {
	sess, err := h.sessions.Start(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, sess.ToOwnerResponse())
}

// StopSession begins the shutdown transition for a live session.
func (h *HTTPHandler) StopSession(c *gin.Context) {
	sess, err := h.sessions.Stop(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, sess.ToOwnerResponse())
}

// CancelSession ends a scheduled session that never went live.
func (h *HTTPHandler) CancelSession(c *gin.Context) {
	sess, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, sess.ToOwnerResponse())
}

// Watch evaluates playback access and returns a signed locator on grant.
// Denials are normal outcomes and carry their reason.
func (h *HTTPHandler) Watch(c *gin.Context) {
	decision, err := h.live.Watch(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	if !decision.Granted {
		response.Denied(c, string(decision.Reason), "access denied")
		return
	}
	response.Success(c, decision)
}

// SessionMetrics returns the advisory realtime counters for a session.
func (h *HTTPHandler) SessionMetrics(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sessions.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, h.metrics.Snapshot(id))
}

// fail maps domain errors onto the HTTP edge.
func (h *HTTPHandler) fail(c *gin.Context, err error) {
	var evalErr *access.EvaluationError

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, domain.ErrNotSessionOwner):
		response.Forbidden(c, "not the session owner")
	case errors.Is(err, domain.ErrInvalidState):
		response.Conflict(c, "session state does not allow this action")
	case errors.Is(err, domain.ErrMaxActiveSessions):
		response.Conflict(c, "maximum concurrent live sessions reached")
	case domain.IsValidation(err):
		response.BadRequest(c, err.Error())
	case domain.IsUpstream(err):
		response.BadGateway(c, "upstream call failed, retry the action")
	case errors.As(err, &evalErr):
		response.BadGateway(c, "access evaluation failed, retry the request")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("unhandled error")
		response.InternalError(c, "internal error")
	}
}
