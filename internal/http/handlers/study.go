package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/http/response"
	"github.com/yungbote/roadmap-tracker/internal/observability"
	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/study"
)

type StudyHandler struct {
	study   *study.Service
	metrics *observability.Metrics
}

func NewStudyHandler(svc *study.Service, metrics *observability.Metrics) *StudyHandler {
	return &StudyHandler{study: svc, metrics: metrics}
}

type startSessionRequest struct {
	TopicID string `json:"topicId" binding:"required"`
}

// POST /api/study/sessions
func (h *StudyHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
		return
	}
	userID := ctxutil.UserID(c.Request.Context())
	sess, err := h.study.StartSession(dbcOf(c), userID, strings.TrimSpace(req.TopicID))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "start_session_failed", err)
		return
	}
	h.metrics.IncStudySession("start")
	response.RespondCreated(c, gin.H{"session": sess})
}

type endSessionRequest struct {
	Progress int `json:"progress" binding:"min=0,max=100"`
}

// POST /api/study/sessions/:id/end
func (h *StudyHandler) EndSession(c *gin.Context) {
	var req endSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", bindingMessage(err))
			return
		}
	}
	userID := ctxutil.UserID(c.Request.Context())
	sess, err := h.study.EndSession(dbcOf(c), userID, c.Param("id"), req.Progress)
	if err != nil {
		response.RespondAPIError(c, err, "end_session_failed")
		return
	}
	h.metrics.IncStudySession("end")
	response.RespondOK(c, gin.H{"session": sess})
}

// GET /api/study/time?period=today|week|month|all
func (h *StudyHandler) StudyTime(c *gin.Context) {
	period, err := study.ParsePeriod(c.DefaultQuery("period", string(study.PeriodAll)))
	if err != nil {
		response.RespondAPIError(c, err, "invalid_period")
		return
	}
	userID := ctxutil.UserID(c.Request.Context())
	minutes, err := h.study.StudyTime(dbcOf(c), userID, period)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "study_time_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"period": period, "minutes": minutes})
}

// GET /api/study/streak
func (h *StudyHandler) Streak(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	streak, err := h.study.Streak(dbcOf(c), userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "study_streak_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"streak": streak})
}

// GET /api/study/analytics
func (h *StudyHandler) Analytics(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	a, err := h.study.Analytics(dbcOf(c), userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "study_analytics_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"analytics": a})
}
