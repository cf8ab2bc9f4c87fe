package handlers

import (
	"net/http"

	"testflow_backend/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler exposes the run state machine. The client keeps the session
// value and posts it back with every call; errors echo it unchanged.
type SessionHandler struct {
	machine *session.Machine
	logger  *zap.Logger
}

func NewSessionHandler(m *session.Machine, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{machine: m, logger: logger}
}

type startSessionRequest struct {
	TesterName string `json:"tester_name" binding:"required"`
}

type respondRequest struct {
	Session  session.Session `json:"session"`
	Approved *bool           `json:"approved" binding:"required"`
	Remark   string          `json:"remark"`
}

type questionnaireRequest struct {
	Session session.Session `json:"session"`
	Answers map[int]string  `json:"answers"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.machine.Start(c.Request.Context(), req.TesterName)
	if err != nil {
		h.fail(c, s, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s})
}

func (h *SessionHandler) Respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := h.machine.Respond(c.Request.Context(), req.Session, *req.Approved, req.Remark)
	if err != nil {
		h.fail(c, step.Session, err)
		return
	}

	body := gin.H{
		"session":    step.Session,
		"response":   step.Response,
		"replayed":   step.Replayed,
		"alert_sent": step.AlertSent,
	}
	if step.AlertError != nil {
		body["alert_error"] = errorBody(step.AlertError)["error"]
	}
	c.JSON(http.StatusOK, body)
}

func (h *SessionHandler) SubmitQuestionnaire(c *gin.Context) {
	var req questionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.machine.SubmitQuestionnaire(c.Request.Context(), req.Session, req.Answers)
	if err != nil {
		h.fail(c, s, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "message": "Report generated and sent successfully"})
}

func (h *SessionHandler) fail(c *gin.Context, s session.Session, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		h.logger.Error("session step failed", zap.String("test_run_id", s.RunID), zap.Error(err))
	}
	_ = c.Error(err)
	body := errorBody(err)
	body["session"] = s
	c.JSON(status, body)
}
