package handlers

import (
	"net/http"

	"testflow_backend/catalog"
	"testflow_backend/models"
	"testflow_backend/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type QuestionnaireHandler struct {
	questionnaire *catalog.Questionnaire
	recorder      *session.Recorder
	logger        *zap.Logger
}

func NewQuestionnaireHandler(q *catalog.Questionnaire, recorder *session.Recorder, logger *zap.Logger) *QuestionnaireHandler {
	return &QuestionnaireHandler{questionnaire: q, recorder: recorder, logger: logger}
}

func (h *QuestionnaireHandler) GetQuestionnaire(c *gin.Context) {
	items, err := h.questionnaire.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *QuestionnaireHandler) ReplaceQuestionnaire(c *gin.Context) {
	var req models.ReplaceQuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.questionnaire.Replace(actorContext(c), req.Questions)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Questionnaire updated successfully", "questions": items})
}

func (h *QuestionnaireHandler) DeleteQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.questionnaire.Delete(actorContext(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}

func (h *QuestionnaireHandler) SubmitAnswers(c *gin.Context) {
	var req models.SubmitQuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answers := make(map[int]string, len(req.Responses))
	for _, r := range req.Responses {
		answers[r.QuestionID] = r.Answer
	}
	if err := h.recorder.RecordAnswers(c.Request.Context(), req.TestRunID, req.TesterName, answers); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}
