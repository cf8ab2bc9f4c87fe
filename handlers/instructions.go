package handlers

import (
	"net/http"

	"testflow_backend/catalog"
	"testflow_backend/models"
	"testflow_backend/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InstructionHandler struct {
	catalog  *catalog.Catalog
	recorder *session.Recorder
	logger   *zap.Logger
}

func NewInstructionHandler(c *catalog.Catalog, recorder *session.Recorder, logger *zap.Logger) *InstructionHandler {
	return &InstructionHandler{catalog: c, recorder: recorder, logger: logger}
}

func (h *InstructionHandler) GetInstructions(c *gin.Context) {
	instructions, err := h.catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, instructions)
}

func (h *InstructionHandler) CreateInstruction(c *gin.Context) {
	var req models.InstructionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instruction, err := h.catalog.Create(actorContext(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, instruction)
}

func (h *InstructionHandler) UpdateInstruction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.InstructionPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instruction, err := h.catalog.Update(actorContext(c), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, instruction)
}

func (h *InstructionHandler) DeleteInstruction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(actorContext(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Instruction deleted successfully"})
}

func (h *InstructionHandler) ReorderInstructions(c *gin.Context) {
	var req models.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instructions, err := h.catalog.Reorder(actorContext(c), req.OrderedIDs())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, instructions)
}

// SubmitResponse records one tester decision. A failed rejection alert is
// reported in the body but does not fail the request.
func (h *InstructionHandler) SubmitResponse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.recorder.RecordResponse(c.Request.Context(), models.TestResponse{
		InstructionID: id,
		TestRunID:     req.TestRunID,
		TesterName:    req.TesterName,
		Approved:      *req.Approved,
		Remark:        &req.Remark,
		TestNumber:    req.TestNumber,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body := gin.H{
		"success":    true,
		"response":   receipt.Response,
		"replayed":   receipt.Replayed,
		"alert_sent": receipt.AlertSent,
	}
	if receipt.AlertError != nil {
		body["alert_error"] = errorBody(receipt.AlertError)["error"]
	}
	c.JSON(http.StatusCreated, body)
}
