package handlers

import (
	"mime"
	"net/http"

	"testflow_backend/models"
	"testflow_backend/report"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReportHandler struct {
	reports *report.Service
	logger  *zap.Logger
}

func NewReportHandler(reports *report.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

func (h *ReportHandler) GenerateReport(c *gin.Context) {
	var req models.GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	artifact, err := h.reports.Generate(c.Request.Context(), report.Run{
		ID:         req.TestRunID,
		TesterName: req.TesterName,
		Start:      req.StartTime,
		End:        req.EndTime,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report generated and sent successfully", "filename": artifact.Filename})
}

// ResendReport rebuilds a run from its stored responses and mails it again.
func (h *ReportHandler) ResendReport(c *gin.Context) {
	artifact, err := h.reports.Resend(c.Request.Context(), c.Param("testRunId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report sent successfully", "filename": artifact.Filename})
}

func (h *ReportHandler) DownloadReport(c *gin.Context) {
	artifact, err := h.reports.Download(c.Request.Context(), c.Param("testRunId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}
