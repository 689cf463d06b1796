package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kaanbsaglam/studyai-backend/internal/http/response"
	"github.com/kaanbsaglam/studyai-backend/internal/modules/studygen"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/apierr"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
)

type GenerateHandler struct {
	log  *logger.Logger
	orch *studygen.Orchestrator
}

func NewGenerateHandler(log *logger.Logger, orch *studygen.Orchestrator) *GenerateHandler {
	return &GenerateHandler{log: log.With("handler", "generate"), orch: orch}
}

type generateDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

type generateRequest struct {
	Task      string              `json:"task"`
	Content   string              `json:"content"`
	Documents []generateDocument  `json:"documents"`
	Params    studygen.TaskParams `json:"params"`
	Options   struct {
		Tier         string `json:"tier"`
		ChunkingMode string `json:"chunking_mode"`
		ChunkSize    int    `json:"chunk_size"`
	} `json:"options"`
}

func (h *GenerateHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Documents) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_content", errors.New("provide content or documents"))
		return
	}

	var content studygen.Content
	if len(req.Documents) > 0 {
		docs := make([]studygen.Document, 0, len(req.Documents))
		for _, d := range req.Documents {
			id, _ := uuid.Parse(d.ID)
			docs = append(docs, studygen.Document{ID: id, Name: d.Name, Text: d.Text})
		}
		content = studygen.DocumentContent(docs)
	} else {
		content = studygen.TextContent(req.Content)
	}

	outcome, err := h.orch.Run(c.Request.Context(), req.Task, content, req.Params, studygen.Options{
		Tier:                 req.Options.Tier,
		ChunkingModeOverride: req.Options.ChunkingMode,
		ChunkSizeOverride:    req.Options.ChunkSize,
	})
	if err != nil {
		ae := pipelineError(err)
		if ae.Status >= http.StatusInternalServerError {
			h.log.Error("generation pipeline failed", "task", req.Task, "code", ae.Code, "error", err)
		}
		response.RespondError(c, ae.Status, ae.Code, ae.Err)
		return
	}
	response.RespondOK(c, outcome)
}

// pipelineError maps pipeline failures onto API errors.
func pipelineError(err error) *apierr.Error {
	switch {
	case studygen.IsContentTooLarge(err):
		return apierr.New(http.StatusRequestEntityTooLarge, "content_too_large", err)
	case errors.Is(err, studygen.ErrUnknownTask):
		return apierr.New(http.StatusBadRequest, "unknown_task", err)
	case errors.Is(err, studygen.ErrContractViolation):
		return apierr.New(http.StatusInternalServerError, "contract_violation", err)
	default:
		return apierr.New(http.StatusBadGateway, "generation_failed", err)
	}
}
