package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-onboard/internal/api/dto"
	"go-onboard/internal/domain"
	"go-onboard/internal/engine"
	"go-onboard/internal/service"
)

type OnboardingHandler struct {
	service service.OnboardingService
	logger  *slog.Logger
}

func NewOnboardingHandler(svc service.OnboardingService, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{service: svc, logger: logger}
}

// Register mounts the onboarding routes on r.
func (h *OnboardingHandler) Register(r gin.IRouter) {
	g := r.Group("/onboarding/:owner")
	{
		g.POST("/init", h.Initialize)
		g.POST("/steps/:step/complete", h.CompleteStep)
		g.POST("/goto", h.GoToStep)
		g.POST("/reset", h.Reset)
		g.GET("/progress", h.Progress)
		g.GET("/state", h.State)
		g.GET("/history", h.History)
	}
}

func (h *OnboardingHandler) Initialize(c *gin.Context) {
	var req dto.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	st, err := h.service.Initialize(c.Request.Context(), c.Param("owner"), req.Role)
	h.respond(c, st, err)
}

func (h *OnboardingHandler) CompleteStep(c *gin.Context) {
	step, err := domain.ParseStepID(c.Param("step"))
	if err != nil {
		h.fail(c, err)
		return
	}

	// The body is optional: a step without a form completes with {}.
	var req dto.CompleteStepRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	st, err := h.service.CompleteStep(c.Request.Context(), c.Param("owner"), step, req.Payload)
	h.respond(c, st, err)
}

func (h *OnboardingHandler) GoToStep(c *gin.Context) {
	var req dto.GoToStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	st, err := h.service.GoToStep(c.Request.Context(), c.Param("owner"), req.Step)
	h.respond(c, st, err)
}

func (h *OnboardingHandler) Reset(c *gin.Context) {
	st, err := h.service.Reset(c.Request.Context(), c.Param("owner"))
	h.respond(c, st, err)
}

func (h *OnboardingHandler) State(c *gin.Context) {
	st, err := h.service.State(c.Request.Context(), c.Param("owner"))
	h.respond(c, st, err)
}

func (h *OnboardingHandler) Progress(c *gin.Context) {
	st, err := h.service.State(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		CurrentStep:    st.CurrentStep,
		CompletedCount: st.Progress.CompletedCount,
		TotalCount:     st.Progress.TotalCount,
		Percentage:     st.Progress.Percentage,
	})
}

func (h *OnboardingHandler) History(c *gin.Context) {
	archived, err := h.service.History(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]dto.ArchivedProgressResponse, 0, len(archived))
	for _, a := range archived {
		out = append(out, dto.ArchivedProgressResponse{
			Reason:         a.Reason,
			ArchivedAt:     a.ArchivedAt,
			CurrentStep:    a.Record.CurrentStep,
			CompletedSteps: a.Record.CompletedSteps,
			Version:        a.Record.Version,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *OnboardingHandler) respond(c *gin.Context, st engine.State, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *OnboardingHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("onboarding request failed",
			"owner_id", c.Param("owner"),
			"path", c.FullPath(),
			"status", status,
			"error", err,
		)
	}

	var de *domain.Error
	if errors.As(err, &de) {
		msg := de.Message
		if msg == "" {
			msg = de.Error()
		}
		c.JSON(status, dto.ErrorResponse{Code: string(de.Code), Step: de.Step, Message: msg})
		return
	}
	c.JSON(status, dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeUnknownStep, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidPayload:
		return http.StatusUnprocessableEntity
	case domain.CodeNotCurrentStep, domain.CodeSkippedRequiredStep, domain.CodeNotReversible,
		domain.CodeRoleNotPermitted, domain.CodeWorkflowFrozen, domain.CodeVersionConflict:
		return http.StatusConflict
	case domain.CodeStorage:
		return http.StatusServiceUnavailable
	case domain.CodeStorageTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
