package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/service"
	"github.com/scripttrimmer/api/pkg/response"
)

type ProcessHandler struct {
	service   *service.ProcessService
	validator *validator.Validate
}

func NewProcessHandler(svc *service.ProcessService, v *validator.Validate) *ProcessHandler {
	return &ProcessHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/process/start
// @Summary      Start processing job
// @Description  Queue a video for download, transcription, topic analysis and segment extraction
// @Tags         Process
// @Accept       json
// @Produce      json
// @Param        request body model.ProcessStartRequest true "Process start request"
// @Success      202 {object} model.ProcessStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/start [post]
func (h *ProcessHandler) Start(c *fiber.Ctx) error {
	var req model.ProcessStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Start(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidReference) {
			return response.ValidationError(c, "job_reference must be a YouTube URL, an HTTP(S) URL, or an s3:// object", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/process/status/:key
// @Summary      Get processing job status
// @Description  Get the latest known status and progress of a processing job
// @Tags         Process
// @Produce      json
// @Param        key path string true "Job key"
// @Success      200 {object} model.ProcessStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/status/{key} [get]
func (h *ProcessHandler) Status(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.ValidationError(c, "Job key is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/process/result/:key
// @Summary      Get processing job result
// @Description  Get the topics and uploaded segments of a completed job
// @Tags         Process
// @Produce      json
// @Param        key path string true "Job key"
// @Success      200 {object} model.ProcessResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/process/result/{key} [get]
func (h *ProcessHandler) Result(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.ValidationError(c, "Job key is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrJobNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		if errors.Is(err, service.ErrJobFailed) {
			return response.Error(c, fiber.StatusConflict, response.CodePipelineFailed, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
