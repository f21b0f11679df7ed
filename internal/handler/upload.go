package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/service"
	"github.com/scripttrimmer/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Presign handles POST /api/upload/presign
// @Summary      Presign video upload
// @Description  Get a presigned S3 PUT URL; the returned s3_url is a valid job_reference
// @Tags         Upload
// @Accept       json
// @Produce      json
// @Param        request body model.PresignRequest true "Presign request"
// @Success      200 {object} model.PresignResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/presign [post]
func (h *UploadHandler) Presign(c *fiber.Ctx) error {
	var req model.PresignRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Presign(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrStorageNotConfigured) {
			return response.StorageError(c, "Object storage is not configured")
		}
		return response.StorageError(c, err.Error())
	}

	return response.OK(c, result)
}
