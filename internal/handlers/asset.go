// internal/handlers/asset.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/i18n"
	"github.com/javajoker/imi-ownership/internal/services"
	"github.com/javajoker/imi-ownership/internal/utils"
)

const idempotencyHeader = "Idempotency-Key"

type AssetHandler struct {
	assetService   *services.AssetService
	lineageService *services.LineageService
}

func NewAssetHandler(assetService *services.AssetService, lineageService *services.LineageService) *AssetHandler {
	return &AssetHandler{
		assetService:   assetService,
		lineageService: lineageService,
	}
}

// POST /assets/confirm
func (h *AssetHandler) ConfirmAsset(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ConfirmAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	result, err := h.assetService.ConfirmAsset(c.Request.Context(), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	creationResponse(c, result, i18n.T(lang, i18n.KeyAssetConfirmed))
}

// POST /assets/derivatives
func (h *AssetHandler) CreateDerivative(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateDerivativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	result, err := h.assetService.CreateDerivative(c.Request.Context(), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	creationResponse(c, result, i18n.T(lang, i18n.KeyDerivativeCreated))
}

// GET /assets/:id
func (h *AssetHandler) GetAsset(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	result, err := h.assetService.GetAsset(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// DELETE /assets/:id
func (h *AssetHandler) RetireAsset(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	requesterID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	// The body is optional on DELETE.
	var req services.RetireAssetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
			return
		}
		if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
			utils.ValidationErrorResponse(c, validationErrors)
			return
		}
	}

	result, err := h.assetService.RetireAsset(c.Request.Context(), id, requesterID, utils.IsAdmin(c), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAssetRetired),
		"asset":   result,
	})
}

// PUT /assets/:id/permissions
func (h *AssetHandler) UpdatePermissions(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	requesterID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	var req services.UpdatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	derivative, err := h.assetService.UpdateDerivativePermissions(c.Request.Context(), id, requesterID, utils.IsAdmin(c), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeyPermissionsUpdated),
		"derivative": derivative,
	})
}

// GET /assets/:id/lineage
func (h *AssetHandler) GetLineage(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}
	recompute, _ := strconv.ParseBool(c.DefaultQuery("recompute", "false"))

	view, err := h.lineageService.GetLineage(c.Request.Context(), id, recompute)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, view)
}

// GET /assets/:id/descendants
func (h *AssetHandler) GetDescendants(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}
	includeIndirect, _ := strconv.ParseBool(c.DefaultQuery("include_indirect", "false"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	view, err := h.lineageService.GetDescendants(c.Request.Context(), id, includeIndirect, limit)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, view)
}

func creationResponse(c *gin.Context, result *services.AssetResult, message string) {
	if result.Replayed {
		utils.SuccessResponse(c, gin.H{
			"message": message,
			"result":  result,
		})
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message,
		"result":  result,
	})
}

// serviceErrorResponse writes the response for an error returned by a ledger service.
func serviceErrorResponse(c *gin.Context, err error) {
	if errors.Is(err, services.ErrForbidden) {
		lang := utils.GetLangFromContext(c)
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAssetNotOwnedByCaller))
		return
	}
	utils.LedgerErrorResponse(c, err)
}

func uuidParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, label), nil)
		return uuid.Nil, false
	}
	return id, true
}

func requester(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	return userID, true
}
