// internal/handlers/ownership.go
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-ownership/internal/i18n"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/services"
	"github.com/javajoker/imi-ownership/internal/utils"
)

type OwnershipHandler struct {
	ownershipService *services.OwnershipService
	transferService  *services.TransferService
	exportService    *services.ExportService
}

func NewOwnershipHandler(ownershipService *services.OwnershipService, transferService *services.TransferService, exportService *services.ExportService) *OwnershipHandler {
	return &OwnershipHandler{
		ownershipService: ownershipService,
		transferService:  transferService,
		exportService:    exportService,
	}
}

// GET /assets/:id/owners
func (h *OwnershipHandler) GetOwners(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}
	at, ok := timeQuery(c, "at")
	if !ok {
		return
	}

	owners, err := h.ownershipService.GetOwners(c.Request.Context(), id, at)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"asset_id": id,
		"owners":   owners,
	})
}

// GET /assets/:id/ownership/summary
func (h *OwnershipHandler) GetOwnershipSummary(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	summary, err := h.ownershipService.GetOwnershipSummary(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}

// GET /assets/:id/ownership/history
func (h *OwnershipHandler) GetOwnershipHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	history, err := h.ownershipService.GetOwnershipHistory(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, history)
}

// POST /assets/:id/transfers
func (h *OwnershipHandler) Transfer(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	requesterID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	var req services.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := h.transferService.Transfer(c.Request.Context(), id, requesterID, utils.IsAdmin(c), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyOwnershipTransferred),
		"transfer": result,
	})
}

// POST /assets/:id/export
func (h *OwnershipHandler) ExportSnapshot(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}
	at, ok := timeQuery(c, "at")
	if !ok {
		return
	}

	result, err := h.exportService.ExportOwnershipSnapshot(c.Request.Context(), id, at)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOwnershipExported),
		"export":  result,
	})
}

// POST /ownership/validate
func (h *OwnershipHandler) ValidateOwnership(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.PreviewValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := h.ownershipService.PreviewValidation(c.Request.Context(), req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// GET /creators/:id/assets
func (h *OwnershipHandler) GetCreatorAssets(c *gin.Context) {
	id, ok := uuidParam(c, "id", "creator ID")
	if !ok {
		return
	}

	filter := services.CreatorAssetsFilter{}
	filter.IncludeExpired, _ = strconv.ParseBool(c.DefaultQuery("include_expired", "false"))
	if ownershipType := c.Query("ownership_type"); ownershipType != "" {
		t := models.OwnershipType(ownershipType)
		if !t.Valid() {
			lang := utils.GetLangFromContext(c)
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "ownership_type"), nil)
			return
		}
		filter.OwnershipType = &t
	}

	records, err := h.ownershipService.GetCreatorAssets(c.Request.Context(), id, filter)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"creator_id": id,
		"ownerships": records,
	})
}

// timeQuery parses an optional RFC3339 query parameter.
func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), err.Error())
		return nil, false
	}
	return &t, true
}
