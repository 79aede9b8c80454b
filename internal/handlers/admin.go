// internal/handlers/admin.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/i18n"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/services"
	"github.com/javajoker/imi-ownership/internal/utils"
)

type AdminHandler struct {
	disputeService      *services.DisputeService
	lineageService      *services.LineageService
	ownershipService    *services.OwnershipService
	notificationService *services.NotificationService
}

func NewAdminHandler(disputeService *services.DisputeService, lineageService *services.LineageService, ownershipService *services.OwnershipService, notificationService *services.NotificationService) *AdminHandler {
	return &AdminHandler{
		disputeService:      disputeService,
		lineageService:      lineageService,
		ownershipService:    ownershipService,
		notificationService: notificationService,
	}
}

type attachParentRequest struct {
	ParentAssetID uuid.UUID `json:"parent_asset_id" validate:"required"`
}

// GET /admin/disputes
func (h *AdminHandler) GetDisputes(c *gin.Context) {
	filter := services.DisputeFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           models.DisputeStatus(c.Query("status")),
	}

	var ok bool
	if filter.AssetID, ok = optionalUUIDQuery(c, "asset_id"); !ok {
		return
	}
	if filter.CreatorID, ok = optionalUUIDQuery(c, "creator_id"); !ok {
		return
	}
	if filter.DisputedBy, ok = optionalUUIDQuery(c, "disputed_by"); !ok {
		return
	}
	if filter.From, ok = timeQuery(c, "from"); !ok {
		return
	}
	if filter.To, ok = timeQuery(c, "to"); !ok {
		return
	}

	result, err := h.disputeService.GetDisputedOwnerships(c.Request.Context(), filter)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// PUT /admin/assets/:id/parent
func (h *AdminHandler) AttachParent(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	var req attachParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	asset, err := h.lineageService.AttachParent(c.Request.Context(), id, req.ParentAssetID, adminID)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyParentAttached),
		"asset":   asset,
	})
}

// POST /admin/assets/:id/lineage/recompute
func (h *AdminHandler) RecomputeLineage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}
	persist, _ := strconv.ParseBool(c.DefaultQuery("persist", "true"))

	lineage, err := h.lineageService.RecomputeLineage(c.Request.Context(), id, persist, adminID)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLineageRecomputed),
		"lineage": lineage,
		"depth":   lineage.Depth(),
	})
}

// GET /admin/ledgers/audit
func (h *AdminHandler) AuditLedgers(c *gin.Context) {
	onlyInvalid, _ := strconv.ParseBool(c.DefaultQuery("only_invalid", "true"))

	audits, err := h.ownershipService.AuditLedgers(c.Request.Context(), onlyInvalid)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}
	if audits == nil {
		audits = []services.AssetAudit{}
	}

	utils.SuccessResponse(c, gin.H{
		"ledgers": audits,
	})
}

// GET /admin/assets/:id/audit/verify
func (h *AdminHandler) VerifyAuditChain(c *gin.Context) {
	id, ok := uuidParam(c, "id", "asset ID")
	if !ok {
		return
	}

	report, err := h.ownershipService.VerifyAuditChain(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, report)
}

// GET /admin/notifications
func (h *AdminHandler) GetNotifications(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	result, err := h.notificationService.ListNotifications(c.Request.Context(), nil, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, *result)
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return nil, false
	}
	return &id, true
}
