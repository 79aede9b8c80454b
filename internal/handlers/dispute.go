// internal/handlers/dispute.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-ownership/internal/i18n"
	"github.com/javajoker/imi-ownership/internal/services"
	"github.com/javajoker/imi-ownership/internal/utils"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
}

func NewDisputeHandler(disputeService *services.DisputeService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
	}
}

// POST /ownership/:id/dispute
func (h *DisputeHandler) FlagDispute(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	flaggerID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "ownership ID")
	if !ok {
		return
	}

	var req services.FlagDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	record, err := h.disputeService.FlagDispute(c.Request.Context(), id, flaggerID, req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyDisputeFlagged),
		"ownership": record,
	})
}

// PUT /ownership/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	resolverID, ok := requester(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "ownership ID")
	if !ok {
		return
	}

	var req services.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	resolution, err := h.disputeService.ResolveDispute(c.Request.Context(), id, resolverID, req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeyDisputeResolved),
		"resolution": resolution,
	})
}
