// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Assets
	KeyAssetConfirmed        = "asset.confirmed"
	KeyAssetRetired          = "asset.retired"
	KeyAssetNotFound         = "asset.not_found"
	KeyDerivativeCreated     = "asset.derivative_created"
	KeyPermissionsUpdated    = "asset.permissions_updated"
	KeyAssetNotOwnedByCaller = "asset.not_owned"
	KeyParentAttached        = "asset.parent_attached"
	KeyLineageRecomputed     = "asset.lineage_recomputed"

	// Ownership
	KeyOwnershipNotFound     = "ownership.not_found"
	KeyOwnershipTransferred  = "ownership.transferred"
	KeyOwnershipInsufficient = "ownership.insufficient"
	KeyOwnershipInvariant    = "ownership.invariant_violation"
	KeyOwnershipConflict     = "ownership.conflict"
	KeyOwnershipExported     = "ownership.exported"

	// Disputes
	KeyDisputeFlagged  = "dispute.flagged"
	KeyDisputeResolved = "dispute.resolved"

	// Notifications
	KeyNotificationNotFound = "notification.not_found"
	KeyNotificationRead     = "notification.read"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// Rate limiting
	KeyRateLimitExceeded = "rate_limit.exceeded"
)
