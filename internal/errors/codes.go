package errors

// Error codes returned in the "error" field. Format: CATEGORY_DETAIL.
// Clients map these to their own messages.

const (
	// ==================== Authentication (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED"  // login required
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED" // token expired
	AuthTokenInvalid = "AUTH_TOKEN_INVALID" // malformed or badly signed token

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"     // role may not access the resource
	AuthzAccessDenied = "AUTHZ_ACCESS_DENIED" // role may not perform the action

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationInvalidSort  = "VALIDATION_INVALID_SORT"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Permits (PERMIT_) ====================
	PermitNotFound               = "PERMIT_NOT_FOUND"
	PermitInvalidTransition      = "PERMIT_INVALID_TRANSITION"      // event not legal from the stored status
	PermitConcurrentModification = "PERMIT_CONCURRENT_MODIFICATION" // version changed since it was read
	PermitNumberExists           = "PERMIT_NUMBER_EXISTS"
	BusinessTypeNotFound         = "BUSINESS_TYPE_NOT_FOUND"

	// ==================== Fees (FEE_) ====================
	FeeInvalid = "FEE_INVALID" // negative or non-numeric component

	// ==================== Notifications (NOTIFICATION_) ====================
	NotificationNotFound = "NOTIFICATION_NOT_FOUND"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
	InternalConfigError   = "INTERNAL_CONFIG_ERROR"
)
