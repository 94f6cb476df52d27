// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired       = "auth.required"
	KeyAuthInvalidToken   = "auth.invalid_token"
	KeyAuthTokenExpired   = "auth.token_expired"
	KeyAuthInvalidWebhook = "auth.invalid_webhook_signature"

	// Webhooks
	KeyWebhookTooLarge = "webhook.payload_too_large"

	// Transactions
	KeyTransactionCreated   = "transaction.created"
	KeyTransactionNotFound  = "transaction.not_found"
	KeyTransactionRematched = "transaction.rematched"

	// Selection and checkout
	KeySelectionSaved       = "selection.saved"
	KeySelectionInvalid     = "selection.invalid"
	KeySelectionTooMany     = "selection.too_many"
	KeySelectionAlreadyPaid = "selection.already_paid"

	// Payments
	KeyPaymentSuccess       = "payment.success"
	KeyPaymentPending       = "payment.pending"
	KeyPaymentFailed        = "payment.failed"
	KeyPaymentIntegrity     = "payment.integrity_violation"
	KeyPaymentMissingTarget = "payment.missing_purpose_metadata"

	// Offerings
	KeyOfferingNotFound  = "offering.not_found"
	KeyOfferingActivated = "offering.activated"
	KeyOfferingRated     = "offering.rated"

	// Similarity
	KeySimilarityNotUnlocked = "similarity.source_not_unlocked"
	KeyFeedbackRecorded      = "similarity.feedback_recorded"

	// Batch
	KeyBatchCreated  = "batch.created"
	KeyBatchNotFound = "batch.not_found"
	KeyBatchResumed  = "batch.resumed"
	KeyBatchPaused   = "batch.paused"
	KeyBatchRequeued = "batch.row_requeued"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Upstream
	KeyRateLimited         = "upstream.rate_limited"
	KeyUpstreamUnavailable = "upstream.unavailable"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadFailed = "file.upload_failed"
	KeyFileInvalidType  = "file.invalid_type"
	KeyFileTooLarge     = "file.too_large"
	KeyFileEmpty        = "file.empty"

	// Notifications
	KeyNotificationSubject = "notification.unlock_subject"
)
