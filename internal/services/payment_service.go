// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// Metadata keys attached to every checkout and read back on reconciliation.
const (
	MetaPurpose            = "purpose"
	MetaTransactionID      = "transaction_id"
	MetaOfferingIDs        = "offering_ids"
	MetaSourceOfferingID   = "source_offering_id"
	MetaSimilarOfferingIDs = "similar_offering_ids"
)

// Webhook and poll outcomes.
const (
	OutcomeProcessed          = "processed"
	OutcomeStatusUpdated      = "status_updated"
	OutcomeUnchanged          = "unchanged"
	OutcomeAlreadyPaid        = "already_paid"
	OutcomeIgnored            = "ignored"
	OutcomeUnknownPayment     = "unknown_payment"
	OutcomeUnknownTransaction = "unknown_transaction"
	OutcomeMissingMetadata    = "missing_purpose_metadata"
	OutcomeIntegrityViolation = "integrity_violation"
	OutcomeRejected           = "rejected"
	OutcomeNoPayment          = "no_payment"
)

const webhookProvider = "stripe"

type PaymentService struct {
	db            *gorm.DB
	store         transactionStore
	config        *config.Config
	gateway       gateway.Gateway
	catalog       *CatalogService
	unlocks       *UnlockService
	notifications *NotificationService
}

type CheckoutRequest struct {
	Purpose          models.PaymentPurpose `json:"purpose" validate:"omitempty,purpose"`
	OfferingIDs      []uuid.UUID           `json:"offering_ids,omitempty"`
	SourceOfferingID *uuid.UUID            `json:"source_offering_id,omitempty"`
	PayerEmail       string                `json:"payer_email,omitempty" validate:"omitempty,email"`
}

// CheckoutOptions carries the purpose specific inputs of a checkout.
type CheckoutOptions struct {
	OfferingIDs      []uuid.UUID
	SourceOfferingID uuid.UUID
	PayerEmail       string
}

type CheckoutResult struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	Purpose       models.PaymentPurpose `json:"purpose"`
	PreferenceID  string                `json:"preference_id,omitempty"`
	CheckoutURL   string                `json:"checkout_url,omitempty"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      string                `json:"currency"`
	AlreadyPaid   bool                  `json:"already_paid"`
}

type WebhookRequest struct {
	RequestID string
	Signature string
	Body      []byte
}

type WebhookResult struct {
	Outcome       string               `json:"outcome"`
	EventID       string               `json:"event_id,omitempty"`
	TransactionID *uuid.UUID           `json:"transaction_id,omitempty"`
	PaymentStatus models.PaymentStatus `json:"payment_status,omitempty"`
	Degraded      bool                 `json:"degraded,omitempty"`
}

type StatusResult struct {
	Transaction *models.Transaction `json:"-"`
	Outcomes    []string            `json:"outcomes"`
}

// applyResult is what the single state-transition path reports back.
type applyResult struct {
	Outcome     string
	Transaction *models.Transaction
}

func NewPaymentService(db *gorm.DB, config *config.Config, gw gateway.Gateway, catalog *CatalogService, unlocks *UnlockService, notifications *NotificationService) *PaymentService {
	return &PaymentService{
		db:            db,
		store:         transactionStore{db: db},
		config:        config,
		gateway:       gw,
		catalog:       catalog,
		unlocks:       unlocks,
		notifications: notifications,
	}
}

// CreateCheckout opens a gateway checkout for one purpose. The charge is
// always re-derived from stored state, never from the client.
func (s *PaymentService) CreateCheckout(ctx context.Context, transactionID uuid.UUID, purpose models.PaymentPurpose, opts CheckoutOptions) (*CheckoutResult, error) {
	if purpose == "" {
		purpose = models.PaymentPurposePrimary
	}
	if !purpose.Valid() {
		return nil, invalidSelection("unknown payment purpose %q", purpose)
	}

	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		TransactionID: t.ID,
		Purpose:       purpose,
		Currency:      t.Currency,
	}

	var (
		ids       []uuid.UUID
		unitPrice decimal.Decimal
		metadata  = map[string]string{
			MetaPurpose:       string(purpose),
			MetaTransactionID: t.ID.String(),
		}
	)

	switch purpose {
	case models.PaymentPurposePrimary:
		if t.IsPaid() {
			result.AlreadyPaid = true
			return result, nil
		}
		if len(t.SelectedIDs) == 0 {
			return nil, invalidSelection("no offerings selected")
		}
		ids = t.SelectedIDs
		unitPrice = t.UnitPrice
		if expected := models.ComputeTotal(len(ids), unitPrice); !expected.Equal(t.TotalAmount) {
			return nil, integrityViolation("stored total %s does not match %d x %s", t.TotalAmount.StringFixed(2), len(ids), unitPrice.StringFixed(2))
		}

	case models.PaymentPurposeAdditional:
		ids = uniqueIDs(opts.OfferingIDs)
		if len(ids) == 0 {
			return nil, invalidSelection("select at least one additional offering")
		}
		approved := make(map[uuid.UUID]bool, len(t.ApprovedAdditionalIDs))
		for _, id := range t.ApprovedAdditionalIDs {
			approved[id] = true
		}
		var pending []uuid.UUID
		for _, id := range ids {
			if !approved[id] {
				return nil, invalidSelection("offering %s was not approved for this transaction", id)
			}
			if !t.IsUnlocked(id) {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			result.AlreadyPaid = true
			return result, nil
		}
		ids = pending
		unitPrice = t.UnitPrice
		metadata[MetaOfferingIDs] = joinIDs(ids)

	case models.PaymentPurposeSimilarity:
		idx := t.SimilarUnlockFor(opts.SourceOfferingID)
		if idx < 0 {
			return nil, invalidSelection("no similar offerings were generated for %s", opts.SourceOfferingID)
		}
		entry := t.SimilarUnlocks[idx]
		if entry.Paid {
			result.AlreadyPaid = true
			return result, nil
		}
		ids = uniqueIDs(opts.OfferingIDs)
		if len(ids) == 0 {
			return nil, invalidSelection("select at least one similar offering")
		}
		generated := make(map[uuid.UUID]bool, len(entry.Items))
		for _, item := range entry.Items {
			generated[item.OfferingID] = true
		}
		for _, id := range ids {
			if !generated[id] {
				return nil, invalidSelection("offering %s is not a similar offering of %s", id, opts.SourceOfferingID)
			}
		}
		unitPrice = s.config.Payment.SimilarityUnitPrice
		metadata[MetaSourceOfferingID] = opts.SourceOfferingID.String()
		metadata[MetaSimilarOfferingIDs] = joinIDs(ids)
	}

	result.Amount = models.ComputeTotal(len(ids), unitPrice)

	payer := opts.PayerEmail
	if payer == "" {
		payer = t.ClientEmail
	}

	pref, err := s.gateway.CreatePreference(ctx, gateway.PreferenceRequest{
		Items: []gateway.Item{{
			Title:       checkoutTitle(purpose),
			Description: fmt.Sprintf("%d vendor contact(s)", len(ids)),
			Quantity:    int64(len(ids)),
			UnitPrice:   unitPrice,
			Currency:    t.Currency,
		}},
		PayerEmail: payer,
		BackURLs: gateway.BackURLs{
			Success: s.backURL(s.config.Payment.SuccessURL, t),
			Failure: s.backURL(s.config.Payment.FailureURL, t),
			Pending: s.backURL(s.config.Payment.PendingURL, t),
		},
		ExternalReference: t.ExternalReference,
		Metadata:          metadata,
	})
	if err != nil {
		return nil, classifyUpstream("payment gateway", err)
	}

	result.PreferenceID = pref.ID
	result.CheckoutURL = pref.InitPoint

	// Only the primary checkout is tracked on the transaction row. A crash
	// before this write just leaves a checkout the client can open again.
	switch purpose {
	case models.PaymentPurposePrimary:
		_, _, err = s.store.update(context.WithoutCancel(ctx), t.ID, func(t *models.Transaction) (bool, error) {
			if t.IsPaid() {
				return false, nil
			}
			t.GatewayPreferenceID = pref.ID
			t.GatewayCheckoutURL = pref.InitPoint
			return true, nil
		})
	case models.PaymentPurposeSimilarity:
		_, _, err = s.store.update(context.WithoutCancel(ctx), t.ID, func(t *models.Transaction) (bool, error) {
			idx := t.SimilarUnlockFor(opts.SourceOfferingID)
			if idx < 0 || t.SimilarUnlocks[idx].Paid {
				return false, nil
			}
			t.SimilarUnlocks[idx].PreferenceID = pref.ID
			return true, nil
		})
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"purpose":        purpose,
		"preference_id":  pref.ID,
		"amount":         result.Amount.StringFixed(2),
	}).Info("Checkout created")

	return result, nil
}

// HandleWebhook verifies and applies one gateway notification. Anything that
// a redelivery cannot fix is acknowledged; only transient gateway failures
// return an error so the gateway retries.
func (s *PaymentService) HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	logger := logrus.WithField("request_id", req.RequestID)
	result := &WebhookResult{}

	hasHeaders := req.RequestID != "" || req.Signature != ""
	switch {
	case !hasHeaders:
		result.Degraded = true
		logger.Warn("Webhook without signature headers, processing in degraded trust mode")
	case req.RequestID == "" || req.Signature == "":
		metrics.WebhookEvents.WithLabelValues(OutcomeRejected).Inc()
		logger.Warn("Webhook with incomplete signature headers rejected")
		return nil, &ServiceError{Kind: ErrAuthenticationFailed, Message: "incomplete webhook signature headers"}
	case s.config.Payment.WebhookSecret == "":
		result.Degraded = true
		logger.Warn("Webhook secret not configured, signature not verified")
	case !utils.VerifyWebhookSignature(s.config.Payment.WebhookSecret, req.RequestID, req.Body, req.Signature):
		metrics.WebhookEvents.WithLabelValues(OutcomeRejected).Inc()
		logger.Warn("Webhook signature mismatch")
		return nil, &ServiceError{Kind: ErrAuthenticationFailed, Message: "invalid webhook signature"}
	}

	event, err := gateway.ParseEvent(req.Body)
	if err != nil {
		logger.WithError(err).Warn("Ignoring malformed webhook body")
		result.Outcome = OutcomeIgnored
		metrics.WebhookEvents.WithLabelValues(result.Outcome).Inc()
		return result, nil
	}
	result.EventID = event.ID

	inbox := s.recordInbox(ctx, req, event, !result.Degraded)

	finish := func(outcome string, procErr error) (*WebhookResult, error) {
		result.Outcome = outcome
		s.closeInbox(ctx, inbox, outcome, procErr)
		metrics.WebhookEvents.WithLabelValues(outcome).Inc()
		return result, nil
	}

	if event.Kind == "" || event.ResourceID == "" {
		logger.WithField("event_type", event.Type).Debug("Ignoring non payment webhook")
		return finish(OutcomeIgnored, nil)
	}

	detail, err := s.fetchDetail(ctx, event)
	if errors.Is(err, gateway.ErrNotFound) {
		logger.WithField("resource_id", event.ResourceID).Warn("Webhook references unknown payment")
		return finish(OutcomeUnknownPayment, err)
	}
	if err != nil {
		s.closeInbox(ctx, inbox, "gateway_error", err)
		metrics.WebhookEvents.WithLabelValues("gateway_error").Inc()
		return nil, classifyUpstream("payment gateway", err)
	}

	if inbox != nil {
		inbox.PaymentID = detail.ID
		inbox.PaymentStatus = detail.RawStatus
	}

	if detail.ExternalReference == "" {
		logger.WithField("payment_id", detail.ID).Warn("Payment has no external reference")
		return finish(OutcomeUnknownTransaction, nil)
	}
	t, err := s.store.loadByReference(ctx, detail.ExternalReference)
	if errors.Is(err, ErrNotFound) {
		logger.WithField("external_reference", detail.ExternalReference).Warn("Webhook references unknown transaction")
		return finish(OutcomeUnknownTransaction, nil)
	}
	if err != nil {
		return nil, err
	}
	result.TransactionID = &t.ID

	applied, err := s.applyPayment(ctx, t.ID, detail)
	switch {
	case errors.Is(err, ErrMissingPurposeMetadata):
		logger.WithError(err).WithField("transaction_id", t.ID).Error("Approved payment without purpose metadata")
		return finish(OutcomeMissingMetadata, err)
	case errors.Is(err, ErrDataIntegrityViolation):
		logger.WithError(err).WithField("transaction_id", t.ID).Error("Payment amount does not match the transaction")
		return finish(OutcomeIntegrityViolation, err)
	case err != nil:
		s.closeInbox(ctx, inbox, "error", err)
		return nil, err
	}

	result.PaymentStatus = applied.Transaction.PaymentStatus
	return finish(applied.Outcome, nil)
}

// CheckStatus is the polling path. It searches approved payments for the
// transaction and applies each through the same transition as the webhook.
func (s *PaymentService) CheckStatus(ctx context.Context, transactionID uuid.UUID) (*StatusResult, error) {
	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	payments, err := s.gateway.SearchPayments(ctx, t.ExternalReference, gateway.StatusApproved)
	if err != nil {
		return nil, classifyUpstream("payment gateway", err)
	}

	result := &StatusResult{Transaction: t, Outcomes: []string{}}
	if len(payments) == 0 {
		result.Outcomes = append(result.Outcomes, OutcomeNoPayment)
		return result, nil
	}

	for i := range payments {
		applied, err := s.applyPayment(ctx, t.ID, &payments[i])
		switch {
		case errors.Is(err, ErrMissingPurposeMetadata):
			logrus.WithError(err).WithField("transaction_id", t.ID).Error("Approved payment without purpose metadata")
			result.Outcomes = append(result.Outcomes, OutcomeMissingMetadata)
			continue
		case errors.Is(err, ErrDataIntegrityViolation):
			logrus.WithError(err).WithField("transaction_id", t.ID).Error("Payment amount does not match the transaction")
			result.Outcomes = append(result.Outcomes, OutcomeIntegrityViolation)
			continue
		case err != nil:
			return nil, err
		}
		result.Transaction = applied.Transaction
		result.Outcomes = append(result.Outcomes, applied.Outcome)
	}
	return result, nil
}

func (s *PaymentService) CheckStatusBySession(ctx context.Context, sessionID string) (*StatusResult, error) {
	t, err := s.store.loadBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.CheckStatus(ctx, t.ID)
}

// applyPayment is the single state-transition function shared by the
// webhook and polling paths. Each purpose has its own idempotency gate.
func (s *PaymentService) applyPayment(ctx context.Context, transactionID uuid.UUID, detail *gateway.PaymentDetail) (*applyResult, error) {
	purpose := models.PaymentPurpose(detail.Metadata[MetaPurpose])
	if purpose == "" {
		purpose = models.PaymentPurposePrimary
	}
	if !purpose.Valid() {
		return nil, &ServiceError{Kind: ErrMissingPurposeMetadata, Message: fmt.Sprintf("unknown payment purpose %q", purpose)}
	}

	mapped := models.PaymentStatusFromGateway(detail.Status)
	metrics.PaymentTransitions.WithLabelValues(string(purpose), string(mapped)).Inc()

	switch purpose {
	case models.PaymentPurposeAdditional:
		return s.applyAdditional(ctx, transactionID, detail, mapped)
	case models.PaymentPurposeSimilarity:
		return s.applySimilarity(ctx, transactionID, detail, mapped)
	default:
		return s.applyPrimary(ctx, transactionID, detail, mapped)
	}
}

func (s *PaymentService) applyPrimary(ctx context.Context, transactionID uuid.UUID, detail *gateway.PaymentDetail, mapped models.PaymentStatus) (*applyResult, error) {
	var added []models.UnlockedOffering
	gated := false

	t, wrote, err := s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		added = nil
		if t.IsPaid() {
			if mapped == models.PaymentStatusPaid && t.GatewayPaymentID != "" && detail.ID != t.GatewayPaymentID {
				return false, &ServiceError{
					Kind:    ErrMissingPurposeMetadata,
					Message: fmt.Sprintf("approved payment %s does not say what it paid for; transaction was already paid by %s", detail.ID, t.GatewayPaymentID),
				}
			}
			gated = true
			return false, nil
		}

		next, changed := t.PaymentStatus.Transition(mapped)
		if t.GatewayPaymentID != detail.ID || t.GatewayPaymentStatus != detail.RawStatus {
			changed = true
		}
		if !changed {
			return false, nil
		}

		if next == models.PaymentStatusPaid {
			if err := checkAmount(detail.Amount, len(t.SelectedIDs), t.UnitPrice); err != nil {
				return false, err
			}
			snapshots, err := s.unlocks.snapshots(ctx, t.SelectedIDs, models.PaymentPurposePrimary)
			if err != nil {
				return false, err
			}
			now := time.Now()
			t.PaidAt = &now
			added = t.AppendUnlocked(snapshots)
		}

		t.PaymentStatus = next
		t.GatewayPaymentID = detail.ID
		t.GatewayPaymentStatus = detail.RawStatus
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case gated:
		return &applyResult{Outcome: OutcomeAlreadyPaid, Transaction: t}, nil
	case !wrote:
		return &applyResult{Outcome: OutcomeUnchanged, Transaction: t}, nil
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"payment_id":     detail.ID,
		"payment_status": t.PaymentStatus,
	}).Info("Payment status updated")

	if t.PaymentStatus != models.PaymentStatusPaid {
		return &applyResult{Outcome: OutcomeStatusUpdated, Transaction: t}, nil
	}

	// The paid write has landed; the rest runs even if the caller goes away.
	s.unlocks.afterUnlock(context.WithoutCancel(ctx), t, added, models.PaymentPurposePrimary)
	return &applyResult{Outcome: OutcomeProcessed, Transaction: t}, nil
}

func (s *PaymentService) applyAdditional(ctx context.Context, transactionID uuid.UUID, detail *gateway.PaymentDetail, mapped models.PaymentStatus) (*applyResult, error) {
	ids, err := parseIDs(detail.Metadata[MetaOfferingIDs])
	if err != nil || len(ids) == 0 {
		return nil, &ServiceError{Kind: ErrMissingPurposeMetadata, Message: "additional payment without offering ids", Err: err}
	}

	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	pending := 0
	for _, id := range ids {
		if !t.IsUnlocked(id) {
			pending++
		}
	}
	if pending == 0 {
		return &applyResult{Outcome: OutcomeAlreadyPaid, Transaction: t}, nil
	}
	if mapped != models.PaymentStatusPaid {
		logrus.WithFields(logrus.Fields{
			"transaction_id": t.ID,
			"payment_id":     detail.ID,
			"payment_status": detail.RawStatus,
		}).Info("Additional payment not approved yet")
		return &applyResult{Outcome: OutcomeStatusUpdated, Transaction: t}, nil
	}
	if err := checkAmount(detail.Amount, len(ids), t.UnitPrice); err != nil {
		return nil, err
	}

	unlocked, err := s.unlocks.MaterializeUnlock(context.WithoutCancel(ctx), transactionID, ids, models.PaymentPurposeAdditional)
	if err != nil {
		return nil, err
	}
	if len(unlocked.Added) == 0 {
		return &applyResult{Outcome: OutcomeAlreadyPaid, Transaction: unlocked.Transaction}, nil
	}
	return &applyResult{Outcome: OutcomeProcessed, Transaction: unlocked.Transaction}, nil
}

func (s *PaymentService) applySimilarity(ctx context.Context, transactionID uuid.UUID, detail *gateway.PaymentDetail, mapped models.PaymentStatus) (*applyResult, error) {
	sourceID, err := uuid.Parse(detail.Metadata[MetaSourceOfferingID])
	if err != nil {
		return nil, &ServiceError{Kind: ErrMissingPurposeMetadata, Message: "similarity payment without source offering", Err: err}
	}
	ids, err := parseIDs(detail.Metadata[MetaSimilarOfferingIDs])
	if err != nil || len(ids) == 0 {
		return nil, &ServiceError{Kind: ErrMissingPurposeMetadata, Message: "similarity payment without similar offering ids", Err: err}
	}

	t, err := s.store.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if idx := t.SimilarUnlockFor(sourceID); idx >= 0 && t.SimilarUnlocks[idx].Paid {
		return &applyResult{Outcome: OutcomeAlreadyPaid, Transaction: t}, nil
	}
	if mapped != models.PaymentStatusPaid {
		return s.noteSimilarStatus(ctx, transactionID, sourceID, detail)
	}
	if err := checkAmount(detail.Amount, len(ids), s.config.Payment.SimilarityUnitPrice); err != nil {
		return nil, err
	}

	offerings, err := s.catalog.GetOfferings(ctx, ids)
	if err != nil {
		return nil, err
	}

	var entry models.SimilarUnlock
	gated := false
	t, wrote, err := s.store.update(context.WithoutCancel(ctx), transactionID, func(t *models.Transaction) (bool, error) {
		idx := t.SimilarUnlockFor(sourceID)
		if idx >= 0 && t.SimilarUnlocks[idx].Paid {
			gated = true
			return false, nil
		}

		now := time.Now()
		if idx < 0 {
			// Paid before the generation was stored, or the entry was lost.
			// Rebuild it from the paid selection.
			t.SimilarUnlocks = append(t.SimilarUnlocks, models.SimilarUnlock{
				SourceOfferingID: sourceID,
				GeneratedAt:      now,
			})
			idx = len(t.SimilarUnlocks) - 1
		}

		e := t.SimilarUnlocks[idx]
		e.Items = withPaidContacts(e.Items, ids, offerings)
		e.Paid = true
		e.UnlockedAt = &now
		e.UnlockedIDs = ids
		e.GatewayPaymentID = detail.ID
		e.GatewayPaymentStatus = detail.RawStatus
		t.SimilarUnlocks[idx] = e
		entry = e
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if gated || !wrote {
		return &applyResult{Outcome: OutcomeAlreadyPaid, Transaction: t}, nil
	}

	metrics.UnlockedOfferings.WithLabelValues(string(models.PaymentPurposeSimilarity)).Add(float64(len(ids)))
	logrus.WithFields(logrus.Fields{
		"transaction_id":     t.ID,
		"source_offering_id": sourceID,
		"unlocked":           len(ids),
	}).Info("Similar offerings unlocked")

	s.notifications.SendSimilarUnlockNotification(context.WithoutCancel(ctx), t, entry)
	return &applyResult{Outcome: OutcomeProcessed, Transaction: t}, nil
}

// noteSimilarStatus records a not yet approved upsell payment on its entry so
// the client can see it is in flight. The entry stays unpaid.
func (s *PaymentService) noteSimilarStatus(ctx context.Context, transactionID, sourceID uuid.UUID, detail *gateway.PaymentDetail) (*applyResult, error) {
	t, wrote, err := s.store.update(ctx, transactionID, func(t *models.Transaction) (bool, error) {
		idx := t.SimilarUnlockFor(sourceID)
		if idx < 0 || t.SimilarUnlocks[idx].Paid {
			return false, nil
		}
		e := t.SimilarUnlocks[idx]
		if e.GatewayPaymentID == detail.ID && e.GatewayPaymentStatus == detail.RawStatus {
			return false, nil
		}
		e.GatewayPaymentID = detail.ID
		e.GatewayPaymentStatus = detail.RawStatus
		t.SimilarUnlocks[idx] = e
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !wrote {
		return &applyResult{Outcome: OutcomeUnchanged, Transaction: t}, nil
	}
	return &applyResult{Outcome: OutcomeStatusUpdated, Transaction: t}, nil
}

// withPaidContacts fills contacts for paid ids, adding items that are missing.
func withPaidContacts(items []models.SimilarItem, paidIDs []uuid.UUID, offerings map[uuid.UUID]models.Offering) []models.SimilarItem {
	out := append([]models.SimilarItem{}, items...)
	index := make(map[uuid.UUID]int, len(out))
	for i, item := range out {
		index[item.OfferingID] = i
	}

	for _, id := range paidIDs {
		o, ok := offerings[id]
		if !ok {
			continue
		}
		contact := o.Contact()
		if i, ok := index[id]; ok {
			out[i].Contact = &contact
			continue
		}
		out = append(out, models.SimilarItem{
			OfferingID:   o.ID,
			Name:         o.Name,
			Description:  o.Description,
			Category:     o.Category,
			Vertical:     o.Vertical,
			MatchReasons: []string{},
			Contact:      &contact,
		})
	}
	return out
}

func (s *PaymentService) fetchDetail(ctx context.Context, event *gateway.Event) (*gateway.PaymentDetail, error) {
	if event.Kind == gateway.KindSubscription {
		return s.gateway.GetSubscription(ctx, event.ResourceID)
	}
	return s.gateway.GetPayment(ctx, event.ResourceID)
}

func (s *PaymentService) recordInbox(ctx context.Context, req WebhookRequest, event *gateway.Event, signatureValid bool) *models.WebhookEvent {
	inbox := &models.WebhookEvent{
		Provider:       webhookProvider,
		EventID:        event.ID,
		RequestID:      req.RequestID,
		EventType:      event.Type,
		ResourceID:     event.ResourceID,
		Payload:        string(req.Body),
		SignatureValid: signatureValid,
		Outcome:        "received",
	}
	if err := s.db.WithContext(ctx).Create(inbox).Error; err != nil {
		logrus.WithError(err).Warn("Failed to record webhook event")
		return nil
	}
	return inbox
}

func (s *PaymentService) closeInbox(ctx context.Context, inbox *models.WebhookEvent, outcome string, procErr error) {
	if inbox == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"outcome":      outcome,
		"processed_at": now,
	}
	if inbox.PaymentID != "" {
		updates["payment_id"] = inbox.PaymentID
		updates["payment_status"] = inbox.PaymentStatus
	}
	if procErr != nil {
		updates["processing_error"] = utils.Truncate(procErr.Error(), 1000)
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(inbox).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("webhook_event_id", inbox.ID).Warn("Failed to update webhook event")
	}
}

func (s *PaymentService) backURL(base string, t *models.Transaction) string {
	if base == "" {
		base = s.config.Frontend.BaseURL + "/transactions"
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), t.SessionID)
}

// checkAmount compares a gateway amount with the recomputed charge. A zero
// amount means the gateway did not report one.
func checkAmount(amount decimal.Decimal, count int, unitPrice decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	expected := models.ComputeTotal(count, unitPrice)
	if !amount.Equal(expected) {
		return integrityViolation("paid amount %s does not match expected %s", amount.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

func checkoutTitle(purpose models.PaymentPurpose) string {
	switch purpose {
	case models.PaymentPurposeSimilarity:
		return "Similar vendor contacts"
	case models.PaymentPurposeAdditional:
		return "Additional vendor contacts"
	default:
		return "Vendor contacts"
	}
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func parseIDs(value string) ([]uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(value, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid offering id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return uniqueIDs(ids), nil
}
