// internal/services/payment_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

type PaymentTestSuite struct {
	suite.Suite
	env       *testEnv
	ctx       context.Context
	offerings []models.Offering
	tx        *models.Transaction
}

func (suite *PaymentTestSuite) SetupTest() {
	suite.env = newTestEnv(suite.T())
	suite.ctx = context.Background()
	suite.offerings = []models.Offering{
		suite.env.createOffering(suite.T(), "Ledger Pro", "finance", "retail"),
		suite.env.createOffering(suite.T(), "Payroll Hub", "hr", "retail"),
		suite.env.createOffering(suite.T(), "Books Cloud", "finance", "services"),
	}
	suite.tx = suite.env.createTransaction(suite.T(), "client@example.com", suite.offerings...)
}

// signedWebhook delivers a signed notification for paymentID.
func (suite *PaymentTestSuite) signedWebhook(eventID, paymentID string) (*WebhookResult, error) {
	body := webhookBody(eventID, paymentID)
	requestID := "req-" + eventID
	return suite.env.payments.HandleWebhook(suite.ctx, WebhookRequest{
		RequestID: requestID,
		Signature: utils.SignWebhook(testWebhookSecret, requestID, body),
		Body:      body,
	})
}

func (suite *PaymentTestSuite) approvedPayment(id string, amount decimal.Decimal, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{MetaPurpose: string(models.PaymentPurposePrimary)}
	}
	suite.env.gateway.addPayment(gateway.PaymentDetail{
		ID:                id,
		Status:            gateway.StatusApproved,
		ExternalReference: suite.tx.ExternalReference,
		Amount:            amount,
		Currency:          "usd",
		Metadata:          metadata,
	})
}

func (suite *PaymentTestSuite) reload() *models.Transaction {
	t, err := suite.env.unlocks.Get(suite.ctx, suite.tx.ID)
	require.NoError(suite.T(), err)
	return t
}

func (suite *PaymentTestSuite) selectAll() {
	_, err := suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, idsOf(suite.offerings...))
	require.NoError(suite.T(), err)
}

func (suite *PaymentTestSuite) TestSelectionComputesTotal() {
	t, err := suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, idsOf(suite.offerings...))
	require.NoError(suite.T(), err)

	assert.True(suite.T(), decimal.NewFromInt(15).Equal(t.TotalAmount))
	assert.Len(suite.T(), t.SelectedIDs, 3)
	assert.True(suite.T(), decimal.NewFromInt(15).Equal(suite.reload().TotalAmount))
}

func (suite *PaymentTestSuite) TestSelectionMustComeFromSuggestions() {
	outsider := suite.env.createOffering(suite.T(), "Outsider", "legal", "retail")

	_, err := suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, []uuid.UUID{suite.offerings[0].ID, outsider.ID})
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)
	assert.Empty(suite.T(), suite.reload().SelectedIDs)
}

func (suite *PaymentTestSuite) TestSelectionRespectsMaximum() {
	var many []uuid.UUID
	for i := 0; i < suite.env.config.Payment.MaxSelection+1; i++ {
		many = append(many, uuid.New())
	}

	_, err := suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, many)
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)
}

func (suite *PaymentTestSuite) TestDuplicateSelectionIdsCountOnce() {
	a := suite.offerings[0].ID
	t, err := suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, []uuid.UUID{a, a})
	require.NoError(suite.T(), err)

	assert.Len(suite.T(), t.SelectedIDs, 1)
	assert.True(suite.T(), decimal.NewFromInt(5).Equal(t.TotalAmount))
}

func (suite *PaymentTestSuite) TestCheckoutUsesStoredSelection() {
	suite.selectAll()

	result, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, "", CheckoutOptions{})
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), models.PaymentPurposePrimary, result.Purpose)
	assert.True(suite.T(), decimal.NewFromInt(15).Equal(result.Amount))
	assert.NotEmpty(suite.T(), result.CheckoutURL)

	pref := suite.env.gateway.lastPreference()
	assert.Equal(suite.T(), suite.tx.ExternalReference, pref.ExternalReference)
	assert.Equal(suite.T(), string(models.PaymentPurposePrimary), pref.Metadata[MetaPurpose])
	assert.Equal(suite.T(), suite.tx.ID.String(), pref.Metadata[MetaTransactionID])
	require.Len(suite.T(), pref.Items, 1)
	assert.Equal(suite.T(), int64(3), pref.Items[0].Quantity)
	assert.Equal(suite.T(), "client@example.com", pref.PayerEmail)

	assert.Equal(suite.T(), result.PreferenceID, suite.reload().GatewayPreferenceID)
}

func (suite *PaymentTestSuite) TestCheckoutWithoutSelection() {
	_, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, models.PaymentPurposePrimary, CheckoutOptions{})
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)
}

func (suite *PaymentTestSuite) TestCheckoutDetectsTamperedTotal() {
	suite.selectAll()
	require.NoError(suite.T(), suite.env.db.Model(&models.Transaction{}).
		Where("id = ?", suite.tx.ID).
		Update("total_amount", decimal.NewFromInt(1)).Error)

	_, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, models.PaymentPurposePrimary, CheckoutOptions{})
	assert.ErrorIs(suite.T(), err, ErrDataIntegrityViolation)
}

func (suite *PaymentTestSuite) TestWebhookUnlocksSelectionOnce() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)

	result, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, result.Outcome)
	assert.Equal(suite.T(), models.PaymentStatusPaid, result.PaymentStatus)
	assert.False(suite.T(), result.Degraded)

	t := suite.reload()
	assert.True(suite.T(), t.IsPaid())
	assert.NotNil(suite.T(), t.PaidAt)
	assert.Equal(suite.T(), "pay_1", t.GatewayPaymentID)
	require.Len(suite.T(), t.Unlocked, 3)
	for _, u := range t.Unlocked {
		assert.NotNil(suite.T(), u.Contact.Email)
		assert.Equal(suite.T(), models.PaymentPurposePrimary, u.Purpose)
	}
	assert.Equal(suite.T(), 1, suite.env.notifier.count())

	// Redelivery of the same event changes nothing.
	result, err = suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyPaid, result.Outcome)
	assert.Len(suite.T(), suite.reload().Unlocked, 3)
	assert.Equal(suite.T(), 1, suite.env.notifier.count())

	var events int64
	suite.env.db.Model(&models.WebhookEvent{}).Count(&events)
	assert.Equal(suite.T(), int64(2), events)
}

func (suite *PaymentTestSuite) TestPaidAbsorbsLaterEvents() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	_, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)

	suite.env.gateway.addPayment(gateway.PaymentDetail{
		ID:                "pay_1",
		Status:            gateway.StatusRejected,
		ExternalReference: suite.tx.ExternalReference,
		Metadata:          map[string]string{MetaPurpose: string(models.PaymentPurposePrimary)},
	})
	result, err := suite.signedWebhook("evt_2", "pay_1")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), OutcomeAlreadyPaid, result.Outcome)
	assert.Equal(suite.T(), models.PaymentStatusPaid, suite.reload().PaymentStatus)
}

func (suite *PaymentTestSuite) TestInProcessThenApproved() {
	suite.selectAll()
	suite.env.gateway.addPayment(gateway.PaymentDetail{
		ID:                "pay_1",
		Status:            gateway.StatusInProcess,
		ExternalReference: suite.tx.ExternalReference,
		Metadata:          map[string]string{MetaPurpose: string(models.PaymentPurposePrimary)},
	})

	result, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeStatusUpdated, result.Outcome)
	assert.Equal(suite.T(), models.PaymentStatusProcessing, suite.reload().PaymentStatus)
	assert.Empty(suite.T(), suite.reload().Unlocked)

	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	result, err = suite.signedWebhook("evt_2", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, result.Outcome)
	assert.Len(suite.T(), suite.reload().Unlocked, 3)
}

func (suite *PaymentTestSuite) TestAmountMismatchIsAcknowledgedButNotApplied() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(10), nil)

	result, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeIntegrityViolation, result.Outcome)

	t := suite.reload()
	assert.False(suite.T(), t.IsPaid())
	assert.Empty(suite.T(), t.Unlocked)

	var event models.WebhookEvent
	require.NoError(suite.T(), suite.env.db.First(&event, "event_id = ?", "evt_1").Error)
	assert.Equal(suite.T(), OutcomeIntegrityViolation, event.Outcome)
	assert.NotEmpty(suite.T(), event.ProcessingError)
}

func (suite *PaymentTestSuite) TestWebhookSignatureMismatch() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	body := webhookBody("evt_1", "pay_1")

	_, err := suite.env.payments.HandleWebhook(suite.ctx, WebhookRequest{
		RequestID: "req-1",
		Signature: utils.SignWebhook("another-secret", "req-1", body),
		Body:      body,
	})
	assert.ErrorIs(suite.T(), err, ErrAuthenticationFailed)

	_, err = suite.env.payments.HandleWebhook(suite.ctx, WebhookRequest{
		RequestID: "req-1",
		Body:      body,
	})
	assert.ErrorIs(suite.T(), err, ErrAuthenticationFailed)

	var events int64
	suite.env.db.Model(&models.WebhookEvent{}).Count(&events)
	assert.Zero(suite.T(), events)
	assert.False(suite.T(), suite.reload().IsPaid())
}

func (suite *PaymentTestSuite) TestUnsignedWebhookRunsDegraded() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)

	result, err := suite.env.payments.HandleWebhook(suite.ctx, WebhookRequest{Body: webhookBody("evt_1", "pay_1")})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), result.Degraded)
	assert.Equal(suite.T(), OutcomeProcessed, result.Outcome)

	var event models.WebhookEvent
	require.NoError(suite.T(), suite.env.db.First(&event, "event_id = ?", "evt_1").Error)
	assert.False(suite.T(), event.SignatureValid)
}

func (suite *PaymentTestSuite) TestUnknownPaymentAndTransaction() {
	result, err := suite.signedWebhook("evt_1", "pay_missing")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeUnknownPayment, result.Outcome)

	suite.env.gateway.addPayment(gateway.PaymentDetail{
		ID:                "pay_orphan",
		Status:            gateway.StatusApproved,
		ExternalReference: uuid.NewString(),
	})
	result, err = suite.signedWebhook("evt_2", "pay_orphan")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeUnknownTransaction, result.Outcome)
}

func (suite *PaymentTestSuite) TestNonPaymentEventIgnored() {
	body := []byte(`{"id":"evt_9","type":"invoice.created","data":{"id":"in_1"}}`)
	result, err := suite.env.payments.HandleWebhook(suite.ctx, WebhookRequest{
		RequestID: "req-9",
		Signature: utils.SignWebhook(testWebhookSecret, "req-9", body),
		Body:      body,
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeIgnored, result.Outcome)
}

func (suite *PaymentTestSuite) TestGatewayOutageAsksForRedelivery() {
	suite.env.gateway.err = gateway.ErrUnavailable

	_, err := suite.signedWebhook("evt_1", "pay_1")
	assert.ErrorIs(suite.T(), err, ErrUpstreamUnavailable)
}

func (suite *PaymentTestSuite) TestPollingAppliesApprovedPayment() {
	suite.selectAll()

	status, err := suite.env.payments.CheckStatus(suite.ctx, suite.tx.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{OutcomeNoPayment}, status.Outcomes)

	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	status, err = suite.env.payments.CheckStatusBySession(suite.ctx, suite.tx.SessionID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{OutcomeProcessed}, status.Outcomes)
	assert.True(suite.T(), status.Transaction.IsPaid())

	// The webhook arriving after the poll is a no-op.
	result, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyPaid, result.Outcome)
	assert.Equal(suite.T(), 1, suite.env.notifier.count())
}

func (suite *PaymentTestSuite) TestPaidTransactionRejectsChanges() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	_, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)

	_, err = suite.env.unlocks.SelectOfferings(suite.ctx, suite.tx.ID, idsOf(suite.offerings[0]))
	assert.ErrorIs(suite.T(), err, ErrAlreadyPaid)

	result, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, models.PaymentPurposePrimary, CheckoutOptions{})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), result.AlreadyPaid)
	assert.Empty(suite.T(), result.CheckoutURL)
}

func (suite *PaymentTestSuite) TestAdditionalPurchase() {
	extra := suite.env.createOffering(suite.T(), "Tax Desk", "finance", "retail")

	_, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, models.PaymentPurposeAdditional, CheckoutOptions{OfferingIDs: idsOf(extra)})
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)

	_, err = suite.env.unlocks.ApproveAdditional(suite.ctx, suite.tx.ID, idsOf(extra))
	require.NoError(suite.T(), err)

	checkout, err := suite.env.payments.CreateCheckout(suite.ctx, suite.tx.ID, models.PaymentPurposeAdditional, CheckoutOptions{OfferingIDs: idsOf(extra)})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), decimal.NewFromInt(5).Equal(checkout.Amount))
	metadata := suite.env.gateway.lastPreference().Metadata
	assert.Equal(suite.T(), extra.ID.String(), metadata[MetaOfferingIDs])

	suite.approvedPayment("pay_extra", decimal.NewFromInt(5), metadata)
	result, err := suite.signedWebhook("evt_extra", "pay_extra")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, result.Outcome)

	t := suite.reload()
	assert.True(suite.T(), t.IsUnlocked(extra.ID))
	assert.Equal(suite.T(), models.PaymentStatusPending, t.PaymentStatus)
	assert.Equal(suite.T(), models.PaymentPurposeAdditional, t.Unlocked[0].Purpose)

	result, err = suite.signedWebhook("evt_extra", "pay_extra")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyPaid, result.Outcome)
	assert.Len(suite.T(), suite.reload().Unlocked, 1)
}

func (suite *PaymentTestSuite) TestAdditionalWithoutOfferingIds() {
	suite.approvedPayment("pay_extra", decimal.NewFromInt(5), map[string]string{
		MetaPurpose: string(models.PaymentPurposeAdditional),
	})

	result, err := suite.signedWebhook("evt_extra", "pay_extra")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeMissingMetadata, result.Outcome)
	assert.Empty(suite.T(), suite.reload().Unlocked)
}

func (suite *PaymentTestSuite) TestUntaggedSecondPaymentIsFlagged() {
	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	_, err := suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)

	// A second approved charge with no purpose cannot be the primary purchase.
	suite.approvedPayment("pay_upsell", decimal.NewFromInt(9), map[string]string{})
	result, err := suite.signedWebhook("evt_2", "pay_upsell")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeMissingMetadata, result.Outcome)

	var event models.WebhookEvent
	require.NoError(suite.T(), suite.env.db.First(&event, "event_id = ?", "evt_2").Error)
	assert.Equal(suite.T(), OutcomeMissingMetadata, event.Outcome)
	assert.NotEmpty(suite.T(), event.ProcessingError)
	assert.Equal(suite.T(), "pay_upsell", event.PaymentID)
	assert.Equal(suite.T(), gateway.StatusApproved, event.PaymentStatus)

	t := suite.reload()
	assert.Equal(suite.T(), "pay_1", t.GatewayPaymentID)
	assert.Len(suite.T(), t.Unlocked, 3)
	assert.Equal(suite.T(), 1, suite.env.notifier.count())

	status, err := suite.env.payments.CheckStatus(suite.ctx, suite.tx.ID)
	require.NoError(suite.T(), err)
	assert.ElementsMatch(suite.T(), []string{OutcomeAlreadyPaid, OutcomeMissingMetadata}, status.Outcomes)
}

func (suite *PaymentTestSuite) TestPendingAdditionalPaymentIsRecordedOnInbox() {
	extra := suite.env.createOffering(suite.T(), "Tax Desk", "finance", "retail")
	suite.env.gateway.addPayment(gateway.PaymentDetail{
		ID:                "pay_extra",
		Status:            gateway.StatusInProcess,
		ExternalReference: suite.tx.ExternalReference,
		Amount:            decimal.NewFromInt(5),
		Metadata: map[string]string{
			MetaPurpose:     string(models.PaymentPurposeAdditional),
			MetaOfferingIDs: extra.ID.String(),
		},
	})

	result, err := suite.signedWebhook("evt_extra", "pay_extra")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeStatusUpdated, result.Outcome)
	assert.False(suite.T(), suite.reload().IsUnlocked(extra.ID))

	var event models.WebhookEvent
	require.NoError(suite.T(), suite.env.db.First(&event, "event_id = ?", "evt_extra").Error)
	assert.Equal(suite.T(), "pay_extra", event.PaymentID)
	assert.Equal(suite.T(), gateway.StatusInProcess, event.PaymentStatus)
}

func (suite *PaymentTestSuite) TestServiceLeavesGatewayCallCountingToAdapter() {
	before := counterValue(metrics.GatewayCalls.WithLabelValues("search_payments", "ok"))
	_, err := suite.env.payments.CheckStatus(suite.ctx, suite.tx.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), before, counterValue(metrics.GatewayCalls.WithLabelValues("search_payments", "ok")))
}

func (suite *PaymentTestSuite) TestRatingRequiresUnlock() {
	req := &RateOfferingRequest{Rating: 4}
	_, err := suite.env.unlocks.RateOffering(suite.ctx, suite.tx.ID, suite.offerings[0].ID, req)
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)

	suite.selectAll()
	suite.approvedPayment("pay_1", decimal.NewFromInt(15), nil)
	_, err = suite.signedWebhook("evt_1", "pay_1")
	require.NoError(suite.T(), err)

	offering, err := suite.env.unlocks.RateOffering(suite.ctx, suite.tx.ID, suite.offerings[0].ID, req)
	require.NoError(suite.T(), err)
	assert.InDelta(suite.T(), 4.0, offering.QualityScore, 0.001)
	assert.Equal(suite.T(), int64(1), offering.RatingCount)

	_, err = suite.env.unlocks.RateOffering(suite.ctx, suite.tx.ID, suite.offerings[0].ID, req)
	assert.ErrorIs(suite.T(), err, ErrInvalidSelection)
}

func (suite *PaymentTestSuite) TestViewHidesContactsBeforePayment() {
	view, err := suite.env.unlocks.View(suite.ctx, suite.reload())
	require.NoError(suite.T(), err)

	require.Len(suite.T(), view.Suggested, 3)
	assert.Equal(suite.T(), 90, view.Suggested[0].MatchScore)
	assert.Empty(suite.T(), view.Unlocked)
}

func TestPaymentTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentTestSuite))
}

func TestCheckAmount(t *testing.T) {
	five := decimal.NewFromInt(5)

	assert.NoError(t, checkAmount(decimal.RequireFromString("15.00"), 3, five))
	assert.NoError(t, checkAmount(decimal.Zero, 3, five))
	assert.ErrorIs(t, checkAmount(decimal.RequireFromString("14.99"), 3, five), ErrDataIntegrityViolation)
}

func TestParseIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	parsed, err := parseIDs(joinIDs([]uuid.UUID{a, b, a}))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, parsed)

	parsed, err = parseIDs("  ")
	require.NoError(t, err)
	assert.Empty(t, parsed)

	_, err = parseIDs("not-a-uuid")
	assert.Error(t, err)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
