// internal/services/helpers_test.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/database"
	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/models"
)

const testWebhookSecret = "whsec_test"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: "8080"},
		Payment: config.PaymentConfig{
			WebhookSecret:       testWebhookSecret,
			Currency:            "usd",
			UnitPrice:           decimal.NewFromInt(5),
			SimilarityUnitPrice: decimal.NewFromInt(3),
			MaxSelection:        5,
		},
		Matching: config.MatchingConfig{
			MaxCandidates:  100,
			MaxSuggestions: 8,
			MinMatchScore:  50,
		},
		Batch: config.BatchConfig{
			MaxAttempts:        3,
			InitialBackoff:     time.Millisecond,
			MaxBackoff:         4 * time.Millisecond,
			RateLimitBackoff:   2 * time.Millisecond,
			ErrorMessageLength: 500,
		},
		I18n:     config.I18nConfig{DefaultLocale: "en"},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
}

// fakeGateway keeps payments in memory and records created preferences.
type fakeGateway struct {
	mu          sync.Mutex
	payments    map[string]*gateway.PaymentDetail
	preferences []gateway.PreferenceRequest
	err         error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*gateway.PaymentDetail{}}
}

func (g *fakeGateway) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.preferences = append(g.preferences, req)
	id := fmt.Sprintf("pref_%d", len(g.preferences))
	return &gateway.Preference{ID: id, InitPoint: "https://checkout.example.com/" + id}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*gateway.PaymentDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.PaymentDetail, error) {
	return g.GetPayment(ctx, subscriptionID)
}

func (g *fakeGateway) SearchPayments(ctx context.Context, externalReference, status string) ([]gateway.PaymentDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.PaymentDetail
	for _, p := range g.payments {
		if p.ExternalReference == externalReference && p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (g *fakeGateway) addPayment(p gateway.PaymentDetail) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Kind == "" {
		p.Kind = gateway.KindPayment
	}
	if p.RawStatus == "" {
		p.RawStatus = p.Status
	}
	g.payments[p.ID] = &p
}

func (g *fakeGateway) lastPreference() gateway.PreferenceRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.preferences[len(g.preferences)-1]
}

// fakeInference answers each operation with a scripted reply.
type fakeInference struct {
	mu      sync.Mutex
	replies map[inference.Operation]func(req inference.Request) (json.RawMessage, error)
	calls   map[inference.Operation]int
}

func newFakeInference() *fakeInference {
	return &fakeInference{
		replies: map[inference.Operation]func(inference.Request) (json.RawMessage, error){},
		calls:   map[inference.Operation]int{},
	}
}

func (f *fakeInference) Invoke(ctx context.Context, req inference.Request) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[req.Operation]++
	reply := f.replies[req.Operation]
	f.mu.Unlock()
	if reply == nil {
		return nil, inference.ErrUnavailable
	}
	return reply(req)
}

func (f *fakeInference) on(op inference.Operation, reply func(req inference.Request) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[op] = reply
}

func (f *fakeInference) reply(op inference.Operation, v interface{}) {
	raw, _ := json.Marshal(v)
	f.on(op, func(inference.Request) (json.RawMessage, error) { return raw, nil })
}

func (f *fakeInference) fail(op inference.Operation, err error) {
	f.on(op, func(inference.Request) (json.RawMessage, error) { return nil, err })
}

func (f *fakeInference) count(op inference.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
}

func (n *recordingNotifier) Send(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// testEnv wires every service against a fresh in-memory database.
type testEnv struct {
	db         *gorm.DB
	config     *config.Config
	gateway    *fakeGateway
	inference  *fakeInference
	notifier   *recordingNotifier
	catalog    *CatalogService
	unlocks    *UnlockService
	payments   *PaymentService
	matches    *MatchService
	similarity *SimilarityService
	batches    *BatchService
	admin      *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := testConfig()
	env := &testEnv{
		db:        db,
		config:    cfg,
		gateway:   newFakeGateway(),
		inference: newFakeInference(),
		notifier:  &recordingNotifier{},
	}

	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	notifications := NewNotificationService(env.notifier, cfg)
	env.catalog = NewCatalogService(db, cfg)
	env.unlocks = NewUnlockService(db, cfg, env.catalog, notifications)
	env.payments = NewPaymentService(db, cfg, env.gateway, env.catalog, env.unlocks, notifications)
	env.matches = NewMatchService(db, cfg, env.catalog, env.inference)
	env.similarity = NewSimilarityService(db, cfg, env.catalog, env.payments, env.inference)
	env.batches = NewBatchService(db, cfg, env.catalog, storage, env.inference)
	env.admin = NewAdminService(db, env.catalog)
	return env
}

func strPtr(s string) *string { return &s }

func (e *testEnv) createOffering(t *testing.T, name, category, vertical string) models.Offering {
	t.Helper()
	slug := uuid.NewString()[:8]
	site := "https://" + slug + ".example.com"
	o := models.Offering{
		Active:        true,
		Name:          name,
		Description:   name + " description",
		Category:      category,
		Vertical:      vertical,
		BusinessModel: "saas",
		City:          "Bogota",
		Email:         strPtr(slug + "@example.com"),
		Phone:         strPtr("+57 300 000 0000"),
		Site:          &site,
		SiteKey:       models.NormalizeSiteKey(site),
	}
	require.NoError(t, e.db.Create(&o).Error)
	return o
}

// createTransaction stores a transaction whose suggestions are the given
// offerings, bypassing the ranking call.
func (e *testEnv) createTransaction(t *testing.T, email string, suggested ...models.Offering) *models.Transaction {
	t.Helper()
	id := uuid.New()
	tx := &models.Transaction{
		BaseModel:         models.BaseModel{ID: id},
		SessionID:         "session-" + id.String()[:8],
		ProblemStatement:  "We need help with invoicing and payroll",
		ClientEmail:       email,
		UnitPrice:         e.config.Payment.UnitPrice,
		TotalAmount:       decimal.Zero,
		Currency:          e.config.Payment.Currency,
		PaymentStatus:     models.PaymentStatusPending,
		ExternalReference: id.String(),
	}
	for i, o := range suggested {
		tx.Suggested = append(tx.Suggested, models.SuggestedMatch{
			OfferingID:          o.ID,
			MatchScore:          90 - i,
			PersonalizedSummary: "fits " + o.Name,
		})
	}
	require.NoError(t, e.db.Create(tx).Error)
	return tx
}

func idsOf(offerings ...models.Offering) []uuid.UUID {
	out := make([]uuid.UUID, len(offerings))
	for i, o := range offerings {
		out[i] = o.ID
	}
	return out
}

// webhookBody builds a payment notification for paymentID.
func webhookBody(eventID, paymentID string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": "payment.updated",
		"data": map[string]string{"id": paymentID},
	})
	return body
}
