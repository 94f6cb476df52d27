// internal/tests/api_test.go
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/database"
	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/handlers"
	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/router"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

const webhookSecret = "whsec_api"

// stubGateway turns every checkout into a payment the test can settle.
type stubGateway struct {
	mu          sync.Mutex
	preferences []gateway.PreferenceRequest
	payments    map[string]gateway.PaymentDetail
}

func (g *stubGateway) CreatePreference(ctx context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.preferences = append(g.preferences, req)
	id := fmt.Sprintf("pref_%d", len(g.preferences))
	return &gateway.Preference{ID: id, InitPoint: "https://checkout.example.com/" + id}, nil
}

func (g *stubGateway) GetPayment(ctx context.Context, paymentID string) (*gateway.PaymentDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return &p, nil
}

func (g *stubGateway) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.PaymentDetail, error) {
	return g.GetPayment(ctx, subscriptionID)
}

func (g *stubGateway) SearchPayments(ctx context.Context, externalReference, status string) ([]gateway.PaymentDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gateway.PaymentDetail
	for _, p := range g.payments {
		if p.ExternalReference == externalReference && p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// settle approves the last checkout under paymentID.
func (g *stubGateway) settle(paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pref := g.preferences[len(g.preferences)-1]
	amount := decimal.Zero
	for _, item := range pref.Items {
		amount = amount.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	g.payments[paymentID] = gateway.PaymentDetail{
		ID:                paymentID,
		Kind:              gateway.KindPayment,
		Status:            gateway.StatusApproved,
		RawStatus:         "succeeded",
		ExternalReference: pref.ExternalReference,
		Amount:            amount,
		Currency:          "usd",
		Metadata:          pref.Metadata,
	}
}

// stubInference answers with whatever the current test scripted.
type stubInference struct {
	mu      sync.Mutex
	replies map[inference.Operation]interface{}
}

func (s *stubInference) Invoke(ctx context.Context, req inference.Request) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, ok := s.replies[req.Operation]
	if !ok {
		return nil, inference.ErrUnavailable
	}
	return json.Marshal(reply)
}

func (s *stubInference) set(op inference.Operation, reply interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[op] = reply
}

type APITestSuite struct {
	suite.Suite
	db        *gorm.DB
	router    *gin.Engine
	gateway   *stubGateway
	inference *stubInference
	offerings []models.Offering
	clientIP  string
	ipCounter int
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	require.NoError(suite.T(), i18n.Initialize("en"))
}

func (suite *APITestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(suite.T(), err)
	suite.db = db

	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "api-test-secret"},
		Payment: config.PaymentConfig{
			WebhookSecret:       webhookSecret,
			Currency:            "usd",
			UnitPrice:           decimal.NewFromInt(5),
			SimilarityUnitPrice: decimal.NewFromInt(3),
			MaxSelection:        5,
		},
		Matching:  config.MatchingConfig{MaxCandidates: 100, MaxSuggestions: 8, MinMatchScore: 50},
		Batch:     config.BatchConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond, ErrorMessageLength: 200},
		I18n:      config.I18nConfig{DefaultLocale: "en"},
		Frontend:  config.FrontendConfig{BaseURL: "http://localhost:3000"},
		Inference: config.InferenceConfig{Provider: "disabled"},
	}

	storage, err := services.NewStorageService(cfg)
	require.NoError(suite.T(), err)

	suite.gateway = &stubGateway{payments: map[string]gateway.PaymentDetail{}}
	suite.inference = &stubInference{replies: map[inference.Operation]interface{}{}}
	deps := router.Dependencies{
		Gateway:   suite.gateway,
		Inference: suite.inference,
		Notifier:  services.NewSMTPNotifier(cfg.Email),
		Storage:   storage,
	}
	suite.router = router.New(db, cfg, router.NewServices(db, cfg, deps))

	suite.offerings = nil
	for i, name := range []string{"Ledger Pro", "Payroll Hub", "Shop Ads"} {
		email := fmt.Sprintf("vendor%d@example.com", i)
		o := models.Offering{
			Active:        true,
			Name:          name,
			Description:   name + " for small shops",
			Category:      "finance",
			Vertical:      "retail",
			BusinessModel: "saas",
			Email:         &email,
			SiteKey:       fmt.Sprintf("vendor%d.example.com", i),
		}
		require.NoError(suite.T(), db.Create(&o).Error)
		suite.offerings = append(suite.offerings, o)
	}

	// Each test gets its own client address so the shared limiters stay fresh.
	suite.ipCounter++
	suite.clientIP = fmt.Sprintf("10.1.%d.%d", suite.ipCounter/250, suite.ipCounter%250+1)
}

func (suite *APITestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *APITestSuite) request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", suite.clientIP)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *APITestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func (suite *APITestSuite) data(w *httptest.ResponseRecorder) map[string]interface{} {
	response := suite.decode(w)
	require.True(suite.T(), response["success"].(bool), w.Body.String())
	return response["data"].(map[string]interface{})
}

func (suite *APITestSuite) operatorToken(role string) map[string]string {
	token, err := utils.GenerateOperatorToken("ops@example.com", role, time.Hour)
	require.NoError(suite.T(), err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (suite *APITestSuite) scriptRanking() {
	var matches []inference.RankedMatch
	for i, o := range suite.offerings[:2] {
		matches = append(matches, inference.RankedMatch{
			OfferingID:          o.ID.String(),
			MatchScore:          90 - i*10,
			PersonalizedSummary: "Good fit for " + o.Name,
		})
	}
	suite.inference.set(inference.OperationMatch, inference.MatchRanking{Matches: matches})
}

func (suite *APITestSuite) createTransaction(session string) map[string]interface{} {
	suite.scriptRanking()
	w := suite.request(http.MethodPost, "/v1/transactions", map[string]interface{}{
		"session_id":        session,
		"problem_statement": "We run a retail shop and need bookkeeping and payroll",
		"client_email":      "owner@example.com",
	}, nil)
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())
	return suite.data(w)["transaction"].(map[string]interface{})
}

func (suite *APITestSuite) postWebhook(eventID, paymentID string, sign bool) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": "payment.updated",
		"data": map[string]string{"id": paymentID},
	})
	headers := map[string]string{}
	if sign {
		requestID := "req-" + eventID
		headers[handlers.HeaderRequestID] = requestID
		headers[handlers.HeaderSignature] = "ts=1700000000,v1=" + utils.SignWebhook(webhookSecret, requestID, body)
	}
	return suite.request(http.MethodPost, "/webhooks/payments", body, headers)
}

func (suite *APITestSuite) TestHealthAndTaxonomy() {
	w := suite.request(http.MethodGet, "/health", nil, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "healthy", suite.decode(w)["status"])

	w = suite.request(http.MethodGet, "/v1/taxonomy", nil, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), suite.data(w)["categories"], "finance")
}

func (suite *APITestSuite) TestPurchaseFlow() {
	transaction := suite.createTransaction("session-flow")
	id := transaction["id"].(string)
	suggested := transaction["suggested"].([]interface{})
	require.Len(suite.T(), suggested, 2)
	assert.NotContains(suite.T(), fmt.Sprint(transaction), "vendor0@example.com")

	// Same session returns the stored transaction.
	w := suite.request(http.MethodPost, "/v1/transactions", map[string]interface{}{
		"session_id":        "session-flow",
		"problem_statement": "We run a retail shop and need bookkeeping and payroll",
	}, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), id, suite.data(w)["transaction"].(map[string]interface{})["id"])

	w = suite.request(http.MethodPut, "/v1/transactions/"+id+"/selection", map[string]interface{}{
		"offering_ids": []string{suite.offerings[0].ID.String(), suite.offerings[1].ID.String()},
	}, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	total := suite.data(w)["transaction"].(map[string]interface{})["total_amount"].(string)
	assert.True(suite.T(), decimal.NewFromInt(10).Equal(decimal.RequireFromString(total)))

	w = suite.request(http.MethodPost, "/v1/transactions/"+id+"/checkout", nil, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	checkout := suite.data(w)["checkout"].(map[string]interface{})
	assert.Equal(suite.T(), "https://checkout.example.com/pref_1", checkout["checkout_url"])

	suite.gateway.settle("pay_1")

	w = suite.postWebhook("evt_1", "pay_1", true)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	result := suite.data(w)
	assert.Equal(suite.T(), services.OutcomeProcessed, result["outcome"])
	assert.Equal(suite.T(), string(models.PaymentStatusPaid), result["payment_status"])

	w = suite.request(http.MethodGet, "/v1/transactions/"+id, nil, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	view := suite.data(w)["transaction"].(map[string]interface{})
	assert.Equal(suite.T(), string(models.PaymentStatusPaid), view["payment_status"])
	unlocked := view["unlocked"].([]interface{})
	require.Len(suite.T(), unlocked, 2)
	assert.Contains(suite.T(), fmt.Sprint(unlocked), "vendor0@example.com")

	w = suite.request(http.MethodGet, "/v1/sessions/session-flow/payment-status", nil, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "Payment confirmed", suite.data(w)["message"])

	// A paid selection cannot change.
	w = suite.request(http.MethodPut, "/v1/transactions/"+id+"/selection", map[string]interface{}{
		"offering_ids": []string{suite.offerings[0].ID.String()},
	}, nil)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.Equal(suite.T(), "ALREADY_PAID", suite.decode(w)["error"].(map[string]interface{})["code"])
}

func (suite *APITestSuite) TestWebhookSignatures() {
	suite.createTransaction("session-hooks")

	w := suite.postWebhook("evt_1", "pay_unknown", false)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	result := suite.data(w)
	assert.Equal(suite.T(), true, result["degraded"])
	assert.Equal(suite.T(), services.OutcomeUnknownPayment, result["outcome"])

	body := []byte(`{"id":"evt_2","type":"payment.updated","data":{"id":"pay_1"}}`)
	w = suite.request(http.MethodPost, "/webhooks/payments", body, map[string]string{
		handlers.HeaderRequestID: "req-2",
		handlers.HeaderSignature: "v1=" + utils.SignWebhook("wrong-secret", "req-2", body),
	})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	oversized := append([]byte(`{"id":"evt_3","type":"payment.updated","data":{"id":"pay_1"},"pad":"`), bytes.Repeat([]byte("x"), 1<<20)...)
	oversized = append(oversized, []byte(`"}`)...)
	w = suite.request(http.MethodPost, "/webhooks/payments", oversized, map[string]string{
		handlers.HeaderRequestID: "req-3",
		handlers.HeaderSignature: utils.SignWebhook(webhookSecret, "req-3", oversized),
	})
	assert.Equal(suite.T(), http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(suite.T(), "PAYLOAD_TOO_LARGE", suite.decode(w)["error"].(map[string]interface{})["code"])

	var inbox int64
	suite.db.Model(&models.WebhookEvent{}).Count(&inbox)
	assert.Equal(suite.T(), int64(1), inbox)
}

func (suite *APITestSuite) TestValidationAndNotFound() {
	w := suite.request(http.MethodPost, "/v1/transactions", map[string]interface{}{
		"session_id":        "s",
		"problem_statement": "short",
	}, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodGet, "/v1/transactions/not-a-uuid", nil, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.request(http.MethodGet, "/v1/sessions/missing/transaction", nil, nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *APITestSuite) TestSpanishMessages() {
	suite.scriptRanking()
	w := suite.request(http.MethodPost, "/v1/transactions", map[string]interface{}{
		"session_id":        "session-es",
		"problem_statement": "Necesitamos contabilidad para nuestra tienda",
	}, map[string]string{"Accept-Language": "es-AR,es;q=0.9"})
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	assert.Equal(suite.T(), "Encontramos coincidencias", suite.data(w)["message"])
}

func (suite *APITestSuite) TestAdminRequiresOperator() {
	w := suite.request(http.MethodGet, "/v1/admin/dashboard/stats", nil, nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.request(http.MethodGet, "/v1/admin/dashboard/stats", nil, map[string]string{"Authorization": "Token abc"})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w = suite.request(http.MethodGet, "/v1/admin/dashboard/stats", nil, suite.operatorToken("viewer"))
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w = suite.request(http.MethodGet, "/v1/admin/dashboard/stats", nil, suite.operatorToken(utils.RoleAdmin))
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	stats := suite.data(w)["stats"].(map[string]interface{})
	assert.Equal(suite.T(), float64(3), stats["active_offerings"])
}

func (suite *APITestSuite) TestAdminBatchJobIsAudited() {
	suite.inference.set(inference.OperationExtract, inference.ExtractedOffering{
		Name:          "Acme Books",
		Description:   "Bookkeeping",
		Category:      "finance",
		Vertical:      "retail",
		BusinessModel: "saas",
	})
	admin := suite.operatorToken(utils.RoleAdmin)

	w := suite.request(http.MethodPost, "/v1/admin/batch-jobs", map[string]interface{}{
		"name": "import",
		"rows": []map[string]string{{"name": "Acme", "site": "acme.example.org"}},
	}, admin)
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())
	jobID := suite.data(w)["job"].(map[string]interface{})["id"].(string)

	w = suite.request(http.MethodPost, "/v1/admin/batch-jobs/"+jobID+"/advance", nil, admin)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	assert.Equal(suite.T(), services.AdvanceProcessed, suite.data(w)["outcome"])

	w = suite.request(http.MethodGet, "/v1/admin/offerings/pending", nil, admin)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())

	var logs []models.AuditLog
	require.NoError(suite.T(), suite.db.Order("created_at ASC").Find(&logs).Error)
	require.Len(suite.T(), logs, 2)
	assert.Equal(suite.T(), "POST /v1/admin/batch-jobs", logs[0].Action)
	assert.Equal(suite.T(), "ops@example.com", logs[0].Actor)
	assert.Equal(suite.T(), http.StatusCreated, logs[0].StatusCode)
	assert.Equal(suite.T(), "POST /v1/admin/batch-jobs/:id/advance", logs[1].Action)
}

func (suite *APITestSuite) TestInferenceRoutesAreRateLimited() {
	suite.scriptRanking()
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = suite.request(http.MethodPost, "/v1/transactions", map[string]interface{}{
			"session_id":        fmt.Sprintf("session-limit-%d", i),
			"problem_statement": "We run a retail shop and need bookkeeping and payroll",
		}, nil)
	}
	assert.Equal(suite.T(), http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(suite.T(), last.Header().Get("Retry-After"))
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
