package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:             testSecret,
		Port:                  "0",
		Env:                   "test",
		StoreDriver:           config.StoreMemory,
		CodeTTLMinutes:        30,
		CodeRetentionHours:    24,
		VerifyRateLimit:       10,
		IdempotencyTTLMinutes: 60,
	}
}

type testServer struct {
	*Server
	cashier string
	admin   string
}

func newTestServer(t *testing.T, cfg *config.Config, rdb *redis.Client) *testServer {
	t.Helper()
	s, err := NewServerWithDeps(cfg, repository.NewMemoryRepository(), rdb)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.shutdownFn()
		if s.pgPinger != nil {
			_ = s.pgPinger.Close()
		}
	})

	cashier, err := middleware.IssueToken(testSecret, "Jane", middleware.RoleCashier, time.Hour)
	require.NoError(t, err)
	admin, err := middleware.IssueToken(testSecret, "Admin", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return &testServer{Server: s, cashier: cashier, admin: admin}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := ts.App().Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (ts *testServer) submit(t *testing.T, customer, amount string) models.CreditRequest {
	t.Helper()
	resp, raw := ts.do(t, http.MethodPost, "/api/credit/requests", ts.cashier,
		fmt.Sprintf(`{"customer":%q,"amount":%s,"reason":"Groceries"}`, customer, amount))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	return decode[models.CreditRequest](t, raw)
}

func TestCreditWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	req := ts.submit(t, "Alice Johnson", "150.00")
	assert.Equal(t, "Jane", req.Cashier)
	assert.Equal(t, models.CreditRequestStatusPending, req.Status)
	assert.Nil(t, req.VerificationCode)

	resp, raw := ts.do(t, http.MethodPut, fmt.Sprintf("/api/credit/requests/%d/approve", req.ID), ts.admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	approved := decode[models.CreditRequest](t, raw)
	assert.Equal(t, models.CreditRequestStatusApproved, approved.Status)
	require.NotNil(t, approved.VerificationCode)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "Admin", *approved.ReviewedBy)
	code := *approved.VerificationCode

	verify := func(code, customer string) models.RedeemResult {
		resp, raw := ts.do(t, http.MethodPost, "/api/credit/verify", ts.cashier,
			fmt.Sprintf(`{"code":%q,"customer":%q}`, code, customer))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
		return decode[models.RedeemResult](t, raw)
	}

	wrong := verify(code, "Bob Williams")
	assert.False(t, wrong.Valid)
	assert.Equal(t, models.RedeemReasonMismatch, wrong.Reason)

	ok := verify(strings.ToLower(code), "Alice Johnson")
	assert.True(t, ok.Valid)
	require.NotNil(t, ok.Request)
	assert.Equal(t, req.ID, ok.Request.ID)

	again := verify(code, "Alice Johnson")
	assert.False(t, again.Valid)
	assert.Equal(t, models.RedeemReasonUsed, again.Reason)

	resp, raw = ts.do(t, http.MethodGet, "/api/credit/history/Alice%20Johnson", ts.cashier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]models.HistoryEntry](t, raw)
	require.Len(t, history, 1)
	assert.Equal(t, models.CreditRequestStatusApproved, history[0].Status)

	resp, raw = ts.do(t, http.MethodGet, "/api/credit/activity", ts.admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	activity := decode[[]models.ActivityEntry](t, raw)
	require.Len(t, activity, 3)
	assert.Equal(t, models.ActivityCodeUsed, activity[0].Action)
	assert.NotContains(t, string(raw), code)
}

func TestCreditRoutesRequireAuthentication(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, _ := ts.do(t, http.MethodGet, "/api/credit/requests", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/credit/requests", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRejectCashiers(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	req := ts.submit(t, "Alice Johnson", "20")

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, fmt.Sprintf("/api/credit/requests/%d/approve", req.ID), ""},
		{http.MethodPut, fmt.Sprintf("/api/credit/requests/%d/reject", req.ID), ""},
		{http.MethodPost, "/api/credit/codes", `{}`},
		{http.MethodGet, "/api/credit/codes", ""},
		{http.MethodDelete, "/api/credit/codes/abc", ""},
		{http.MethodGet, "/api/credit/activity", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, _ := ts.do(t, tc.method, tc.path, ts.cashier, tc.body)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestSubmitCreditRequestValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed body", `{"customer":`, "body"},
		{"missing customer", `{"customer":" ","amount":10,"reason":"x"}`, "customer"},
		{"zero amount", `{"customer":"Alice","amount":0,"reason":"x"}`, "amount"},
		{"negative amount", `{"customer":"Alice","amount":"-5","reason":"x"}`, "amount"},
		{"missing reason", `{"customer":"Alice","amount":10,"reason":""}`, "reason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := ts.do(t, http.MethodPost, "/api/credit/requests", ts.cashier, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[models.ErrorResponse](t, raw)
			assert.Equal(t, models.CodeValidation, body.Code)
			assert.Equal(t, tc.field, body.Field)
		})
	}
}

func TestSubmitIgnoresClientSuppliedCashier(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	resp, raw := ts.do(t, http.MethodPost, "/api/credit/requests", ts.cashier,
		`{"cashier":"Mallory","customer":"Carol Davis","amount":75,"reason":"Pharmacy"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Jane", decode[models.CreditRequest](t, raw).Cashier)
}

func TestDecisionErrors(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	req := ts.submit(t, "Alice Johnson", "20")

	resp, _ := ts.do(t, http.MethodPut, fmt.Sprintf("/api/credit/requests/%d/reject", req.ID), ts.admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := ts.do(t, http.MethodPut, fmt.Sprintf("/api/credit/requests/%d/approve", req.ID), ts.admin, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeInvalidState, decode[models.ErrorResponse](t, raw).Code)

	resp, _ = ts.do(t, http.MethodPut, "/api/credit/requests/999/approve", ts.admin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/api/credit/requests/abc/approve", ts.admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/credit/requests/999", ts.cashier, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndGetCreditRequests(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	first := ts.submit(t, "Alice Johnson", "10")
	second := ts.submit(t, "Bob Williams", "20")

	resp, raw := ts.do(t, http.MethodGet, "/api/credit/requests", ts.cashier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]models.CreditRequest](t, raw)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "listed in submission order")
	assert.Equal(t, second.ID, list[1].ID)

	resp, raw = ts.do(t, http.MethodGet, fmt.Sprintf("/api/credit/requests/%d", first.ID), ts.cashier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice Johnson", decode[models.CreditRequest](t, raw).Customer)
}

func TestEmptyHistoryIsAnArray(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	resp, raw := ts.do(t, http.MethodGet, "/api/credit/history/Nobody", ts.cashier, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestAdminCodeLifecycle(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, raw := ts.do(t, http.MethodPost, "/api/credit/codes", ts.admin, `{"cashier":"Jane","ttlMinutes":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	code := decode[models.VerificationCode](t, raw)
	assert.Equal(t, "Jane", code.Label)
	assert.Nil(t, code.BoundCustomer)
	require.NotNil(t, code.ExpiresAt)
	assert.WithinDuration(t, code.CreatedAt.Add(5*time.Minute), *code.ExpiresAt, time.Second)

	resp, raw = ts.do(t, http.MethodGet, "/api/credit/codes", ts.admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]models.VerificationCode](t, raw), 1)

	resp, _ = ts.do(t, http.MethodDelete, "/api/credit/codes/"+code.ID, ts.admin, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = ts.do(t, http.MethodPost, "/api/credit/verify", ts.cashier,
		fmt.Sprintf(`{"code":%q,"customer":"Anyone"}`, code.Code))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[models.RedeemResult](t, raw)
	assert.False(t, result.Valid)
	assert.Equal(t, models.RedeemReasonNotFound, result.Reason)

	resp, _ = ts.do(t, http.MethodDelete, "/api/credit/codes/"+code.ID, ts.admin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateCodeDefaultsAndValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, raw := ts.do(t, http.MethodPost, "/api/credit/codes", ts.admin, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	code := decode[models.VerificationCode](t, raw)
	assert.Equal(t, models.DefaultCodeLabel, code.Label)
	require.NotNil(t, code.ExpiresAt)
	assert.WithinDuration(t, code.CreatedAt.Add(30*time.Minute), *code.ExpiresAt, time.Second)

	resp, raw = ts.do(t, http.MethodPost, "/api/credit/codes", ts.admin, `{"ttlMinutes":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ttlMinutes", decode[models.ErrorResponse](t, raw).Field)

	resp, raw = ts.do(t, http.MethodPost, "/api/credit/codes", ts.admin, `{"customer":"Carol Davis"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bound := decode[models.VerificationCode](t, raw)
	require.NotNil(t, bound.BoundCustomer)
	assert.Equal(t, "Carol Davis", *bound.BoundCustomer)
}

func TestVerifyMalformedCode(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	resp, raw := ts.do(t, http.MethodPost, "/api/credit/verify", ts.cashier, `{"code":"!!","customer":"Alice"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"valid":false,"reason":"not_found"}`, string(raw))
}

func TestSubmitIsIdempotentWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ts := newTestServer(t, testConfig(), rdb)

	body := `{"customer":"Alice Johnson","amount":150,"reason":"Groceries"}`
	resp1, raw1 := ts.do(t, http.MethodPost, "/api/credit/requests", ts.cashier, body, middleware.IdempotencyHeader, "submit-1")
	resp2, raw2 := ts.do(t, http.MethodPost, "/api/credit/requests", ts.cashier, body, middleware.IdempotencyHeader, "submit-1")

	require.Equal(t, http.StatusCreated, resp1.StatusCode)
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	assert.Equal(t, "true", resp2.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, decode[models.CreditRequest](t, raw1).ID, decode[models.CreditRequest](t, raw2).ID)

	_, raw := ts.do(t, http.MethodGet, "/api/credit/requests", ts.cashier, "")
	assert.Len(t, decode[[]models.CreditRequest](t, raw), 1)
}

func TestVerifyIsRateLimitedInProduction(t *testing.T) {
	// Production comes from the loaded config alone, as with a config.yml deployment.
	t.Setenv("APP_ENV", "")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := testConfig()
	cfg.Env = "production"
	cfg.VerifyRateLimit = 2
	ts := newTestServer(t, cfg, rdb)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := ts.do(t, http.MethodPost, "/api/credit/verify", ts.cashier, `{"code":"ZZZZZZ","customer":"Alice"}`)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, _ := ts.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := ts.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]interface{}](t, raw)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["checks"].(map[string]interface{})["redis"])
}

func TestReadinessFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	ts := newTestServer(t, testConfig(), rdb)
	mr.Close()

	resp, _ := ts.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadinessReportsUnreachablePostgres(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = config.StorePostgres
	cfg.DBHost = "127.0.0.1"
	cfg.DBPort = "1"
	cfg.DBUser = "credit"
	cfg.DBPassword = "secret"
	cfg.DBName = "credit"
	cfg.DBSSLMode = "disable"
	ts := newTestServer(t, cfg, nil)
	require.NotNil(t, ts.pgPinger)

	for i := 0; i < 2; i++ {
		resp, raw := ts.do(t, http.MethodGet, "/health/ready", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode[map[string]interface{}](t, raw)
		assert.Equal(t, "unhealthy", body["checks"].(map[string]interface{})["store"])
	}
}

func TestCreditEventsRequiresUpgradeAndToken(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	resp, _ := ts.do(t, http.MethodGet, "/api/ws/credit", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/ws/credit?token="+ts.cashier, "", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestEventsReachHubWithoutRedis(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	client, err := ts.hub.Register("Admin", nil)
	require.NoError(t, err)

	ts.submit(t, "Alice Johnson", "42")

	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), "credit_request.submitted")
	case <-time.After(time.Second):
		t.Fatal("no event delivered to hub")
	}
}
