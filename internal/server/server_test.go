package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
)

type recordingUpdates struct {
	mu      sync.Mutex
	updates []*tgmodels.Update
}

func (r *recordingUpdates) HandleUpdate(ctx context.Context, bot *tgbot.Bot, update *tgmodels.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

type paymentCall struct {
	bookingID string
	status    models.PaymentStatus
	ref       string
}

type fakePayments struct {
	calls     []paymentCall
	confirmed bool
	err       error
}

func (f *fakePayments) ConfirmPayment(ctx context.Context, bookingID, transactionRef string) (*models.Booking, bool, error) {
	f.calls = append(f.calls, paymentCall{bookingID, models.PaymentPaid, transactionRef})
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Booking{ID: bookingID}, f.confirmed, nil
}

func (f *fakePayments) UpdatePaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus, transactionRef string) error {
	f.calls = append(f.calls, paymentCall{bookingID, status, transactionRef})
	return f.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{SecretToken: "tg-secret"},
		Server: config.ServerConfig{
			Port:         "0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
			RateLimit:    1000,
		},
		Payment: config.PaymentConfig{WebhookSecret: "pay-secret"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, payments PaymentProcessor, pinger Pinger) (*Server, *recordingUpdates) {
	t.Helper()
	updates := &recordingUpdates{}
	s := New(cfg, logger.NewNop(), updates, payments, pinger, nil)
	t.Cleanup(func() { s.rateLimiter.Close() })
	return s, updates
}

func post(h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_SecretToken(t *testing.T) {
	s, updates := newTestServer(t, testConfig(), &fakePayments{}, nil)
	h := s.Handler()
	body := `{"update_id":7,"message":{"message_id":1,"date":0,"chat":{"id":5,"type":"private"},"text":"/start"}}`

	rec := post(h, "/webhook", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, "/webhook", body, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, updates.updates)

	rec = post(h, "/webhook", body, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "tg-secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, updates.updates, 1)
	assert.Equal(t, int64(7), updates.updates[0].ID)
	assert.Equal(t, "/start", updates.updates[0].Message.Text)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestWebhook_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &fakePayments{}, nil)
	h := s.Handler()
	auth := map[string]string{"X-Telegram-Bot-Api-Secret-Token": "tg-secret"}

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = post(h, "/webhook", "{not json", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	for k, v := range auth {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Content-Type is required")
}

func sign(body, secret string) string {
	return "sha256=" + computeHMAC([]byte(body), secret)
}

func TestPaymentWebhook_Paid(t *testing.T) {
	payments := &fakePayments{confirmed: true}
	s, _ := newTestServer(t, testConfig(), payments, nil)
	h := s.Handler()

	body := `{"booking_id":"b-1","status":"paid","transaction_ref":"tx-9"}`
	rec := post(h, "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "pay-secret")})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "b-1", resp.BookingID)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, []paymentCall{{"b-1", models.PaymentPaid, "tx-9"}}, payments.calls)
}

func TestPaymentWebhook_ReplayIsIdempotent(t *testing.T) {
	payments := &fakePayments{confirmed: false}
	s, _ := newTestServer(t, testConfig(), payments, nil)

	body := `{"booking_id":"b-1","status":"paid"}`
	rec := post(s.Handler(), "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "pay-secret")})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Confirmed)
}

func TestPaymentWebhook_OtherStatuses(t *testing.T) {
	payments := &fakePayments{}
	s, _ := newTestServer(t, testConfig(), payments, nil)
	h := s.Handler()

	for _, status := range []string{"failed", "REFUNDED"} {
		body := `{"booking_id":"b-2","status":"` + status + `"}`
		rec := post(h, "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "pay-secret")})
		assert.Equal(t, http.StatusOK, rec.Code, status)
	}
	assert.Equal(t, []paymentCall{
		{"b-2", models.PaymentFailed, ""},
		{"b-2", models.PaymentRefunded, ""},
	}, payments.calls)
}

func TestPaymentWebhook_Rejections(t *testing.T) {
	payments := &fakePayments{}
	s, _ := newTestServer(t, testConfig(), payments, nil)
	h := s.Handler()

	body := `{"booking_id":"b-1","status":"paid"}`

	rec := post(h, "/payments/webhook", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "other")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := `{"booking_id":"b-1","status":"settled"}`
	rec = post(h, "/payments/webhook", bad, map[string]string{SignatureHeader: sign(bad, "pay-secret")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	empty := `{"status":"paid"}`
	rec = post(h, "/payments/webhook", empty, map[string]string{SignatureHeader: sign(empty, "pay-secret")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, payments.calls)
}

func TestPaymentWebhook_EngineErrors(t *testing.T) {
	payments := &fakePayments{err: errors.ErrBookingNotFound}
	s, _ := newTestServer(t, testConfig(), payments, nil)

	body := `{"booking_id":"missing","status":"paid"}`
	rec := post(s.Handler(), "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "pay-secret")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	payments.err = errors.ErrInvalidPaymentStatus
	rec = post(s.Handler(), "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "pay-secret")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhook_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Payment.WebhookSecret = ""
	s, _ := newTestServer(t, cfg, &fakePayments{}, nil)

	body := `{"booking_id":"b-1","status":"paid"}`
	rec := post(s.Handler(), "/payments/webhook", body, map[string]string{SignatureHeader: sign(body, "")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &fakePayments{}, stubPinger{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Checks["database"])

	s, _ = newTestServer(t, testConfig(), &fakePayments{}, stubPinger{err: assert.AnError})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testConfig(), &fakePayments{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pnplive_")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := computeHMAC(body, "k")

	assert.True(t, verifySignature(body, sig, "k"))
	assert.True(t, verifySignature(body, "sha256="+sig, "k"))
	assert.False(t, verifySignature(body, sig, "other"))
	assert.False(t, verifySignature(body, "zz", "k"))
	assert.False(t, verifySignature(body, "", "k"))
	assert.False(t, verifySignature(body, sig, ""))
}
