package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// SignatureHeader - заголовок с HMAC-SHA256 подписью тела уведомления об оплате
const SignatureHeader = "X-Signature"

// PaymentProcessor применяет уведомления платежного шлюза к бронированиям
type PaymentProcessor interface {
	ConfirmPayment(ctx context.Context, bookingID, transactionRef string) (*models.Booking, bool, error)
	UpdatePaymentStatus(ctx context.Context, bookingID string, status models.PaymentStatus, transactionRef string) error
}

// PaymentNotification - тело уведомления платежного шлюза
type PaymentNotification struct {
	BookingID      string `json:"booking_id"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref"`
}

type paymentResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Confirmed bool   `json:"confirmed"`
}

// handlePaymentWebhook обрабатывает уведомление об оплате бронирования
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	secret := s.config.Payment.WebhookSecret
	if secret == "" {
		metrics.PaymentWebhooks.WithLabelValues("unknown", "disabled").Inc()
		http.Error(w, "Payment webhook is not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if !verifySignature(body, r.Header.Get(SignatureHeader), secret) {
		s.logger.Warn("Invalid payment webhook signature", logger.String("remote_addr", r.RemoteAddr))
		metrics.PaymentWebhooks.WithLabelValues("unknown", "unauthorized").Inc()
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var n PaymentNotification
	if err := json.Unmarshal(body, &n); err != nil {
		metrics.PaymentWebhooks.WithLabelValues("unknown", "bad_request").Inc()
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	n.BookingID = strings.TrimSpace(n.BookingID)
	status := models.PaymentStatus(strings.ToLower(strings.TrimSpace(n.Status)))
	if n.BookingID == "" || !status.Valid() {
		metrics.PaymentWebhooks.WithLabelValues(string(status), "bad_request").Inc()
		http.Error(w, "booking_id and a valid status are required", http.StatusBadRequest)
		return
	}

	resp := paymentResponse{BookingID: n.BookingID, Status: string(status)}
	if status == models.PaymentPaid {
		_, resp.Confirmed, err = s.payments.ConfirmPayment(r.Context(), n.BookingID, n.TransactionRef)
	} else {
		err = s.payments.UpdatePaymentStatus(r.Context(), n.BookingID, status, n.TransactionRef)
	}
	if err != nil {
		code := httpStatusFor(err)
		s.logger.Warn("Payment webhook rejected",
			logger.String("booking_id", n.BookingID),
			logger.String("payment_status", string(status)),
			logger.Error(err))
		metrics.PaymentWebhooks.WithLabelValues(string(status), "error").Inc()
		http.Error(w, http.StatusText(code), code)
		return
	}

	s.logger.Info("Payment webhook applied",
		logger.String("booking_id", n.BookingID),
		logger.String("payment_status", string(status)),
		logger.Bool("confirmed", resp.Confirmed))
	metrics.PaymentWebhooks.WithLabelValues(string(status), "ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// httpStatusFor переводит вид ошибки движка в HTTP статус
func httpStatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
