package booking

import (
	"context"
	"strings"

	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// RequestRefund создает запрос на возврат от владельца бронирования. Запрос принимается,
// пока с начала сессии прошло не больше RefundCutoff и бронирование не отменено и не возвращено
func (l *Ledger) RequestRefund(ctx context.Context, bookingID string, requesterID int64, reason string) (*models.RefundRequest, error) {
	b, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterID != requesterID {
		return nil, apperrors.ErrNotBookingOwner
	}
	if b.Status == models.BookingCancelled || b.Status == models.BookingRefunded ||
		b.PaymentStatus == models.PaymentRefunded {
		return nil, apperrors.ErrBookingCancelled
	}
	if !IsRefundRequestWindow(b.ScheduledStart, l.now()) {
		return nil, apperrors.ErrRefundWindowClosed
	}

	r := &models.RefundRequest{
		BookingID:   b.ID,
		RequesterID: requesterID,
		AmountUSD:   b.PriceUSD,
		Reason:      strings.TrimSpace(reason),
		Status:      models.RefundPending,
	}
	if err := l.store.CreateRefundRequest(ctx, r); err != nil {
		return nil, err
	}

	metrics.RefundRequests.Inc()
	l.log.Info("Refund requested",
		logger.String("refund_id", r.ID),
		logger.String("booking_id", b.ID))
	return r, nil
}

// ProcessRefund фиксирует решение администратора. Одобрение отменяет бронирование,
// помечает оплату возвращенной и освобождает окно
func (l *Ledger) ProcessRefund(ctx context.Context, refundID string, decision models.RefundStatus, processedBy string) (*models.RefundRequest, error) {
	if decision != models.RefundApproved && decision != models.RefundRejected {
		return nil, apperrors.ErrInvalidRefundDecision
	}

	if err := l.store.ProcessRefundRequest(ctx, refundID, decision, processedBy, l.now()); err != nil {
		return nil, err
	}
	metrics.RefundsProcessed.WithLabelValues(string(decision)).Inc()

	r, err := l.store.GetRefundRequest(ctx, refundID)
	if err != nil {
		return nil, err
	}

	if decision == models.RefundApproved {
		if _, err := l.store.ReleaseBookingWindows(ctx, r.BookingID); err != nil {
			l.log.Error("Failed to release window after refund",
				logger.String("booking_id", r.BookingID),
				logger.Error(err))
		} else {
			metrics.RecordWindowReleased("refund")
		}
	}

	l.log.Info("Refund processed",
		logger.String("refund_id", refundID),
		logger.String("decision", string(decision)),
		logger.String("processed_by", processedBy))
	return r, nil
}

// PendingRefunds возвращает необработанные запросы на возврат
func (l *Ledger) PendingRefunds(ctx context.Context) ([]*models.RefundRequest, error) {
	return l.store.ListRefundRequests(ctx, models.RefundPending)
}
