package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/region23/pnplive/internal/storage"
	"github.com/region23/pnplive/internal/storage/models"
	apperrors "github.com/region23/pnplive/pkg/errors"
)

var day = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createProvider(t *testing.T, s *SQLiteStorage, name string) *models.Provider {
	t.Helper()

	p := &models.Provider{Name: name, Username: name, IsActive: true}
	require.NoError(t, s.CreateProvider(context.Background(), p))
	return p
}

func createWindow(t *testing.T, s *SQLiteStorage, providerID int64, start, end time.Time) *models.AvailabilityWindow {
	t.Helper()

	w := &models.AvailabilityWindow{ProviderID: providerID, Start: start, End: end}
	require.NoError(t, s.CreateWindow(context.Background(), w, false))
	return w
}

func TestCreateWindow_Overlap(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	overlapping := &models.AvailabilityWindow{ProviderID: p.ID, Start: day.Add(14*time.Hour + 30*time.Minute), End: day.Add(16 * time.Hour)}
	err := s.CreateWindow(ctx, overlapping, false)
	assert.ErrorIs(t, err, apperrors.ErrWindowOverlap)
	assert.True(t, apperrors.IsConflict(err))

	// Окна, касающиеся границей, не пересекаются
	adjacent := &models.AvailabilityWindow{ProviderID: p.ID, Start: day.Add(15 * time.Hour), End: day.Add(16 * time.Hour)}
	assert.NoError(t, s.CreateWindow(ctx, adjacent, false))

	assert.NoError(t, s.CreateWindow(ctx, overlapping, true))

	windows, err := s.ListWindows(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.True(t, windows[0].Start.Before(windows[1].Start))
	assert.True(t, windows[1].Start.Before(windows[2].Start))
}

func TestCreateWindow_Validation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	err := s.CreateWindow(ctx, &models.AvailabilityWindow{ProviderID: p.ID, Start: day, End: day}, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTimeRange)

	err = s.CreateWindow(ctx, &models.AvailabilityWindow{ProviderID: 999, Start: day, End: day.Add(time.Hour)}, false)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListOpenWindows_Range(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	before := createWindow(t, s, p.ID, day.Add(-2*time.Hour), day)
	inside := createWindow(t, s, p.ID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	spanning := createWindow(t, s, p.ID, day.Add(23*time.Hour), day.Add(25*time.Hour))
	booked := createWindow(t, s, p.ID, day.Add(12*time.Hour), day.Add(13*time.Hour))
	require.NoError(t, s.MarkWindowBooked(ctx, booked.ID, "b-1"))

	windows, err := s.ListOpenWindows(ctx, p.ID, day, day.Add(24*time.Hour))
	require.NoError(t, err)

	var ids []int64
	for _, w := range windows {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []int64{inside.ID, spanning.ID}, ids)
	assert.NotContains(t, ids, before.ID)
}

func TestMarkWindowBooked_Conflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	w := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	require.NoError(t, s.MarkWindowBooked(ctx, w.ID, "first"))

	err := s.MarkWindowBooked(ctx, w.ID, "second")
	assert.ErrorIs(t, err, apperrors.ErrWindowAlreadyBooked)

	err = s.MarkWindowBooked(ctx, 12345, "third")
	assert.ErrorIs(t, err, apperrors.ErrWindowUnavailable)
	assert.True(t, apperrors.IsConflict(err))

	got, err := s.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, got.Booked)
	require.NotNil(t, got.BookingID)
	assert.Equal(t, "first", *got.BookingID)
}

func TestMarkWindowBooked_Concurrent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	w := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.MarkWindowBooked(ctx, w.ID, string(rune('a'+i))); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestReleaseWindow_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	w := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	require.NoError(t, s.ReleaseWindow(ctx, w.ID))
	require.NoError(t, s.MarkWindowBooked(ctx, w.ID, "b-1"))
	require.NoError(t, s.ReleaseWindow(ctx, w.ID))
	require.NoError(t, s.ReleaseWindow(ctx, w.ID))
	require.NoError(t, s.ReleaseWindow(ctx, 9999))

	got, err := s.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.Booked)
	assert.Nil(t, got.BookingID)
}

func TestDeleteWindow(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	w := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	require.NoError(t, s.MarkWindowBooked(ctx, w.ID, "b-1"))
	assert.ErrorIs(t, s.DeleteWindow(ctx, w.ID), apperrors.ErrWindowAlreadyBooked)

	require.NoError(t, s.ReleaseWindow(ctx, w.ID))
	require.NoError(t, s.DeleteWindow(ctx, w.ID))

	assert.ErrorIs(t, s.DeleteWindow(ctx, w.ID), apperrors.ErrWindowNotFound)
}

func TestReserveWindow_RollsBackOnDoubleBooking(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	alice := createProvider(t, s, "alice")
	bella := createProvider(t, s, "bella")

	start := day.Add(14 * time.Hour)
	first := createWindow(t, s, alice.ID, start, start.Add(time.Hour))
	second := createWindow(t, s, bella.ID, start, start.Add(time.Hour))

	b1 := &models.Booking{RequesterID: 42, DurationMinutes: 60, PriceUSD: 100, PaymentMethod: models.PaymentMethodCard}
	require.NoError(t, s.ReserveWindow(ctx, b1, first.ID, day))
	assert.Equal(t, alice.ID, b1.ProviderID)
	assert.True(t, b1.ScheduledStart.Equal(start))
	require.NotNil(t, b1.WindowID)

	b2 := &models.Booking{RequesterID: 42, DurationMinutes: 60, PriceUSD: 100, PaymentMethod: models.PaymentMethodCard}
	err := s.ReserveWindow(ctx, b2, second.ID, day)
	assert.ErrorIs(t, err, apperrors.ErrDoubleBooking)

	w, err := s.GetWindow(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, w.Booked, "window must stay free when the booking insert fails")

	_, err = s.GetBooking(ctx, b2.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReserveWindow_TooShortAndInactive(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	w := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(14*time.Hour+30*time.Minute))

	err := s.ReserveWindow(ctx, &models.Booking{RequesterID: 1, DurationMinutes: 60}, w.ID, day)
	assert.ErrorIs(t, err, apperrors.ErrWindowTooShort)

	require.NoError(t, s.SetProviderActive(ctx, p.ID, false))
	err = s.ReserveWindow(ctx, &models.Booking{RequesterID: 1, DurationMinutes: 30}, w.ID, day)
	assert.ErrorIs(t, err, apperrors.ErrProviderNotFound)
}

func TestReserveWindow_StartedWindow(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	start := day.Add(14 * time.Hour)
	w := createWindow(t, s, p.ID, start, start.Add(time.Hour))

	for _, at := range []time.Time{start, start.Add(3 * time.Hour)} {
		b := &models.Booking{RequesterID: 1, DurationMinutes: 60, PriceUSD: 100, PaymentMethod: models.PaymentMethodCard}
		err := s.ReserveWindow(ctx, b, w.ID, at)
		assert.ErrorIs(t, err, apperrors.ErrWindowUnavailable)
	}

	got, err := s.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.Booked)

	b := &models.Booking{RequesterID: 1, DurationMinutes: 60, PriceUSD: 100, PaymentMethod: models.PaymentMethodCard}
	assert.NoError(t, s.ReserveWindow(ctx, b, w.ID, start.Add(-time.Minute)))
}

func TestCancelBooking_AllowsRebooking(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")
	start := day.Add(14 * time.Hour)

	b := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60, ScheduledStart: start}
	require.NoError(t, s.CreateBooking(ctx, b))

	dup := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60, ScheduledStart: start}
	assert.ErrorIs(t, s.CreateBooking(ctx, dup), apperrors.ErrDoubleBooking)

	require.NoError(t, s.CancelBooking(ctx, storage.CancelParams{
		BookingID:   b.ID,
		Reason:      "changed mind",
		PaymentFrom: models.PaymentPaid,
		PaymentTo:   models.PaymentRefunded,
	}))

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus, "unpaid booking keeps its payment status")
	assert.Equal(t, "changed mind", got.CancelReason)
	assert.NotNil(t, got.CancelledAt)

	err = s.CancelBooking(ctx, storage.CancelParams{BookingID: b.ID})
	assert.ErrorIs(t, err, apperrors.ErrBookingCancelled)

	dup.ID = ""
	assert.NoError(t, s.CreateBooking(ctx, dup))
}

func TestConfirmPayment(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	b := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60, ScheduledStart: day}
	require.NoError(t, s.CreateBooking(ctx, b))

	confirmed, err := s.ConfirmPayment(ctx, b.ID, "tx-1")
	require.NoError(t, err)
	assert.True(t, confirmed)

	confirmed, err = s.ConfirmPayment(ctx, b.ID, "")
	require.NoError(t, err)
	assert.False(t, confirmed)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "tx-1", got.TransactionRef)

	_, err = s.ConfirmPayment(ctx, "missing", "")
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)

	cancelled := &models.Booking{RequesterID: 8, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60, ScheduledStart: day}
	require.NoError(t, s.CreateBooking(ctx, cancelled))
	require.NoError(t, s.CancelBooking(ctx, storage.CancelParams{BookingID: cancelled.ID}))

	confirmed, err = s.ConfirmPayment(ctx, cancelled.ID, "tx-late")
	assert.ErrorIs(t, err, apperrors.ErrBookingCancelled)
	assert.False(t, confirmed)

	got, err = s.GetBooking(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestListBookings_Filter(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	due := &models.Booking{RequesterID: 1, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60,
		ScheduledStart: day.Add(10 * time.Hour), Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	running := &models.Booking{RequesterID: 2, ProviderID: p.ID, DurationMinutes: 90, PriceUSD: 250,
		ScheduledStart: day.Add(11 * time.Hour), Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	unpaid := &models.Booking{RequesterID: 3, ProviderID: p.ID, DurationMinutes: 30, PriceUSD: 60,
		ScheduledStart: day.Add(9 * time.Hour), Status: models.BookingConfirmed}
	for _, b := range []*models.Booking{due, running, unpaid} {
		require.NoError(t, s.CreateBooking(ctx, b))
	}

	now := day.Add(12 * time.Hour)
	got, err := s.ListBookings(ctx, storage.BookingFilter{
		Statuses:      []models.BookingStatus{models.BookingConfirmed},
		PaymentStatus: []models.PaymentStatus{models.PaymentPaid},
		EndBefore:     &now,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	requester := int64(2)
	got, err = s.ListBookings(ctx, storage.BookingFilter{RequesterID: &requester})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, running.ID, got[0].ID)
}

func TestProcessRefundRequest(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	b := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 60, PriceUSD: 100,
		ScheduledStart: day, Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	require.NoError(t, s.CreateBooking(ctx, b))

	r := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100, Reason: "no show"}
	require.NoError(t, s.CreateRefundRequest(ctx, r))

	pending, err := s.ListRefundRequests(ctx, models.RefundPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	assert.ErrorIs(t, s.ProcessRefundRequest(ctx, r.ID, "maybe", "admin", day), apperrors.ErrInvalidRefundDecision)
	require.NoError(t, s.ProcessRefundRequest(ctx, r.ID, models.RefundApproved, "admin", day))
	assert.ErrorIs(t, s.ProcessRefundRequest(ctx, r.ID, models.RefundRejected, "admin", day), apperrors.ErrRefundAlreadyProcessed)
	assert.ErrorIs(t, s.ProcessRefundRequest(ctx, "missing", models.RefundRejected, "admin", day), apperrors.ErrRefundNotFound)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)

	processed, err := s.GetRefundRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundApproved, processed.Status)
	assert.Equal(t, "admin", processed.ProcessedBy)
	require.NotNil(t, processed.ProcessedAt)
}

func TestRefundRequest_OnePerBooking(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	b := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 60, PriceUSD: 100,
		ScheduledStart: day, Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	require.NoError(t, s.CreateBooking(ctx, b))

	first := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100}
	require.NoError(t, s.CreateRefundRequest(ctx, first))

	dup := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100}
	assert.ErrorIs(t, s.CreateRefundRequest(ctx, dup), apperrors.ErrRefundAlreadyRequested)

	require.NoError(t, s.ProcessRefundRequest(ctx, first.ID, models.RefundRejected, "admin", day))
	again := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100}
	require.NoError(t, s.CreateRefundRequest(ctx, again))

	require.NoError(t, s.UpdatePaymentStatus(ctx, b.ID, models.PaymentRefunded, ""))
	assert.ErrorIs(t, s.ProcessRefundRequest(ctx, again.ID, models.RefundApproved, "admin", day), apperrors.ErrBookingCancelled)

	got, err := s.GetRefundRequest(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundPending, got.Status)
}

func TestCancelBooking_SettlesPendingRefund(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	b := &models.Booking{RequesterID: 7, ProviderID: p.ID, DurationMinutes: 60, PriceUSD: 100,
		ScheduledStart: day, Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	require.NoError(t, s.CreateBooking(ctx, b))
	pending := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100, Reason: "no show"}
	require.NoError(t, s.CreateRefundRequest(ctx, pending))

	at := day.Add(-time.Hour)
	refund := &models.RefundRequest{BookingID: b.ID, RequesterID: 7, AmountUSD: 100,
		Status: models.RefundApproved, ProcessedBy: "admin", ProcessedAt: &at}
	require.NoError(t, s.CancelBooking(ctx, storage.CancelParams{
		BookingID:   b.ID,
		PaymentFrom: models.PaymentPaid,
		PaymentTo:   models.PaymentRefunded,
		Refund:      refund,
	}))
	assert.Equal(t, pending.ID, refund.ID)

	all, err := s.ListRefundRequests(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.RefundApproved, all[0].Status)
	assert.Equal(t, "no show", all[0].Reason)
}

func TestListOrphanedWindows(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	p := createProvider(t, s, "sofia")

	live := createWindow(t, s, p.ID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	stale := createWindow(t, s, p.ID, day.Add(12*time.Hour), day.Add(13*time.Hour))
	dangling := createWindow(t, s, p.ID, day.Add(14*time.Hour), day.Add(15*time.Hour))

	keep := &models.Booking{RequesterID: 1, DurationMinutes: 60, PriceUSD: 100}
	require.NoError(t, s.ReserveWindow(ctx, keep, live.ID, day))
	gone := &models.Booking{RequesterID: 2, DurationMinutes: 60, PriceUSD: 100}
	require.NoError(t, s.ReserveWindow(ctx, gone, stale.ID, day))
	require.NoError(t, s.UpdateBookingStatus(ctx, gone.ID, models.BookingCancelled))
	require.NoError(t, s.MarkWindowBooked(ctx, dangling.ID, "no-such-booking"))

	orphans, err := s.ListOrphanedWindows(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, stale.ID, orphans[0].ID)
	assert.Equal(t, dangling.ID, orphans[1].ID)
}

func TestFeedbackAndStatistics(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	alice := createProvider(t, s, "alice")
	bella := createProvider(t, s, "bella")

	paid := &models.Booking{RequesterID: 1, ProviderID: alice.ID, DurationMinutes: 90, PriceUSD: 250,
		ScheduledStart: day.Add(10 * time.Hour), Status: models.BookingCompleted, PaymentStatus: models.PaymentPaid}
	other := &models.Booking{RequesterID: 2, ProviderID: bella.ID, DurationMinutes: 30, PriceUSD: 60,
		ScheduledStart: day.Add(11 * time.Hour), Status: models.BookingConfirmed, PaymentStatus: models.PaymentPaid}
	open := &models.Booking{RequesterID: 3, ProviderID: bella.ID, DurationMinutes: 60, PriceUSD: 100,
		ScheduledStart: day.Add(12 * time.Hour)}
	for _, b := range []*models.Booking{paid, other, open} {
		require.NoError(t, s.CreateBooking(ctx, b))
	}

	fb := &models.Feedback{BookingID: paid.ID, RequesterID: 1, ProviderID: alice.ID, Rating: 4}
	require.NoError(t, s.CreateFeedback(ctx, fb))
	assert.ErrorIs(t, s.CreateFeedback(ctx, &models.Feedback{BookingID: paid.ID, RequesterID: 1, ProviderID: alice.ID, Rating: 5}), apperrors.ErrFeedbackExists)

	avg, count, err := s.ProviderRating(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 4.0, avg, 0.001)

	st, err := s.BookingStatistics(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalBookings)
	assert.Equal(t, 1, st.CompletedBookings)
	assert.Equal(t, 1, st.ConfirmedBookings)
	assert.Equal(t, 1, st.PendingBookings)
	assert.Equal(t, int64(410), st.TotalRevenueUSD)
	assert.Equal(t, int64(310), st.PaidRevenueUSD)

	revenue, err := s.RevenueByProvider(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	assert.Equal(t, alice.ID, revenue[0].ProviderID)
	assert.Equal(t, int64(250), revenue[0].PaidRevenueUSD)
	assert.Equal(t, 2, revenue[1].Bookings)
}

func TestProviders(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	active := createProvider(t, s, "alice")
	retired := createProvider(t, s, "bella")
	require.NoError(t, s.SetProviderActive(ctx, retired.ID, false))
	assert.ErrorIs(t, s.SetProviderActive(ctx, 999, false), apperrors.ErrProviderNotFound)

	list, err := s.ListProviders(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	require.NoError(t, s.SetProviderOnline(ctx, active.ID, true, now.Add(-time.Hour)))
	n, err := s.MarkStaleProvidersOffline(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetProvider(ctx, active.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	require.NotNil(t, got.LastOnline)
	assert.True(t, got.LastOnline.Equal(now.Add(-time.Hour)))
}
