package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/bot/keyboard"
	"github.com/region23/pnplive/internal/bot/service"
	"github.com/region23/pnplive/internal/bot/session"
	"github.com/region23/pnplive/internal/config"
	"github.com/region23/pnplive/internal/middleware"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/internal/storage/sqlite"
	"github.com/region23/pnplive/pkg/logger"
)

const (
	adminID = int64(900)
	aliceID = int64(101)
	bobID   = int64(102)
)

type sentMessage struct {
	chatID int64
	text   string
	markup models.ReplyMarkup
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	answered int
}

func (m *fakeMessenger) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chatID, _ := params.ChatID.(int64)
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: params.Text, markup: params.ReplyMarkup})
	return &models.Message{ID: len(m.sent)}, nil
}

func (m *fakeMessenger) AnswerCallbackQuery(ctx context.Context, params *tgbot.AnswerCallbackQueryParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered++
	return true, nil
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, params *tgbot.DeleteMessageParams) (bool, error) {
	return true, nil
}

// last возвращает последнее сообщение в чат
func (m *fakeMessenger) last(t *testing.T, chatID int64) sentMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].chatID == chatID {
			return m.sent[i]
		}
	}
	t.Fatalf("no messages sent to %d", chatID)
	return sentMessage{}
}

func (m *fakeMessenger) count(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.chatID == chatID {
			n++
		}
	}
	return n
}

type harness struct {
	dispatcher *Dispatcher
	messenger  *fakeMessenger
	engine     *booking.Engine
	service    *service.Service
}

func newHarness(t *testing.T, limiter *middleware.TelegramRateLimiter) *harness {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := booking.NewEngine(store, booking.Options{Location: time.UTC, Logger: logger.NewNop()})

	cfg := &config.Config{
		Telegram: config.TelegramConfig{AdminIDs: []int64{adminID}},
		Booking:  config.BookingConfig{Timezone: "UTC", SlotLengthMins: 90, DaysAhead: 7},
		Worker:   config.WorkerConfig{ReminderLead: 15 * time.Minute},
	}

	messenger := &fakeMessenger{}
	svc := service.NewService(messenger, engine, nil, session.New(time.Hour, time.Hour), limiter, cfg, logger.NewNop())

	return &harness{
		dispatcher: NewDispatcher(svc),
		messenger:  messenger,
		engine:     engine,
		service:    svc,
	}
}

func (h *harness) text(user int64, text string) {
	h.dispatcher.HandleUpdate(context.Background(), nil, &models.Update{
		ID: 1,
		Message: &models.Message{
			From: &models.User{ID: user},
			Chat: models.Chat{ID: user, Type: "private"},
			Text: text,
		},
	})
}

func (h *harness) click(user int64, data string) {
	h.dispatcher.HandleUpdate(context.Background(), nil, &models.Update{
		ID: 2,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb",
			From: models.User{ID: user},
			Data: data,
		},
	})
}

// openWindow создает модель и 90-минутное окно через два дня
func (h *harness) openWindow(t *testing.T) (*storagemodels.Provider, *storagemodels.AvailabilityWindow) {
	t.Helper()
	ctx := context.Background()

	p, err := h.engine.Providers.Create(ctx, "Sofia", "@sofia", "")
	require.NoError(t, err)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	w, err := h.engine.Windows.AddWindow(ctx, p.ID, start, start.Add(90*time.Minute))
	require.NoError(t, err)
	return p, w
}

// book проходит весь сценарий бронирования от меню до оплаты
func (h *harness) book(t *testing.T, user int64, p *storagemodels.Provider, w *storagemodels.AvailabilityWindow) {
	t.Helper()

	h.click(user, keyboard.PrefixMenu+keyboard.MenuBook)
	assert.Contains(t, h.messenger.last(t, user).text, "What would you like to book?")

	h.click(user, keyboard.PrefixProduct+storagemodels.ProductPNPLive)
	assert.Contains(t, h.messenger.last(t, user).text, "Choose a performer")

	h.click(user, keyboard.PrefixProvider+itoa(p.ID))
	assert.Contains(t, h.messenger.last(t, user).text, "How long should the session be?")

	h.click(user, keyboard.PrefixDuration+"60")
	assert.Equal(t, "Choose a date:", h.messenger.last(t, user).text)

	h.click(user, keyboard.PrefixDate+w.Start.Format("2006-01-02"))
	assert.Contains(t, h.messenger.last(t, user).text, "Choose a start time")

	h.click(user, keyboard.PrefixSlot+itoa(w.ID))
	assert.Contains(t, h.messenger.last(t, user).text, "How would you like to pay?")

	h.click(user, keyboard.PrefixPayment+storagemodels.PaymentMethodCard)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestStartShowsMenu(t *testing.T) {
	h := newHarness(t, nil)

	h.text(aliceID, "/start")
	msg := h.messenger.last(t, aliceID)
	assert.Contains(t, msg.text, "Welcome to PNP Live")
	assert.IsType(t, &models.InlineKeyboardMarkup{}, msg.markup)

	h.text(aliceID, "hello")
	assert.Equal(t, "Please tap /start to begin.", h.messenger.last(t, aliceID).text)
}

func TestBookingFlow(t *testing.T) {
	h := newHarness(t, nil)
	p, w := h.openWindow(t)

	h.book(t, aliceID, p, w)

	assert.Contains(t, h.messenger.last(t, aliceID).text, "Your slot is reserved!")
	assert.Contains(t, h.messenger.last(t, adminID).text, "New booking")
	assert.Equal(t, 7, h.messenger.answered)

	bookings, err := h.engine.Bookings.ListForRequester(context.Background(), aliceID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	b := bookings[0]
	assert.Equal(t, storagemodels.BookingPending, b.Status)
	assert.Equal(t, 60, b.DurationMinutes)
	assert.Equal(t, storagemodels.ProductPNPLive, b.Product)
	assert.True(t, b.ScheduledStart.Equal(w.Start))

	_, ok := h.service.Sessions().Get(aliceID)
	assert.False(t, ok, "session is cleared after reservation")
}

func TestBookingFlow_SlotTakenConcurrently(t *testing.T) {
	h := newHarness(t, nil)
	p, w := h.openWindow(t)

	// Оба пользователя дошли до выбора оплаты
	for _, user := range []int64{aliceID, bobID} {
		h.click(user, keyboard.PrefixMenu+keyboard.MenuBook)
		h.click(user, keyboard.PrefixProduct+storagemodels.ProductPNPLive)
		h.click(user, keyboard.PrefixProvider+itoa(p.ID))
		h.click(user, keyboard.PrefixDuration+"60")
		h.click(user, keyboard.PrefixDate+w.Start.Format("2006-01-02"))
		h.click(user, keyboard.PrefixSlot+itoa(w.ID))
	}

	h.click(aliceID, keyboard.PrefixPayment+storagemodels.PaymentMethodCard)
	assert.Contains(t, h.messenger.last(t, aliceID).text, "Your slot is reserved!")

	h.click(bobID, keyboard.PrefixPayment+storagemodels.PaymentMethodCrypto)
	assert.NotContains(t, h.messenger.last(t, bobID).text, "reserved")

	bobs, err := h.engine.Bookings.ListForRequester(context.Background(), bobID)
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestBookingFlow_ExpiredSession(t *testing.T) {
	h := newHarness(t, nil)

	h.click(aliceID, keyboard.PrefixPayment+storagemodels.PaymentMethodCard)
	assert.Contains(t, h.messenger.last(t, aliceID).text, "session has expired")

	h.click(aliceID, "XYZ:1")
	assert.Contains(t, h.messenger.last(t, aliceID).text, "Unknown option")
}

func TestMyBookings_Cancel(t *testing.T) {
	h := newHarness(t, nil)
	p, w := h.openWindow(t)
	h.book(t, aliceID, p, w)

	h.text(aliceID, "/mybookings")
	msg := h.messenger.last(t, aliceID)
	kb, ok := msg.markup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotEmpty(t, kb.InlineKeyboard)

	var cancelData string
	for _, r := range kb.InlineKeyboard {
		for _, btn := range r {
			if strings.HasPrefix(btn.CallbackData, keyboard.PrefixCancel) {
				cancelData = btn.CallbackData
			}
		}
	}
	require.NotEmpty(t, cancelData)

	// Чужое бронирование отменить нельзя
	h.click(bobID, cancelData)
	assert.Equal(t, "This booking belongs to someone else.", h.messenger.last(t, bobID).text)

	h.click(aliceID, cancelData)
	assert.Equal(t, "Booking cancelled.", h.messenger.last(t, aliceID).text)

	b, err := h.engine.Bookings.Get(context.Background(), strings.TrimPrefix(cancelData, keyboard.PrefixCancel))
	require.NoError(t, err)
	assert.Equal(t, storagemodels.BookingCancelled, b.Status)

	// Окно снова доступно
	slots, err := h.service.ListOpenSlots(context.Background(), p.ID, w.Start, 60)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestRefundRequestAndApproval(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p, w := h.openWindow(t)
	h.book(t, aliceID, p, w)

	bookings, err := h.engine.Bookings.ListForRequester(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	bookingID := bookings[0].ID

	_, confirmed, err := h.service.ConfirmPayment(ctx, bookingID, "tx-1")
	require.NoError(t, err)
	require.True(t, confirmed)
	assert.Contains(t, h.messenger.last(t, aliceID).text, "Payment received")

	h.click(aliceID, keyboard.PrefixRefund+bookingID)
	assert.Contains(t, h.messenger.last(t, aliceID).text, "why you'd like a refund")

	h.text(aliceID, "Something came up")
	assert.Contains(t, h.messenger.last(t, aliceID).text, "refund request has been submitted")

	adminMsg := h.messenger.last(t, adminID)
	assert.Contains(t, adminMsg.text, "Something came up")
	assert.IsType(t, &models.InlineKeyboardMarkup{}, adminMsg.markup)

	refunds, err := h.engine.Bookings.PendingRefunds(ctx)
	require.NoError(t, err)
	require.Len(t, refunds, 1)

	// Решение может принять только администратор
	h.click(bobID, keyboard.PrefixApprove+refunds[0].ID)
	assert.Equal(t, "This action is for administrators only.", h.messenger.last(t, bobID).text)

	h.click(adminID, keyboard.PrefixApprove+refunds[0].ID)
	assert.Equal(t, "Refund "+refunds[0].ID+" approved.", h.messenger.last(t, adminID).text)
	assert.Contains(t, h.messenger.last(t, aliceID).text, "approved")

	b, err := h.engine.Bookings.Get(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, storagemodels.PaymentRefunded, b.PaymentStatus)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t, nil)

	h.text(aliceID, "/stats")
	assert.Equal(t, "This command is for administrators only.", h.messenger.last(t, aliceID).text)

	h.text(adminID, "/addprovider Sofia | @sofia | Latin dancer")
	assert.Equal(t, "Performer #1 Sofia created.", h.messenger.last(t, adminID).text)

	h.text(adminID, "/addprovider   ")
	assert.NotContains(t, h.messenger.last(t, adminID).text, "created")

	day := time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")
	h.text(adminID, "/addwindow 1 "+day+" 22:00 00:30")
	assert.Contains(t, h.messenger.last(t, adminID).text, "Window #1 created")

	h.text(adminID, "/addwindow 1 tomorrow 22:00 23:00")
	assert.Contains(t, h.messenger.last(t, adminID).text, "Usage: /addwindow")

	windows, err := h.engine.Windows.ListWindows(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 150*time.Minute, windows[0].End.Sub(windows[0].Start))

	h.text(adminID, "/providers")
	assert.Contains(t, h.messenger.last(t, adminID).text, "#1 Sofia (@sofia)")

	h.text(adminID, "/stats 7")
	assert.Contains(t, h.messenger.last(t, adminID).text, "Last 7 days")

	h.text(adminID, "/unknown")
	assert.Equal(t, "Please tap /start to begin.", h.messenger.last(t, adminID).text)
	assert.Equal(t, 1, h.messenger.count(aliceID))
}

func TestAdminProviderDashboard(t *testing.T) {
	h := newHarness(t, nil)
	p, w := h.openWindow(t)
	h.book(t, aliceID, p, w)

	bookings, err := h.engine.Bookings.ListForRequester(context.Background(), aliceID)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	h.text(adminID, "/online "+itoa(p.ID)+" on")
	assert.Equal(t, "🟢 Performer #"+itoa(p.ID)+" is online.", h.messenger.last(t, adminID).text)
	h.text(adminID, "/providers")
	assert.Contains(t, h.messenger.last(t, adminID).text, "Sofia (@sofia) - online")

	h.text(adminID, "/online "+itoa(p.ID)+" OFF")
	assert.Equal(t, "⚪️ Performer #"+itoa(p.ID)+" is offline.", h.messenger.last(t, adminID).text)
	got, err := h.engine.Providers.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)

	h.text(adminID, "/online "+itoa(p.ID)+" maybe")
	assert.Equal(t, "Usage: /online <provider_id> on|off", h.messenger.last(t, adminID).text)
	h.text(adminID, "/online 99 on")
	assert.Contains(t, h.messenger.last(t, adminID).text, "not available")

	// Сессия начинается через двое суток
	h.text(adminID, "/upcoming "+itoa(p.ID))
	assert.Equal(t, "Sofia has no bookings in the next 24 hours.", h.messenger.last(t, adminID).text)

	h.text(adminID, "/upcoming "+itoa(p.ID)+" 72")
	msg := h.messenger.last(t, adminID).text
	assert.Contains(t, msg, "Sofia, next 72 hours")
	assert.Contains(t, msg, bookings[0].ID)

	h.text(adminID, "/upcoming "+itoa(p.ID)+" -1")
	assert.Equal(t, "Usage: /upcoming <provider_id> [hours]", h.messenger.last(t, adminID).text)

	h.text(aliceID, "/upcoming "+itoa(p.ID))
	assert.Equal(t, "This command is for administrators only.", h.messenger.last(t, aliceID).text)
}

func TestRateLimitedUser(t *testing.T) {
	limiter := middleware.NewTelegramRateLimiter(1, 100, logger.NewNop())
	t.Cleanup(limiter.Close)
	h := newHarness(t, limiter)

	h.text(aliceID, "/start")
	assert.Contains(t, h.messenger.last(t, aliceID).text, "Welcome")

	h.text(aliceID, "/start")
	assert.Equal(t, "Too many requests, please slow down.", h.messenger.last(t, aliceID).text)
}

func TestCommandOf(t *testing.T) {
	assert.Equal(t, "/start", commandOf("/start"))
	assert.Equal(t, "/stats", commandOf("/Stats@pnplive_bot 7"))
	assert.Equal(t, "", commandOf("hello"))
	assert.Equal(t, "start", handlerName("/start"))
	assert.Equal(t, "message", handlerName("hi"))
}
