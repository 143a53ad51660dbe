package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/region23/pnplive/internal/booking"
	"github.com/region23/pnplive/internal/bot/keyboard"
	botservice "github.com/region23/pnplive/internal/bot/service"
	storagemodels "github.com/region23/pnplive/internal/storage/models"
	"github.com/region23/pnplive/internal/validation"
	"github.com/region23/pnplive/pkg/logger"
)

const adminHelp = `Admin commands:
/addprovider Name | @username | bio
/providers
/deactivate <provider_id>
/online <provider_id> on|off
/upcoming <provider_id> [hours]
/addwindow <provider_id> <YYYY-MM-DD> <HH:MM> <HH:MM>
/timeframe <provider_id> [YYYY-MM-DD]
/windows <provider_id> [YYYY-MM-DD]
/delwindow <window_id>
/refunds
/refund <refund_id> approve|reject
/cancel <booking_id>
/complete <booking_id>
/room <booking_id> <url>
/stats [days]`

// AdminHandler обрабатывает команды администраторов
type AdminHandler struct {
	service *botservice.Service
}

// NewAdminHandler создает обработчик админских команд
func NewAdminHandler(service *botservice.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// IsAdminCommand проверяет, относится ли команда к администрированию
func IsAdminCommand(command string) bool {
	switch command {
	case "/admin", "/addprovider", "/providers", "/deactivate", "/online", "/upcoming", "/addwindow",
		"/timeframe", "/windows", "/delwindow", "/refunds", "/refund", "/cancel", "/complete", "/room", "/stats":
		return true
	}
	return false
}

func (h *AdminHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.service.SendSimpleMessage(ctx, chatID, text); err != nil {
		h.service.Logger().Error("Failed to send admin reply",
			logger.Int64("chat_id", chatID),
			logger.Error(err))
	}
}

// Handle выполняет админскую команду
func (h *AdminHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chat := update.Message.Chat.ID
	userID := senderID(update)
	if !h.service.IsAdmin(userID) {
		h.reply(ctx, chat, "This command is for administrators only.")
		return
	}

	command, args := splitCommand(update.Message.Text)
	h.service.Logger().Info("Admin command",
		logger.Int64("admin_id", userID),
		logger.String("command", command))

	switch command {
	case "/addprovider":
		h.addProvider(ctx, chat, args)
	case "/providers":
		h.listProviders(ctx, chat)
	case "/deactivate":
		h.deactivate(ctx, chat, args)
	case "/online":
		h.setOnline(ctx, chat, args)
	case "/upcoming":
		h.upcoming(ctx, chat, args)
	case "/addwindow":
		h.addWindow(ctx, chat, args)
	case "/timeframe":
		h.timeFrame(ctx, chat, args)
	case "/windows":
		h.listWindows(ctx, chat, args)
	case "/delwindow":
		h.deleteWindow(ctx, chat, args)
	case "/refunds":
		h.listRefunds(ctx, chat)
	case "/refund":
		h.refund(ctx, chat, userID, args)
	case "/cancel":
		h.cancel(ctx, chat, args)
	case "/complete":
		h.complete(ctx, chat, args)
	case "/room":
		h.room(ctx, chat, args)
	case "/stats":
		h.stats(ctx, chat, args)
	default:
		h.reply(ctx, chat, adminHelp)
	}
}

// splitCommand отделяет команду от аргументов и убирает суффикс @botname
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	command, args, _ := strings.Cut(text, " ")
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	return strings.ToLower(command), strings.TrimSpace(args)
}

func parseID(arg string) (int64, error) {
	return validation.ValidateID(arg)
}

// parseDay разбирает необязательную дату; без даты - ближайший рабочий день
func (h *AdminHandler) parseDay(arg string) (time.Time, error) {
	loc := h.service.Location()
	if arg == "" {
		return booking.NextBookableDay(h.service.Now(), loc), nil
	}
	return validation.ValidateDate(arg, loc)
}

func (h *AdminHandler) addProvider(ctx context.Context, chat int64, args string) {
	parts := strings.SplitN(args, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}

	p, err := h.service.Engine().Providers.Create(ctx, parts[0], parts[1], parts[2])
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Performer #%d %s created.", p.ID, p.Name))
}

func (h *AdminHandler) listProviders(ctx context.Context, chat int64) {
	providers, err := h.service.Engine().Providers.ListActive(ctx)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	if len(providers) == 0 {
		h.reply(ctx, chat, "No active performers.")
		return
	}

	var sb strings.Builder
	for _, p := range providers {
		status := "offline"
		if p.IsOnline {
			status = "online"
		}
		fmt.Fprintf(&sb, "#%d %s (%s) - %s\n", p.ID, p.Name, p.Handle(), status)
	}
	h.reply(ctx, chat, sb.String())
}

func (h *AdminHandler) deactivate(ctx context.Context, chat int64, args string) {
	id, err := parseID(args)
	if err != nil {
		h.reply(ctx, chat, "Usage: /deactivate <provider_id>")
		return
	}
	if err := h.service.Engine().Providers.Deactivate(ctx, id); err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Performer #%d deactivated.", id))
}

func (h *AdminHandler) setOnline(ctx context.Context, chat int64, args string) {
	const usage = "Usage: /online <provider_id> on|off"

	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.reply(ctx, chat, usage)
		return
	}
	id, err := parseID(fields[0])
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}

	var online bool
	switch strings.ToLower(fields[1]) {
	case "on":
		online = true
	case "off":
	default:
		h.reply(ctx, chat, usage)
		return
	}

	if err := h.service.Engine().Providers.SetOnline(ctx, id, online); err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	if online {
		h.reply(ctx, chat, fmt.Sprintf("🟢 Performer #%d is online.", id))
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("⚪️ Performer #%d is offline.", id))
}

// upcomingHours - горизонт /upcoming по умолчанию
const upcomingHours = 24

func (h *AdminHandler) upcoming(ctx context.Context, chat int64, args string) {
	const usage = "Usage: /upcoming <provider_id> [hours]"

	fields := strings.Fields(args)
	if len(fields) < 1 || len(fields) > 2 {
		h.reply(ctx, chat, usage)
		return
	}
	id, err := parseID(fields[0])
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}
	hours := upcomingHours
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			h.reply(ctx, chat, usage)
			return
		}
		hours = n
	}

	p, err := h.service.Engine().Providers.Get(ctx, id)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	bookings, err := h.service.Engine().Bookings.UpcomingForProvider(ctx, id, hours)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	if len(bookings) == 0 {
		h.reply(ctx, chat, fmt.Sprintf("%s has no bookings in the next %d hours.", p.Name, hours))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 %s, next %d hours:\n", p.Name, hours)
	for _, b := range bookings {
		fmt.Fprintf(&sb, "\n%s\n%s\n", b.ID, botservice.FormatBooking(b, h.service.Location()))
	}
	h.reply(ctx, chat, sb.String())
}

func (h *AdminHandler) addWindow(ctx context.Context, chat int64, args string) {
	const usage = "Usage: /addwindow <provider_id> <YYYY-MM-DD> <HH:MM> <HH:MM>"

	fields := strings.Fields(args)
	if len(fields) != 4 {
		h.reply(ctx, chat, usage)
		return
	}
	providerID, err := parseID(fields[0])
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}

	loc := h.service.Location()
	start, end, err := validation.ValidateWindowRange(fields[1], fields[2], fields[3], loc)
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}

	w, err := h.service.Engine().Windows.AddWindow(ctx, providerID, start, end)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Window #%d created: %s-%s.", w.ID,
		w.Start.In(loc).Format("Jan 2 15:04"), w.End.In(loc).Format("15:04")))
}

func (h *AdminHandler) timeFrame(ctx context.Context, chat int64, args string) {
	const usage = "Usage: /timeframe <provider_id> [YYYY-MM-DD]"

	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		h.reply(ctx, chat, usage)
		return
	}
	providerID, err := parseID(fields[0])
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}
	var dayArg string
	if len(fields) == 2 {
		dayArg = fields[1]
	}
	day, err := h.parseDay(dayArg)
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}
	if !booking.IsBookableDay(day) {
		h.reply(ctx, chat, "Bookings are open Thursday to Monday only.")
		return
	}

	if err := h.service.SendMessage(ctx, chat, fmt.Sprintf("Choose a time frame for %s:", day.Format("Mon, Jan 2")),
		keyboard.CreateTimeFrameKeyboard(providerID, day)); err != nil {
		h.service.Logger().Error("Failed to send time frames", logger.Error(err))
	}
}

// ApplyTimeFrame создает окна по выбранному интервалу (callback TFR:)
func (h *AdminHandler) ApplyTimeFrame(ctx context.Context, chat, userID int64, data string) {
	if !h.service.IsAdmin(userID) {
		h.reply(ctx, chat, "This action is for administrators only.")
		return
	}

	loc := h.service.Location()
	providerID, day, key, err := keyboard.ParseTimeFrame(data, loc)
	if err != nil {
		h.reply(ctx, chat, "Invalid time frame.")
		return
	}
	frame, ok := booking.FindTimeFrame(key)
	if !ok {
		h.reply(ctx, chat, "Unknown time frame.")
		return
	}

	start, end := frame.On(day, loc)
	created, err := h.service.Engine().Windows.CreateWindowsForTimeFrame(ctx, providerID, start, end, h.service.SlotLength())
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("%s on %s: %d windows created.", frame.Label, day.Format("Mon, Jan 2"), len(created)))
}

func (h *AdminHandler) listWindows(ctx context.Context, chat int64, args string) {
	const usage = "Usage: /windows <provider_id> [YYYY-MM-DD]"

	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		h.reply(ctx, chat, usage)
		return
	}
	providerID, err := parseID(fields[0])
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}
	var dayArg string
	if len(fields) == 2 {
		dayArg = fields[1]
	}
	day, err := h.parseDay(dayArg)
	if err != nil {
		h.reply(ctx, chat, usage)
		return
	}

	loc := h.service.Location()
	from, to := booking.DayBounds(day, loc)
	windows, err := h.service.Engine().Windows.ListWindows(ctx, providerID)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}

	var sb strings.Builder
	for _, w := range windows {
		if !w.Overlaps(from, to) {
			continue
		}
		state := "open"
		if w.Booked {
			state = "booked"
		}
		fmt.Fprintf(&sb, "#%d %s-%s %s\n", w.ID, w.Start.In(loc).Format("15:04"), w.End.In(loc).Format("15:04"), state)
	}
	if sb.Len() == 0 {
		h.reply(ctx, chat, fmt.Sprintf("No windows on %s.", day.Format("Mon, Jan 2")))
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Windows on %s:\n%s", day.Format("Mon, Jan 2"), sb.String()))
}

func (h *AdminHandler) deleteWindow(ctx context.Context, chat int64, args string) {
	id, err := parseID(args)
	if err != nil {
		h.reply(ctx, chat, "Usage: /delwindow <window_id>")
		return
	}
	if err := h.service.Engine().Windows.Delete(ctx, id); err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Window #%d deleted.", id))
}

func (h *AdminHandler) listRefunds(ctx context.Context, chat int64) {
	refunds, err := h.service.Engine().Bookings.PendingRefunds(ctx)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	if len(refunds) == 0 {
		h.reply(ctx, chat, "No pending refund requests.")
		return
	}

	for _, r := range refunds {
		text := fmt.Sprintf("💸 %s\nBooking: %s\nUser: %d\nAmount: $%d\nReason: %s",
			r.ID, r.BookingID, r.RequesterID, r.AmountUSD, r.Reason)
		if err := h.service.SendMessage(ctx, chat, text, keyboard.CreateRefundDecisionKeyboard(r.ID)); err != nil {
			h.service.Logger().Error("Failed to send refund request", logger.Error(err))
		}
	}
}

func (h *AdminHandler) refund(ctx context.Context, chat, adminID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.reply(ctx, chat, "Usage: /refund <refund_id> approve|reject")
		return
	}

	var decision storagemodels.RefundStatus
	switch strings.ToLower(fields[1]) {
	case "approve":
		decision = storagemodels.RefundApproved
	case "reject":
		decision = storagemodels.RefundRejected
	default:
		h.reply(ctx, chat, "Usage: /refund <refund_id> approve|reject")
		return
	}
	h.ProcessRefund(ctx, chat, adminID, fields[0], decision)
}

// ProcessRefund фиксирует решение по возврату и сообщает пользователю
func (h *AdminHandler) ProcessRefund(ctx context.Context, chat, adminID int64, refundID string, decision storagemodels.RefundStatus) {
	if !h.service.IsAdmin(adminID) {
		h.reply(ctx, chat, "This action is for administrators only.")
		return
	}

	r, err := h.service.Engine().Bookings.ProcessRefund(ctx, refundID, decision, fmt.Sprintf("admin:%d", adminID))
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Refund %s %s.", r.ID, r.Status))

	text := "Your refund request was rejected. Contact support if you have questions."
	if r.Status == storagemodels.RefundApproved {
		text = fmt.Sprintf("Your refund request was approved. $%d will be returned to you.", r.AmountUSD)
	}
	if err := h.service.SendSimpleMessage(ctx, r.RequesterID, text); err != nil {
		h.service.Logger().Warn("Failed to notify requester about refund",
			logger.String("refund_id", r.ID),
			logger.Error(err))
	}
}

func (h *AdminHandler) cancel(ctx context.Context, chat int64, args string) {
	if args == "" {
		h.reply(ctx, chat, "Usage: /cancel <booking_id>")
		return
	}

	res, err := h.service.CancelBooking(ctx, args, "cancelled by admin", true)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Booking %s cancelled (refunded: %t).", res.Booking.ID, res.Refunded))

	if err := h.service.SendSimpleMessage(ctx, res.Booking.RequesterID,
		"Your session was cancelled by our team. Any payment will be refunded."); err != nil {
		h.service.Logger().Warn("Failed to notify requester about cancellation", logger.Error(err))
	}
}

func (h *AdminHandler) complete(ctx context.Context, chat int64, args string) {
	if args == "" {
		h.reply(ctx, chat, "Usage: /complete <booking_id>")
		return
	}

	b, err := h.service.Engine().Bookings.Complete(ctx, args)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, fmt.Sprintf("Booking %s completed.", b.ID))
}

func (h *AdminHandler) room(ctx context.Context, chat int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.reply(ctx, chat, "Usage: /room <booking_id> <url>")
		return
	}

	if err := h.service.Engine().Bookings.AttachVideoRoom(ctx, fields[0], fields[1]); err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	h.reply(ctx, chat, "Video room attached.")

	notice, err := h.service.Engine().Bookings.Notice(ctx, fields[0])
	if err != nil {
		h.service.Logger().Warn("Failed to load booking notice", logger.Error(err))
		return
	}
	text := fmt.Sprintf("🎥 Your room for the session with %s: %s", notice.ProviderName, fields[1])
	if err := h.service.SendSimpleMessage(ctx, notice.RequesterID, text); err != nil {
		h.service.Logger().Warn("Failed to send video room", logger.Error(err))
	}
}

func (h *AdminHandler) stats(ctx context.Context, chat int64, args string) {
	days := 30
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			h.reply(ctx, chat, "Usage: /stats [days]")
			return
		}
		days = n
	}

	to := h.service.Now()
	from := to.AddDate(0, 0, -days)

	st, err := h.service.Engine().Bookings.Statistics(ctx, from, to)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}
	revenue, err := h.service.Engine().Bookings.RevenueByProvider(ctx, from, to)
	if err != nil {
		h.service.SendErrorFor(ctx, chat, err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Last %d days\n", days)
	fmt.Fprintf(&sb, "Bookings: %d (pending %d, confirmed %d, completed %d, cancelled %d)\n",
		st.TotalBookings, st.PendingBookings, st.ConfirmedBookings, st.CompletedBookings, st.CancelledBookings)
	fmt.Fprintf(&sb, "Revenue: $%d booked, $%d paid\n", st.TotalRevenueUSD, st.PaidRevenueUSD)
	for _, r := range revenue {
		fmt.Fprintf(&sb, "• %s: %d bookings, $%d\n", r.Name, r.Bookings, r.PaidRevenueUSD)
	}
	h.reply(ctx, chat, sb.String())
}
