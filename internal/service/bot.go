package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"secret-santa-bot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	callbackDelete  = "del:"
	callbackConfirm = "delok:"
	callbackBack    = "back"
)

var markdownV2Replacer = strings.NewReplacer(
	"\\", "\\\\", "_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>",
	"#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|",
	"{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdown(text string) string {
	return markdownV2Replacer.Replace(text)
}

// BotAPI is the part of *tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramMessenger delivers private messages through the Bot API.
type TelegramMessenger struct {
	api BotAPI
}

func NewTelegramMessenger(api BotAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

func (m *TelegramMessenger) SendDirect(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.api.Send(tgbotapi.NewMessage(userID, text))
	return err
}

type SecretSantaBot struct {
	api      BotAPI
	registry *ParticipantRegistry
	wishes   *WishFlow
	admin    *AdminController
	log      *zap.Logger
}

func NewSecretSantaBot(api BotAPI, registry *ParticipantRegistry, wishes *WishFlow, admin *AdminController, log *zap.Logger) *SecretSantaBot {
	return &SecretSantaBot{
		api:      api,
		registry: registry,
		wishes:   wishes,
		admin:    admin,
		log:      log,
	}
}

func fullName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" && user.UserName != "" {
		name = "@" + user.UserName
	}
	return name
}

// HandleUpdate routes one inbound update. It never returns an error: every
// failure is turned into a reply.
func (s *SecretSantaBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if msg.IsCommand() {
			s.HandleCommand(ctx, msg)
			return
		}
		if msg.Chat.IsPrivate() && s.wishes.State(msg.From.ID) == AwaitingWishText {
			s.handleWishText(ctx, msg)
		}
	}
}

func (s *SecretSantaBot) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := strings.ToLower(msg.Command())

	switch command {
	case "start", "help":
		s.sendHelpMessage(msg)
	case "join", "add":
		s.handleJoin(ctx, msg)
	case "wish":
		s.handleSetWish(ctx, msg)
	case "mywish":
		s.handleGetWish(ctx, msg)
	case "cancel":
		s.handleCancel(msg)
	case "status":
		s.handleStatus(ctx, msg)
	case "list":
		s.handleListParticipants(ctx, msg)
	case "draw":
		s.handleDraw(ctx, msg)
	case "results":
		s.handleResults(ctx, msg)
	case "reset":
		s.handleReset(ctx, msg)
	case "resend":
		s.handleResend(ctx, msg)
	case "delete":
		s.handleDeleteCommand(ctx, msg)
	default:
		s.sendMessage(msg.Chat.ID, "Неизвестная команда. Используйте /help для списка команд.")
	}
}

func (s *SecretSantaBot) sendHelpMessage(msg *tgbotapi.Message) {
	helpText := `🎅 *Бот для Тайного Санты*

*Команды:*

/join - Участвовать в игре
/wish - Указать или изменить желание
/mywish - Показать ваше желание
/cancel - Отменить ввод желания
/status - Статус игры`

	if s.admin.IsAdmin(msg.From.ID) {
		helpText += `

*Команды для администратора:*

/list - Список участников (с кнопками удаления)
/draw - Провести жеребьёвку и разослать результаты
/results - Показать распределение
/resend - Повторно разослать результаты
/reset - Сбросить жеребьёвку
/delete id - Удалить участника`
	}

	response := tgbotapi.NewMessage(msg.Chat.ID, helpText)
	response.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.api.Send(response); err != nil {
		s.log.Warn("failed to send help message", zap.Error(err))
		response.ParseMode = ""
		s.send(response)
	}
}

func (s *SecretSantaBot) handleJoin(ctx context.Context, msg *tgbotapi.Message) {
	name := fullName(msg.From)
	if err := s.registry.Upsert(ctx, msg.From.ID, name); err != nil {
		s.replyError(msg.Chat.ID, "Ошибка при добавлении", err)
		return
	}
	s.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ %s, ты участвуешь!", name))
}

func wishPrompt() string {
	return fmt.Sprintf("✍️ Напишите ваше желание одним сообщением (от %d до %d символов).\n\n/cancel - отменить",
		domain.MinWishLength, domain.MaxWishLength)
}

// privateOnly answers group messages with a pointer to the private chat.
// Wish text is only read from private chats.
func (s *SecretSantaBot) privateOnly(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	s.sendMessage(msg.Chat.ID, "✉️ Напишите мне в личные сообщения, чтобы указать или посмотреть желание.")
	return false
}

func (s *SecretSantaBot) handleSetWish(ctx context.Context, msg *tgbotapi.Message) {
	if !s.privateOnly(msg) {
		return
	}
	if err := s.wishes.Begin(ctx, msg.From.ID, fullName(msg.From)); err != nil {
		s.replyError(msg.Chat.ID, "Ошибка при регистрации", err)
		return
	}

	if text := msg.CommandArguments(); strings.TrimSpace(text) != "" {
		s.submitWish(ctx, msg.Chat.ID, msg.From.ID, text)
		return
	}
	s.sendMessage(msg.Chat.ID, wishPrompt())
}

func (s *SecretSantaBot) handleWishText(ctx context.Context, msg *tgbotapi.Message) {
	s.submitWish(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
}

func (s *SecretSantaBot) submitWish(ctx context.Context, chatID, userID int64, text string) {
	wish, err := s.wishes.Submit(ctx, userID, text)
	switch {
	case errors.Is(err, domain.ErrWishTooShort):
		s.sendMessage(chatID, fmt.Sprintf("❌ Желание слишком короткое: минимум %d символа. Попробуйте ещё раз.", domain.MinWishLength))
	case errors.Is(err, domain.ErrWishTooLong):
		s.sendMessage(chatID, fmt.Sprintf("❌ Желание слишком длинное: максимум %d символов. Попробуйте ещё раз.", domain.MaxWishLength))
	case errors.Is(err, domain.ErrParticipantNotFound):
		s.wishes.Cancel(userID)
		s.sendMessage(chatID, "❌ Вы больше не участвуете в игре. Используйте /join чтобы вернуться.")
	case err != nil:
		s.replyError(chatID, "Ошибка при сохранении желания", err)
	default:
		s.sendMessage(chatID, fmt.Sprintf("✅ Ваше желание сохранено:\n\n%s", wish))
	}
}

func (s *SecretSantaBot) handleGetWish(ctx context.Context, msg *tgbotapi.Message) {
	if !s.privateOnly(msg) {
		return
	}
	wish, err := s.registry.GetWish(ctx, msg.From.ID)
	if err != nil {
		s.replyError(msg.Chat.ID, "Ошибка при получении желания", err)
		return
	}
	if wish == "" {
		s.sendMessage(msg.Chat.ID, "💝 У вас пока нет сохраненного желания.\n\nИспользуйте /wish чтобы добавить его.")
		return
	}
	s.sendMessage(msg.Chat.ID, fmt.Sprintf("💝 Ваше желание:\n\n%s", wish))
}

func (s *SecretSantaBot) handleCancel(msg *tgbotapi.Message) {
	if s.wishes.Cancel(msg.From.ID) {
		s.sendMessage(msg.Chat.ID, "👌 Ввод желания отменён.")
		return
	}
	s.sendMessage(msg.Chat.ID, "Нечего отменять.")
}

func (s *SecretSantaBot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	count, drawn, err := s.admin.Status(ctx)
	if err != nil {
		s.replyError(msg.Chat.ID, "Ошибка получения статуса", err)
		return
	}
	drawnText := "❌ Нет"
	if drawn {
		drawnText = "✅ Да"
	}
	s.sendMessage(msg.Chat.ID, fmt.Sprintf("📊 Статус игры:\n\nУчастников: %d\nЖеребьёвка проведена: %s", count, drawnText))
}

// listing renders the admin roster with one delete button per participant.
func (s *SecretSantaBot) listing(ctx context.Context, actorID int64) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	participants, err := s.admin.ListParticipants(ctx, actorID)
	if err != nil {
		return "", nil, err
	}
	if len(participants) == 0 {
		return "📝 Участников пока нет.", nil, nil
	}

	var list strings.Builder
	list.WriteString(fmt.Sprintf("📝 Участники (%d):\n\n", len(participants)))
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(participants))
	for i, p := range participants {
		wishMark := "—"
		if p.HasWish {
			wishMark = "💝"
		}
		list.WriteString(fmt.Sprintf("%d. %s %s (ID: %d)\n", i+1, p.Name, wishMark, p.UserID))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+p.Name, callbackDelete+strconv.FormatInt(p.UserID, 10)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return list.String(), &markup, nil
}

func (s *SecretSantaBot) handleListParticipants(ctx context.Context, msg *tgbotapi.Message) {
	text, markup, err := s.listing(ctx, msg.From.ID)
	if err != nil {
		s.replyAdminError(msg.Chat.ID, "Ошибка получения списка участников", err)
		return
	}
	response := tgbotapi.NewMessage(msg.Chat.ID, text)
	if markup != nil {
		response.ReplyMarkup = *markup
	}
	s.send(response)
}

func (s *SecretSantaBot) handleDraw(ctx context.Context, msg *tgbotapi.Message) {
	report, err := s.admin.Draw(ctx, msg.From.ID)
	switch {
	case errors.Is(err, domain.ErrInsufficientParticipants):
		s.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ Нужно минимум %d участника.", domain.MinParticipants))
	case errors.Is(err, domain.ErrAlreadyDrawn):
		s.sendMessage(msg.Chat.ID, "❌ Жеребьёвка уже проведена. Используйте /reset чтобы начать заново.")
	case err != nil:
		s.replyAdminError(msg.Chat.ID, "Ошибка при жеребьёвке", err)
	default:
		s.sendMessage(msg.Chat.ID, "🎉 Жеребьёвка проведена!\n\n"+deliverySummary(report.Delivery))
	}
}

func (s *SecretSantaBot) handleResend(ctx context.Context, msg *tgbotapi.Message) {
	report, err := s.admin.Resend(ctx, msg.From.ID)
	if err != nil {
		s.replyAdminError(msg.Chat.ID, "Ошибка при рассылке", err)
		return
	}
	s.sendMessage(msg.Chat.ID, "📨 Результаты разосланы повторно.\n\n"+deliverySummary(report.Delivery))
}

func deliverySummary(r DeliveryReport) string {
	summary := fmt.Sprintf("Отправлено сообщений: %d\nОшибок: %d", r.Sent, len(r.Failed))
	if len(r.Failed) > 0 {
		ids := make([]string, len(r.Failed))
		for i, id := range r.Failed {
			ids[i] = strconv.FormatInt(id, 10)
		}
		summary += "\nНе доставлено (ID): " + strings.Join(ids, ", ") +
			"\n\nПопросите этих участников написать боту /start и используйте /resend."
	}
	return summary
}

func (s *SecretSantaBot) handleResults(ctx context.Context, msg *tgbotapi.Message) {
	lines, err := s.admin.Results(ctx, msg.From.ID)
	if err != nil {
		s.replyAdminError(msg.Chat.ID, "Ошибка получения результатов", err)
		return
	}

	var md, plain strings.Builder
	md.WriteString("🎁 *Распределение:*\n\n")
	plain.WriteString("🎁 Распределение:\n\n")
	for _, l := range lines {
		giver, receiver := displayName(l.Giver), displayName(l.Receiver)
		md.WriteString(fmt.Sprintf("%s → %s\n", escapeMarkdown(giver), escapeMarkdown(receiver)))
		plain.WriteString(fmt.Sprintf("%s → %s\n", giver, receiver))
	}

	response := tgbotapi.NewMessage(msg.Chat.ID, md.String())
	response.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := s.api.Send(response); err != nil {
		s.log.Warn("failed to send results", zap.Error(err))
		s.sendMessage(msg.Chat.ID, plain.String())
	}
}

func displayName(p domain.Participant) string {
	if p.Name == "" {
		return fmt.Sprintf("Участник (ID: %d)", p.UserID)
	}
	return p.Name
}

func (s *SecretSantaBot) handleReset(ctx context.Context, msg *tgbotapi.Message) {
	if err := s.admin.Reset(ctx, msg.From.ID); err != nil {
		s.replyAdminError(msg.Chat.ID, "Ошибка при сбросе", err)
		return
	}
	s.sendMessage(msg.Chat.ID, "🔄 Жеребьёвка сброшена. Можно проводить заново!")
}

func (s *SecretSantaBot) handleDeleteCommand(ctx context.Context, msg *tgbotapi.Message) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		if !s.admin.IsAdmin(msg.From.ID) {
			s.sendMessage(msg.Chat.ID, "❌ Эта команда доступна только администраторам.")
			return
		}
		s.sendMessage(msg.Chat.ID, "❌ Укажите ID участника. Пример: /delete 123456789")
		return
	}

	outcome, err := s.admin.DeleteParticipant(ctx, msg.From.ID, targetID)
	if err != nil {
		s.replyAdminError(msg.Chat.ID, "Ошибка при удалении", err)
		return
	}
	if outcome.NeedsConfirmation {
		response := tgbotapi.NewMessage(msg.Chat.ID, confirmationText(outcome.Target))
		response.ReplyMarkup = confirmationKeyboard(targetID)
		s.send(response)
		return
	}
	s.sendMessage(msg.Chat.ID, deletedText(outcome))
}

func confirmationText(target domain.Participant) string {
	return fmt.Sprintf("⚠️ Жеребьёвка уже проведена.\n\nУдаление участника %s сбросит всё текущее распределение. Продолжить?",
		displayName(target))
}

func confirmationKeyboard(targetID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Удалить и сбросить", callbackConfirm+strconv.FormatInt(targetID, 10)),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Назад", callbackBack),
	))
}

func deletedText(outcome *DeleteOutcome) string {
	text := fmt.Sprintf("🗑 Участник %s удалён.", displayName(outcome.Target))
	if outcome.DrawDiscarded {
		text += "\n🔄 Жеребьёвка сброшена."
	}
	return text
}

func (s *SecretSantaBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		s.answerCallback(cb.ID, "", false)
		return
	}
	actorID := cb.From.ID
	if !s.admin.IsAdmin(actorID) {
		s.log.Warn("callback denied", zap.Int64("actor_id", actorID))
		s.answerCallback(cb.ID, "❌ Только для администраторов.", true)
		return
	}

	data := cb.Data
	switch {
	case data == callbackBack:
		if err := s.admin.CancelDelete(actorID); err != nil {
			s.answerCallback(cb.ID, userMessage(err), true)
			return
		}
		s.answerCallback(cb.ID, "", false)
		s.refreshListing(ctx, cb, "")

	case strings.HasPrefix(data, callbackConfirm):
		targetID, err := strconv.ParseInt(strings.TrimPrefix(data, callbackConfirm), 10, 64)
		if err != nil {
			s.answerCallback(cb.ID, "", false)
			return
		}
		outcome, err := s.admin.ConfirmDelete(ctx, actorID, targetID)
		if err != nil {
			s.answerCallback(cb.ID, userMessage(err), true)
			s.refreshListing(ctx, cb, "")
			return
		}
		s.answerCallback(cb.ID, "Удалено", false)
		s.refreshListing(ctx, cb, deletedText(outcome))

	case strings.HasPrefix(data, callbackDelete):
		targetID, err := strconv.ParseInt(strings.TrimPrefix(data, callbackDelete), 10, 64)
		if err != nil {
			s.answerCallback(cb.ID, "", false)
			return
		}
		outcome, err := s.admin.DeleteParticipant(ctx, actorID, targetID)
		if err != nil {
			s.answerCallback(cb.ID, userMessage(err), true)
			s.refreshListing(ctx, cb, "")
			return
		}
		s.answerCallback(cb.ID, "", false)
		if outcome.NeedsConfirmation {
			edit := tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
				confirmationText(outcome.Target), confirmationKeyboard(targetID))
			s.send(edit)
			return
		}
		s.refreshListing(ctx, cb, deletedText(outcome))

	default:
		s.answerCallback(cb.ID, "", false)
	}
}

// refreshListing replaces the callback's message with the current roster,
// optionally preceded by a notice.
func (s *SecretSantaBot) refreshListing(ctx context.Context, cb *tgbotapi.CallbackQuery, notice string) {
	text, markup, err := s.listing(ctx, cb.From.ID)
	if err != nil {
		text = "❌ " + userMessage(err)
		markup = nil
	}
	if notice != "" {
		text = notice + "\n\n" + text
	}

	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID
	if markup == nil {
		s.send(tgbotapi.NewEditMessageText(chatID, messageID, text))
		return
	}
	s.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup))
}

func (s *SecretSantaBot) answerCallback(callbackID, text string, alert bool) {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	if _, err := s.api.Request(cfg); err != nil {
		s.log.Warn("failed to answer callback", zap.Error(err))
	}
}

// userMessage maps domain errors to short Russian notices.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotAdmin):
		return "Эта команда доступна только администраторам."
	case errors.Is(err, domain.ErrNoDraw):
		return "Жеребьёвка ещё не проводилась."
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "Участник не найден."
	case errors.Is(err, domain.ErrNoPendingConfirmation):
		return "Подтверждение устарело. Повторите удаление."
	case errors.Is(err, domain.ErrAlreadyDrawn):
		return "Жеребьёвка уже проведена."
	case errors.Is(err, domain.ErrInsufficientParticipants):
		return fmt.Sprintf("Нужно минимум %d участника.", domain.MinParticipants)
	}
	return "Внутренняя ошибка, попробуйте позже."
}

func (s *SecretSantaBot) replyAdminError(chatID int64, prefix string, err error) {
	if errors.Is(err, domain.ErrNotAdmin) || errors.Is(err, domain.ErrNoDraw) ||
		errors.Is(err, domain.ErrParticipantNotFound) {
		s.sendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	s.replyError(chatID, prefix, err)
}

func (s *SecretSantaBot) replyError(chatID int64, prefix string, err error) {
	s.log.Error(prefix, zap.Int64("chat_id", chatID), zap.Error(err))
	s.sendMessage(chatID, fmt.Sprintf("❌ %s. %s", prefix, userMessage(err)))
}

func (s *SecretSantaBot) send(c tgbotapi.Chattable) {
	if _, err := s.api.Send(c); err != nil {
		s.log.Warn("failed to send message", zap.Error(err))
	}
}

func (s *SecretSantaBot) sendMessage(chatID int64, text string) {
	s.send(tgbotapi.NewMessage(chatID, text))
}
