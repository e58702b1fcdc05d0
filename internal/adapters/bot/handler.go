package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-standup-bot/internal/adapters/telegram"
	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/metrics"
	"tg-standup-bot/internal/usecase/roster"
)

// Handler обслуживает вебхук бота: складывает сообщения отчётного чата
// в хранилище и отвечает на команды управления ростером.
type Handler struct {
	bot          *tgbotapi.BotAPI
	log          zerolog.Logger
	rosterUC     *roster.Service
	messages     domain.MessageRepo
	states       domain.StateStore
	reportChatID int64
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, rosterUC *roster.Service, messages domain.MessageRepo, states domain.StateStore, reportChatID int64) *Handler {
	return &Handler{
		bot:          bot,
		log:          log,
		rosterUC:     rosterUC,
		messages:     messages,
		states:       states,
		reportChatID: reportChatID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if msg.Chat != nil && msg.Chat.ID == h.reportChatID && !strings.HasPrefix(text, "/") {
		h.storeReport(ctx, msg)
		return
	}
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage())
	case strings.HasPrefix(text, "/roster"):
		h.handleRoster(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/roles"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/roles"))
		h.handleRoles(ctx, msg, payload)
	case strings.HasPrefix(text, "/status"):
		h.handleStatus(msg.Chat.ID)
	default:
		if strings.HasPrefix(text, "/") {
			h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
		}
	}
}

// storeReport сохраняет сообщение отчётного чата и регистрирует автора
// в ростере, чтобы команда /roles могла назначить ему роль по user_id.
func (h *Handler) storeReport(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	record := domain.ChannelMessage{
		ID:         int64(msg.MessageID),
		ChatID:     msg.Chat.ID,
		AuthorID:   msg.From.ID,
		AuthorName: displayName(msg.From),
		Text:       msg.Text,
		SentAt:     msg.Time(),
	}
	if err := h.messages.SaveMessages(ctx, []domain.ChannelMessage{record}); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось сохранить сообщение")
		return
	}
	member := domain.Member{
		ID:          msg.From.ID,
		Username:    msg.From.UserName,
		DisplayName: displayName(msg.From),
		IsBot:       msg.From.IsBot,
	}
	if err := h.rosterUC.Register(ctx, msg.Chat.ID, member); err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось обновить ростер")
	}
}

func (h *Handler) handleRoster(ctx context.Context, chatID int64) {
	overview, err := h.rosterUC.Overview(ctx, h.reportChatID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить ростер: %v", err))
		return
	}
	if len(overview) == 0 {
		h.reply(chatID, "Ростер пуст. Участники появляются после первого сообщения в отчётном чате.")
		return
	}
	var b strings.Builder
	b.WriteString("Участники отчётного чата:\n")
	for i, entry := range overview {
		line := fmt.Sprintf("%d. %s (id %d)", i+1, entry.Member.DisplayName, entry.Member.ID)
		if len(entry.Member.Roles) > 0 {
			line += " — " + strings.Join(entry.Member.Roles, ", ")
		}
		if !entry.Eligible {
			line += " (вне сводки)"
		}
		b.WriteString(line + "\n")
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleRoles(ctx context.Context, msg *tgbotapi.Message, payload string) {
	userID, roles, err := resolveRolesTarget(msg, payload)
	if err != nil {
		h.reply(msg.Chat.ID, "Используйте формат: /roles <user_id> роль1 роль2, или ответьте командой на сообщение участника")
		return
	}
	if err := h.rosterUC.AssignRoles(ctx, h.reportChatID, userID, roles); err != nil {
		switch {
		case errors.Is(err, roster.ErrUnknownRole):
			h.reply(msg.Chat.ID, fmt.Sprintf("Роль вне настроенного списка: %v", err))
		case errors.Is(err, roster.ErrNoRoles):
			h.reply(msg.Chat.ID, "Укажите хотя бы одну роль")
		case errors.Is(err, domain.ErrMemberNotFound):
			h.reply(msg.Chat.ID, "Участник ещё не зарегистрирован в ростере")
		default:
			h.reply(msg.Chat.ID, fmt.Sprintf("Не удалось назначить роли: %v", err))
		}
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Роли назначены: %s", strings.Join(roles, ", ")))
}

func (h *Handler) handleStatus(chatID int64) {
	st, outcome, err := h.states.Load()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось прочитать состояние: %v", err))
		return
	}
	if outcome != domain.StateLoaded {
		h.reply(chatID, "Состояние дня ещё не создано")
		return
	}
	h.reply(chatID, formatStatus(st))
}

// resolveRolesTarget определяет адресата команды /roles: либо ответ на
// сообщение участника, либо явный user_id первым аргументом.
func resolveRolesTarget(msg *tgbotapi.Message, payload string) (int64, []string, error) {
	fields := strings.Fields(payload)
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if len(fields) == 0 {
			return 0, nil, errors.New("нет ролей")
		}
		return msg.ReplyToMessage.From.ID, fields, nil
	}
	if len(fields) < 2 {
		return 0, nil, errors.New("нет адресата или ролей")
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID == 0 {
		return 0, nil, errors.New("некорректный user_id")
	}
	return userID, fields[1:], nil
}

func formatStatus(st domain.SchedulerState) string {
	mark := func(fired bool) string {
		if fired {
			return "выполнен"
		}
		return "ожидает"
	}
	lines := []string{
		fmt.Sprintf("Дата: %s", st.Date),
		fmt.Sprintf("Напоминание: %s", mark(st.ReminderFired)),
		fmt.Sprintf("Теги по ролям: %s", mark(st.RoleTagFired)),
		fmt.Sprintf("Первая публикация: %s", mark(st.FirstPublishFired)),
	}
	if st.PublishedMessageID != 0 {
		lines = append(lines, fmt.Sprintf("Сводка: сообщение %d", st.PublishedMessageID))
	}
	return strings.Join(lines, "\n")
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name != "" {
		return name
	}
	return user.UserName
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		out := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(out)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) buildHelpMessage() string {
	lines := []string{
		"Бот дневных отчётов.",
		"",
		"Каждый рабочий день он напоминает про отчёты, тегает опоздавших",
		"и публикует сводку, которую обновляет до конца дня.",
		"",
		"Команды:",
		"• /roster — участники отчётного чата и их роли.",
		"• /roles <user_id> роль1 роль2 — назначить роли участнику.",
		"  Можно ответить командой на его сообщение: /roles dev tester.",
		"• /status — состояние шагов за сегодня.",
	}
	return strings.Join(lines, "\n")
}
