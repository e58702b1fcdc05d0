package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.MessageRepo = (*Postgres)(nil)
var _ domain.MemberDirectory = (*Postgres)(nil)
var _ domain.PublishedRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveMessages сохраняет сообщения отчётного чата. Повторная доставка
// одного и того же апдейта перезаписывает текст, а не плодит дубли.
func (p *Postgres) SaveMessages(ctx context.Context, msgs []domain.ChannelMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, msg := range msgs {
		batch.Queue(`
INSERT INTO report_messages (chat_id, message_id, author_id, author_name, text, sent_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (chat_id, message_id) DO UPDATE
SET author_name = EXCLUDED.author_name, text = EXCLUDED.text, sent_at = EXCLUDED.sent_at
`, msg.ChatID, msg.ID, msg.AuthorID, msg.AuthorName, msg.Text, msg.SentAt)
	}

	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	var execErr error
	for range msgs {
		if _, err := br.Exec(); err != nil && execErr == nil {
			execErr = err
		}
	}
	closeErr := br.Close()
	if execErr == nil {
		execErr = closeErr
	}
	metrics.ObserveNetworkRequest("postgres", "report_messages_upsert", "report_messages", start, execErr)
	if execErr != nil {
		return fmt.Errorf("сохранение сообщений: %w", execErr)
	}
	return nil
}

// ListWindow возвращает сообщения чата за окно [from, to) в порядке отправки.
func (p *Postgres) ListWindow(ctx context.Context, chatID int64, from, to time.Time, limit int) ([]domain.ChannelMessage, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT chat_id, message_id, author_id, author_name, text, sent_at
FROM report_messages
WHERE chat_id = $1 AND sent_at >= $2 AND sent_at < $3
ORDER BY message_id
LIMIT $4
`, chatID, from, to, limit)
	metrics.ObserveNetworkRequest("postgres", "report_messages_window", "report_messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение окна сообщений: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChannelMessage
	for rows.Next() {
		var msg domain.ChannelMessage
		if err := rows.Scan(&msg.ChatID, &msg.ID, &msg.AuthorID, &msg.AuthorName, &msg.Text, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("разбор строки сообщения: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход сообщений: %w", err)
	}
	return msgs, nil
}

// ListMembers возвращает всех участников ростера чата.
func (p *Postgres) ListMembers(ctx context.Context, chatID int64) ([]domain.Member, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, username, display_name, is_bot, roles
FROM roster_members
WHERE chat_id = $1
ORDER BY user_id
`, chatID)
	metrics.ObserveNetworkRequest("postgres", "roster_members_list", "roster_members", start, err)
	if err != nil {
		return nil, fmt.Errorf("чтение ростера: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Username, &m.DisplayName, &m.IsBot, &m.Roles); err != nil {
			return nil, fmt.Errorf("разбор строки участника: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход ростера: %w", err)
	}
	return members, nil
}

// GetMember возвращает участника ростера по идентификатору.
func (p *Postgres) GetMember(ctx context.Context, chatID, userID int64) (domain.Member, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var m domain.Member
	err := p.pool.QueryRow(ctx, `
SELECT user_id, username, display_name, is_bot, roles
FROM roster_members
WHERE chat_id = $1 AND user_id = $2
`, chatID, userID).Scan(&m.ID, &m.Username, &m.DisplayName, &m.IsBot, &m.Roles)
	metrics.ObserveNetworkRequest("postgres", "roster_members_get", "roster_members", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("получение участника: %w", err)
	}
	return m, nil
}

// UpsertMember добавляет участника или обновляет его имена.
// Назначенные роли при обновлении не трогаются.
func (p *Postgres) UpsertMember(ctx context.Context, chatID int64, member domain.Member) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	roles := member.Roles
	if roles == nil {
		roles = []string{}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO roster_members (chat_id, user_id, username, display_name, is_bot, roles)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (chat_id, user_id) DO UPDATE
SET username = EXCLUDED.username, display_name = EXCLUDED.display_name, is_bot = EXCLUDED.is_bot
`, chatID, member.ID, member.Username, member.DisplayName, member.IsBot, roles)
	metrics.ObserveNetworkRequest("postgres", "roster_members_upsert", "roster_members", start, err)
	if err != nil {
		return fmt.Errorf("запись участника: %w", err)
	}
	return nil
}

// SetRoles назначает участнику роли.
func (p *Postgres) SetRoles(ctx context.Context, chatID, userID int64, roles []string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE roster_members SET roles = $3 WHERE chat_id = $1 AND user_id = $2
`, chatID, userID, roles)
	metrics.ObserveNetworkRequest("postgres", "roster_members_set_roles", "roster_members", start, err)
	if err != nil {
		return fmt.Errorf("назначение ролей: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// SavePublished сохраняет содержимое отправленной сводки.
func (p *Postgres) SavePublished(ctx context.Context, chatID, messageID int64, content string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO published_messages (chat_id, message_id, content, published_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (chat_id, message_id) DO UPDATE
SET content = EXCLUDED.content, published_at = now()
`, chatID, messageID, content)
	metrics.ObserveNetworkRequest("postgres", "published_messages_upsert", "published_messages", start, err)
	if err != nil {
		return fmt.Errorf("сохранение сводки: %w", err)
	}
	return nil
}

// GetPublished возвращает последнее сохранённое содержимое сводки.
func (p *Postgres) GetPublished(ctx context.Context, chatID, messageID int64) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var content string
	err := p.pool.QueryRow(ctx, `
SELECT content FROM published_messages WHERE chat_id = $1 AND message_id = $2
`, chatID, messageID).Scan(&content)
	metrics.ObserveNetworkRequest("postgres", "published_messages_get", "published_messages", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrMessageNotFound
	}
	if err != nil {
		return "", fmt.Errorf("получение сводки: %w", err)
	}
	return content, nil
}
