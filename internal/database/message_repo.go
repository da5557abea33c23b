package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepo{pool: pool}
}

const messageWithSenderQuery = `
	SELECT m.id, m.channel_id, m.user_id, m.content, m.attachments, m.mentions, m.reactions,
	       m.thread_count, m.created_at, m.updated_at,
	       p.id, p.display_name, p.email, p.avatar_url
	FROM chat_messages m
	INNER JOIN profiles p ON p.id = m.user_id`

func scanMessageWithSender(row pgx.Row, m *models.MessageWithSender) error {
	var mentions []int64
	if err := row.Scan(
		&m.ID, &m.ChannelID, &m.UserID, &m.Content, &m.Attachments, &mentions, &m.Reactions,
		&m.ThreadCount, &m.CreatedAt, &m.UpdatedAt,
		&m.Sender.ID, &m.Sender.DisplayName, &m.Sender.Email, &m.Sender.AvatarURL,
	); err != nil {
		return err
	}
	m.Mentions = models.IDs(mentions)
	normalize(&m.Message)
	return nil
}

// normalize replaces nil lists so they are stored and served as [] rather
// than null.
func normalize(m *models.Message) {
	if m.Attachments == nil {
		m.Attachments = []models.Attachment{}
	}
	if m.Mentions == nil {
		m.Mentions = models.IDs{}
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	normalize(msg)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_messages
		   (id, channel_id, user_id, content, attachments, mentions, reactions, thread_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ChannelID, msg.UserID, msg.Content, msg.Attachments, []int64(msg.Mentions),
		msg.Reactions, msg.ThreadCount, msg.CreatedAt, msg.UpdatedAt,
	)
	return err
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*models.MessageWithSender, error) {
	m := &models.MessageWithSender{}
	err := scanMessageWithSender(r.pool.QueryRow(ctx, messageWithSenderQuery+` WHERE m.id = $1`, id), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *messageRepo) ListByChannel(ctx context.Context, channelID int64) ([]models.MessageWithSender, error) {
	rows, err := r.pool.Query(ctx,
		messageWithSenderQuery+`
		 WHERE m.channel_id = $1
		 ORDER BY m.created_at ASC, m.id ASC`, channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.MessageWithSender{}
	for rows.Next() {
		var m models.MessageWithSender
		if err := scanMessageWithSender(rows, &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *messageRepo) UpdateContent(ctx context.Context, msg *models.Message) error {
	normalize(msg)
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET content = $2, mentions = $3, updated_at = $4
		 WHERE id = $1`,
		msg.ID, msg.Content, []int64(msg.Mentions), msg.UpdatedAt,
	)
	return err
}

func (r *messageRepo) SetReaction(ctx context.Context, messageID, userID int64, emoji string, present bool) (bool, error) {
	changed := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current []models.Reaction
		err := tx.QueryRow(ctx,
			`SELECT reactions FROM chat_messages WHERE id = $1 FOR UPDATE`, messageID,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		next, ok := models.SetReaction(current, emoji, userID, present)
		if !ok {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE chat_messages SET reactions = $2, updated_at = now() WHERE id = $1`,
			messageID, next,
		); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
