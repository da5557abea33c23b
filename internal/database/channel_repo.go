package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

type channelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepository(pool *pgxpool.Pool) ChannelRepository {
	return &channelRepo{pool: pool}
}

const channelColumns = `c.id, c.name, c.kind, c.description, c.created_by, c.created_at, c.updated_at`

func scanChannel(row pgx.Row, ch *models.Channel) error {
	return row.Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.Description, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt)
}

func (r *channelRepo) Create(ctx context.Context, ch *models.Channel) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var directKey *string
	if ch.Kind == models.ChannelKindDirect {
		key := models.DirectKey(ch.Members)
		directKey = &key
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO chat_channels (id, name, kind, description, created_by, created_at, updated_at, direct_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (direct_key) WHERE direct_key IS NOT NULL DO NOTHING`,
		ch.ID, ch.Name, ch.Kind, ch.Description, ch.CreatedBy, ch.CreatedAt, ch.UpdatedAt, directKey,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}

	for _, userID := range ch.Members {
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_channel_members (channel_id, user_id, joined_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			ch.ID, userID, ch.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *channelRepo) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	ch := &models.Channel{}
	err := scanChannel(r.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM chat_channels c WHERE c.id = $1`, id), ch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *channelRepo) ListVisible(ctx context.Context, userID int64) ([]models.Channel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+channelColumns+`
		 FROM chat_channels c
		 INNER JOIN chat_channel_members m ON m.channel_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.name, c.id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var ch models.Channel
		if err := scanChannel(rows, &ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *channelRepo) FindDirect(ctx context.Context, userA, userB int64) (*models.Channel, error) {
	ch := &models.Channel{}
	err := scanChannel(r.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM chat_channels c WHERE c.direct_key = $1`,
		models.DirectKey([]int64{userA, userB})), ch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *channelRepo) Touch(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE chat_channels SET updated_at = now() WHERE id = $1`, id)
	return err
}
