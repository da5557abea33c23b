package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

type memberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepo{pool: pool}
}

func (r *memberRepo) Add(ctx context.Context, channelID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_channel_members (channel_id, user_id, joined_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT DO NOTHING`,
		channelID, userID,
	)
	return err
}

func (r *memberRepo) Remove(ctx context.Context, channelID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chat_channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	)
	return err
}

func (r *memberRepo) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_channel_members WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID,
	).Scan(&exists)
	return exists, err
}

func (r *memberRepo) ListByChannelIDs(ctx context.Context, channelIDs []int64) ([]models.ChannelMember, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT channel_id, user_id, joined_at
		 FROM chat_channel_members
		 WHERE channel_id = ANY($1)
		 ORDER BY channel_id, joined_at, user_id`, channelIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.ChannelMember{}
	for rows.Next() {
		var m models.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
