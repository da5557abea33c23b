package database

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// testIDCounter provides unique IDs across all tests in the package.
// Starts well above zero to avoid conflicts with any existing data.
var testIDCounter int64 = 100000

func nextID() int64 {
	return atomic.AddInt64(&testIDCounter, 1) + time.Now().UnixNano()%1_000_000_000*1000
}

func createTestUser(t *testing.T, pool *pgxpool.Pool, name string) *models.User {
	t.Helper()
	now := time.Now().Truncate(time.Microsecond)
	id := nextID()
	u := &models.User{
		ID:           id,
		Email:        fmt.Sprintf("%s-%d@example.com", name, id),
		DisplayName:  name,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$abc$def",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := NewUserRepository(pool).Create(context.Background(), u); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM profiles WHERE id = $1`, id)
	})
	return u
}

func createTestChannel(t *testing.T, pool *pgxpool.Pool, name string, creator int64, members ...int64) *models.Channel {
	t.Helper()
	now := time.Now().Truncate(time.Microsecond)
	ch := &models.Channel{
		ID:        nextID(),
		Name:      name,
		Kind:      models.ChannelKindGroup,
		CreatedBy: creator,
		Members:   append(models.IDs{creator}, members...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := NewChannelRepository(pool).Create(context.Background(), ch); err != nil {
		t.Fatalf("creating test channel: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM chat_messages WHERE channel_id = $1`, ch.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM chat_channel_members WHERE channel_id = $1`, ch.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM chat_channels WHERE id = $1`, ch.ID)
	})
	return ch
}
