package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
)

// Set via -ldflags at build time.
var version = "dev"

type command struct {
	name    string
	summary string
	usage   string
	env     []string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{
		name:    "migrate",
		summary: "Run database migrations",
		usage:   "migrate [down]\n\nApplies pending migrations from migrations/, or rolls back the latest\none with 'down'.",
		env:     []string{"DATABASE_URL  PostgreSQL connection string (required)"},
		run:     runMigrate,
	},
	{
		name:    "seed",
		summary: "Seed demo data (users, channels, messages)",
		usage:   "seed\n\nCreates two users, a group channel, a direct channel and messages spread\nover yesterday and today.",
		env:     []string{"DATABASE_URL  PostgreSQL connection string (required)"},
		run:     runSeed,
	},
	{
		name:    "health",
		summary: "Check if the server is running",
		usage:   "health\n\nRequests /health on the workspace server.",
		env:     []string{"SERVER_URL  Server base URL (default: http://localhost:8080)"},
		run:     runHealth,
	},
	{
		name:    "version",
		summary: "Print version info",
		usage:   "version",
		run:     runVersion,
	},
}

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 || isHelp(os.Args[1]) {
		printUsage()
		if len(os.Args) < 2 {
			os.Exit(1)
		}
		return
	}

	idx := slices.IndexFunc(commands, func(c command) bool { return c.name == os.Args[1] })
	if idx < 0 {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	cmd, args := commands[idx], os.Args[2:]

	if slices.ContainsFunc(args, isHelp) {
		printCommandHelp(cmd)
		return
	}
	if err := cmd.run(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func isHelp(arg string) bool { return arg == "--help" || arg == "-h" || arg == "help" }

func printUsage() {
	fmt.Println("Usage: workspace-cli <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-8s %s\n", c.name, c.summary)
	}
	fmt.Println()
	fmt.Println("Run 'workspace-cli <command> --help' for details on a command.")
}

func printCommandHelp(c command) {
	fmt.Printf("Usage: workspace-cli %s\n", c.usage)
	if len(c.env) > 0 {
		fmt.Println()
		fmt.Println("Environment:")
		for _, e := range c.env {
			fmt.Println("  " + e)
		}
	}
}

func databaseURL() (string, error) {
	v := os.Getenv("DATABASE_URL")
	if v == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	return v, nil
}

// --- migrate ---

func runMigrate(_ context.Context, args []string) error {
	dbURL, err := databaseURL()
	if err != nil {
		return err
	}

	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	defer m.Close()

	if slices.Contains(args, "down") {
		fmt.Println("rolling back the latest migration...")
		err = m.Steps(-1)
	} else {
		fmt.Println("applying migrations...")
		err = m.Up()
	}
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		return fmt.Errorf("migrating: %w", err)
	}

	v, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		fmt.Println("schema is empty")
	case verr != nil:
		return fmt.Errorf("reading schema version: %w", verr)
	case noChange:
		fmt.Printf("already up to date at version %d\n", v)
	default:
		fmt.Printf("schema at version %d (dirty: %v)\n", v, dirty)
	}
	return nil
}

// --- seed ---

type seedUser struct {
	id       int64
	email    string
	name     string
	password string
}

type seedMessage struct {
	channelID int64
	userID    int64
	content   string
	mentions  []int64
	at        time.Time
}

func runSeed(ctx context.Context, _ []string) error {
	dbURL, err := databaseURL()
	if err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	sf, err := snowflake.NewGenerator(0)
	if err != nil {
		return err
	}

	alice := seedUser{sf.Next(), "alice@example.com", "Alice Lovelace", "password123"}
	bob := seedUser{sf.Next(), "bob@example.com", "Bob Hopper", "password456"}
	generalID, directID := sf.Next(), sf.Next()

	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	messages := []seedMessage{
		{generalID, alice.id, "Welcome to the workspace!", nil, yesterday},
		{generalID, bob.id, "Glad to be here @Alice Lovelace", []int64{alice.id}, yesterday.Add(5 * time.Minute)},
		{generalID, alice.id, "Standup moves to 10:00 today.", nil, now.Add(-time.Hour)},
		{directID, bob.id, "Do you have a minute?", nil, now.Add(-30 * time.Minute)},
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, u := range []seedUser{alice, bob} {
			hash, err := auth.HashPassword(u.password)
			if err != nil {
				return fmt.Errorf("hashing password for %s: %w", u.email, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO profiles (id, email, display_name, password_hash, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT DO NOTHING`,
				u.id, u.email, u.name, hash, now,
			); err != nil {
				return fmt.Errorf("inserting %s: %w", u.email, err)
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_channels (id, name, kind, description, created_by, created_at, updated_at, direct_key)
			 VALUES ($1, 'general', 'group', 'Company-wide announcements', $3, $4, $4, NULL),
			        ($2, $5, 'direct', NULL, $3, $4, $4, $6)
			 ON CONFLICT DO NOTHING`,
			generalID, directID, alice.id, yesterday, alice.name+", "+bob.name,
			models.DirectKey([]int64{alice.id, bob.id}),
		); err != nil {
			return fmt.Errorf("inserting channels: %w", err)
		}

		batch := &pgx.Batch{}
		for _, ch := range []int64{generalID, directID} {
			for _, u := range []seedUser{alice, bob} {
				batch.Queue(`INSERT INTO chat_channel_members (channel_id, user_id, joined_at)
				             VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, ch, u.id, yesterday)
			}
		}
		for _, m := range messages {
			mentions := m.mentions
			if mentions == nil {
				mentions = []int64{}
			}
			batch.Queue(`INSERT INTO chat_messages (id, channel_id, user_id, content, mentions, created_at, updated_at)
			             VALUES ($1, $2, $3, $4, $5, $6, $6)`,
				sf.Next(), m.channelID, m.userID, m.content, mentions, m.at)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting members and messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println("seeded:")
	for _, u := range []seedUser{alice, bob} {
		fmt.Printf("  user     %s (password: %s)\n", u.email, u.password)
	}
	fmt.Printf("  channels general (group), %s, %s (direct)\n", alice.name, bob.name)
	fmt.Printf("  messages %d across yesterday and today\n", len(messages))
	return nil
}

func runVersion(context.Context, []string) error {
	fmt.Printf("workspace-cli %s\n", version)
	return nil
}

// --- health ---

func runHealth(ctx context.Context, _ []string) error {
	base := os.Getenv("SERVER_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	url := strings.TrimRight(base, "/") + "/health"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Printf("%s is healthy: %s\n", url, strings.TrimSpace(string(body)))
	return nil
}
