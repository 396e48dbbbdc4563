package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|prune]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "prune":
		if err := pruneSnapshots(ctx, conn); err != nil {
			log.Fatalf("Failed to prune snapshots: %v", err)
		}
		fmt.Println("✅ Old snapshots pruned successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|prune]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS game_snapshots CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// The whole game lives in one jsonb document per snapshot; the
		// newest row wins on restore.
		`CREATE TABLE IF NOT EXISTS game_snapshots (
			id BIGSERIAL PRIMARY KEY,
			state JSONB NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_game_snapshots_saved_at ON game_snapshots(saved_at DESC)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	fmt.Println("  Created: game_snapshots")

	return nil
}

func pruneSnapshots(ctx context.Context, conn *pgx.Conn) error {
	tag, err := conn.Exec(ctx, `
		DELETE FROM game_snapshots
		WHERE id NOT IN (
			SELECT id FROM game_snapshots ORDER BY saved_at DESC, id DESC LIMIT 20
		)`)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	fmt.Printf("  Deleted %d old snapshots\n", tag.RowsAffected())

	return nil
}
