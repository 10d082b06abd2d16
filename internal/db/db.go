package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		// One table per identity space. A participant anywhere else is
		// a kind discriminator plus three nullable FK slots, exactly
		// one of which is set and matches the kind.
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            display_name VARCHAR(100) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS admins (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            display_name VARCHAR(100) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS mentors (
            id SERIAL PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            display_name VARCHAR(100) NOT NULL,
            expertise VARCHAR(100),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		// direct_key is the canonical unordered pair key ("a|b", sorted)
		// for direct conversations, NULL otherwise. The unique index is
		// what makes concurrent create calls for the same pair collapse
		// into one thread.
		`CREATE TABLE IF NOT EXISTS conversations (
            id SERIAL PRIMARY KEY,
            type VARCHAR(10) NOT NULL CHECK (type IN ('direct', 'team', 'broadcast', 'exercise')),
            title VARCHAR(200),
            team_id INT,
            exercise_id INT,
            direct_key TEXT,
            creator_kind VARCHAR(10) NOT NULL,
            creator_user_id INT REFERENCES users(id),
            creator_admin_id INT REFERENCES admins(id),
            creator_mentor_id INT REFERENCES mentors(id),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            last_activity_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_key_idx
            ON conversations (direct_key) WHERE direct_key IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS participants (
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            kind VARCHAR(10) NOT NULL CHECK (kind IN ('user', 'admin', 'mentor')),
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            admin_id INT REFERENCES admins(id) ON DELETE CASCADE,
            mentor_id INT REFERENCES mentors(id) ON DELETE CASCADE,
            joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            CHECK (num_nonnulls(user_id, admin_id, mentor_id) = 1)
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS participants_member_idx
            ON participants (conversation_id, kind, COALESCE(user_id, admin_id, mentor_id))`,

		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_kind VARCHAR(10) NOT NULL,
            sender_user_id INT REFERENCES users(id),
            sender_admin_id INT REFERENCES admins(id),
            sender_mentor_id INT REFERENCES mentors(id),
            body TEXT NOT NULL,
            reply_to_id INT REFERENCES messages(id),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            edited_at TIMESTAMP,
            deleted_at TIMESTAMP,
            CHECK (num_nonnulls(sender_user_id, sender_admin_id, sender_mentor_id) = 1)
        )`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx
            ON messages (conversation_id, created_at, id)`,

		// The unique index doubles as the idempotency guard: duplicate
		// receipts land on ON CONFLICT DO NOTHING.
		`CREATE TABLE IF NOT EXISTS read_receipts (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            reader_kind VARCHAR(10) NOT NULL,
            reader_user_id INT REFERENCES users(id),
            reader_admin_id INT REFERENCES admins(id),
            reader_mentor_id INT REFERENCES mentors(id),
            read_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            CHECK (num_nonnulls(reader_user_id, reader_admin_id, reader_mentor_id) = 1)
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS read_receipts_reader_idx
            ON read_receipts (message_id, reader_kind, COALESCE(reader_user_id, reader_admin_id, reader_mentor_id))`,

		`CREATE TABLE IF NOT EXISTS notifications (
            id SERIAL PRIMARY KEY,
            recipient_kind VARCHAR(10) NOT NULL,
            recipient_user_id INT REFERENCES users(id),
            recipient_admin_id INT REFERENCES admins(id),
            recipient_mentor_id INT REFERENCES mentors(id),
            type VARCHAR(30) NOT NULL,
            title VARCHAR(200) NOT NULL,
            body TEXT NOT NULL,
            link VARCHAR(255) NOT NULL,
            conversation_id INT REFERENCES conversations(id) ON DELETE CASCADE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            CHECK (num_nonnulls(recipient_user_id, recipient_admin_id, recipient_mentor_id) = 1)
        )`,
		`CREATE INDEX IF NOT EXISTS notifications_recipient_idx
            ON notifications (recipient_kind, COALESCE(recipient_user_id, recipient_admin_id, recipient_mentor_id), created_at)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
