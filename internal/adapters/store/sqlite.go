package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dkeye/consult/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path with WAL and foreign keys on and applies the migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	for _, s := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(s)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, v domain.Session) error {
	args, err := sessionArgs(v)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertSessionSQL, args...)
	return err
}

func (s *SQLiteStore) UpdateParticipants(ctx context.Context, id domain.SessionID, participants []domain.Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteParticipantsSQL, string(id)); err != nil {
		return err
	}
	for _, p := range participants {
		args, err := participantArgs(id, p)
		if err != nil {
			return fmt.Errorf("store: encode participant: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertParticipantSQL, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveChatMessage(ctx context.Context, m domain.ChatMessage) error {
	args, err := chatArgs(m)
	if err != nil {
		return fmt.Errorf("store: encode chat message: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertChatSQL, args...)
	return err
}

func (s *SQLiteStore) SaveRecordingMetadata(ctx context.Context, a domain.RecordingArtifact) error {
	args, err := recordingArgs(a)
	if err != nil {
		return fmt.Errorf("store: encode recording: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertRecordingSQL, args...)
	return err
}

func (s *SQLiteStore) SaveQualitySample(ctx context.Context, id domain.SessionID, q domain.QualitySample) error {
	_, err := s.db.ExecContext(ctx, insertQualitySQL, qualityArgs(id, q)...)
	return err
}

func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}
