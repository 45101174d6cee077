package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/consult/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func RunPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresMigrations {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, v domain.Session) error {
	args, err := sessionArgs(v)
	if err != nil {
		return fmt.Errorf("store: encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx, rebind(upsertSessionSQL), args...)
	return err
}

func (s *PostgresStore) UpdateParticipants(ctx context.Context, id domain.SessionID, participants []domain.Participant) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, rebind(deleteParticipantsSQL), string(id)); err != nil {
			return err
		}
		for _, p := range participants {
			args, err := participantArgs(id, p)
			if err != nil {
				return fmt.Errorf("store: encode participant: %w", err)
			}
			if _, err := tx.Exec(ctx, rebind(insertParticipantSQL), args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) SaveChatMessage(ctx context.Context, m domain.ChatMessage) error {
	args, err := chatArgs(m)
	if err != nil {
		return fmt.Errorf("store: encode chat message: %w", err)
	}
	_, err = s.pool.Exec(ctx, rebind(insertChatSQL), args...)
	return err
}

func (s *PostgresStore) SaveRecordingMetadata(ctx context.Context, a domain.RecordingArtifact) error {
	args, err := recordingArgs(a)
	if err != nil {
		return fmt.Errorf("store: encode recording: %w", err)
	}
	_, err = s.pool.Exec(ctx, rebind(upsertRecordingSQL), args...)
	return err
}

func (s *PostgresStore) SaveQualitySample(ctx context.Context, id domain.SessionID, q domain.QualitySample) error {
	_, err := s.pool.Exec(ctx, rebind(insertQualitySQL), qualityArgs(id, q)...)
	return err
}

func (s *PostgresStore) Shutdown() error {
	s.pool.Close()
	return nil
}
