package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/factgate/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultAuditListLimit = 50

const auditSchema = `CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	subject_id  TEXT NOT NULL,
	verdict     TEXT NOT NULL DEFAULT '',
	penalty     DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning   TEXT NOT NULL DEFAULT '',
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject_id, created_at DESC);`

type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (s *AuditStore) Create(ctx context.Context, e *domain.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO audit_events (id, kind, subject_id, verdict, penalty, confidence, reasoning, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		e.ID, string(e.Kind), e.SubjectID, e.Verdict, e.Penalty, e.Confidence, e.Reasoning, e.Payload,
	).Scan(&e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// ListBySubject returns the newest events for subjectID first.
func (s *AuditStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, subject_id, verdict, penalty, confidence, reasoning, payload, created_at
		 FROM audit_events
		 WHERE subject_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		subjectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.SubjectID, &e.Verdict, &e.Penalty, &e.Confidence, &e.Reasoning, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.AuditKind(kind)
		results = append(results, e)
	}
	return results, rows.Err()
}

// GetByID returns one event or ErrNotFound.
func (s *AuditStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AuditEvent, error) {
	e := &domain.AuditEvent{}
	var kind string
	err := s.db.QueryRow(ctx,
		`SELECT id, kind, subject_id, verdict, penalty, confidence, reasoning, payload, created_at
		 FROM audit_events WHERE id = $1`,
		id,
	).Scan(&e.ID, &kind, &e.SubjectID, &e.Verdict, &e.Penalty, &e.Confidence, &e.Reasoning, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Kind = domain.AuditKind(kind)
	return e, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
