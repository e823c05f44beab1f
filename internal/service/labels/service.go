package labels

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"convanalyzer/internal/models"
	"convanalyzer/internal/storage"
)

var (
	ErrNotFound     = errors.New("label not found")
	ErrInvalidLabel = errors.New("invalid label")
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Service persists ground-truth labels keyed by conversation id.
type Service struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewService(db *sql.DB, dbType string) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	driver, err := storage.NormalizeDriver(dbType)
	if err != nil {
		return nil, err
	}
	return &Service{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Service) q(query string) string {
	return storage.Rebind(s.driver, query)
}

func (s *Service) upsertQuery() string {
	const insert = `INSERT INTO ground_truth_labels (conversation_id, payload, labeled_by, labeled_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if s.driver == storage.DriverMySQL {
		return insert + ` ON DUPLICATE KEY UPDATE payload = VALUES(payload), labeled_by = VALUES(labeled_by), updated_at = VALUES(updated_at)`
	}
	return s.q(insert + ` ON CONFLICT (conversation_id) DO UPDATE SET payload = excluded.payload, labeled_by = excluded.labeled_by, updated_at = excluded.updated_at`)
}

// Save validates and upserts a label. The first labeled_at is kept on update.
func (s *Service) Save(ctx context.Context, label models.Label) (*models.Label, error) {
	if err := s.save(ctx, s.db, label); err != nil {
		return nil, err
	}
	return s.Get(ctx, label.ConversationID)
}

func (s *Service) save(ctx context.Context, ex execer, label models.Label) error {
	label.ConversationID = strings.TrimSpace(label.ConversationID)
	if label.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidLabel)
	}
	if err := label.GroundTruth.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLabel, err)
	}
	payload, err := json.Marshal(label.GroundTruth)
	if err != nil {
		return fmt.Errorf("encode ground truth: %w", err)
	}
	now := s.now()
	labeledAt := label.LabeledAt.UTC()
	if label.LabeledAt.IsZero() {
		labeledAt = now
	}
	if _, err := ex.ExecContext(ctx, s.upsertQuery(),
		label.ConversationID, string(payload), label.LabeledBy, labeledAt, now,
	); err != nil {
		return fmt.Errorf("upsert label: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLabel(row scanner) (*models.Label, error) {
	var (
		label   models.Label
		payload string
	)
	if err := row.Scan(&label.ConversationID, &payload, &label.LabeledBy, &label.LabeledAt, &label.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &label.GroundTruth); err != nil {
		return nil, fmt.Errorf("decode ground truth for %s: %w", label.ConversationID, err)
	}
	return &label, nil
}

const selectColumns = `SELECT conversation_id, payload, labeled_by, labeled_at, updated_at FROM ground_truth_labels`

func (s *Service) Get(ctx context.Context, conversationID string) (*models.Label, error) {
	row := s.db.QueryRowContext(ctx, s.q(selectColumns+` WHERE conversation_id = ?`), conversationID)
	label, err := scanLabel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get label: %w", err)
	}
	return label, nil
}

// List returns every label ordered by conversation id.
func (s *Service) List(ctx context.Context) ([]models.Label, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY conversation_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	labels := make([]models.Label, 0)
	for rows.Next() {
		label, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, *label)
	}
	return labels, rows.Err()
}

// Map indexes all labels by conversation id.
func (s *Service) Map(ctx context.Context) (map[string]models.Label, error) {
	labels, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Label, len(labels))
	for _, l := range labels {
		out[l.ConversationID] = l
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM ground_truth_labels WHERE conversation_id = ?`), conversationID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Export writes all labels as an indented JSON array and returns how many were written.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	labels, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(labels); err != nil {
		return 0, fmt.Errorf("encode labels: %w", err)
	}
	return len(labels), nil
}

// Import reads an exported label array and upserts every entry in one
// transaction. Any invalid entry aborts the whole import.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var entries []models.Label
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("%w: decode import: %w", ErrInvalidLabel, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, entry := range entries {
		if err = s.save(ctx, tx, entry); err != nil {
			err = fmt.Errorf("entry %d (%q): %w", i, entry.ConversationID, err)
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(entries), nil
}
