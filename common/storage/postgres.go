package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netsentry/netsentry/common/models"
)

const queryTimeout = 5 * time.Second

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO events
		(time, agent_id, src, src_port, dst, dst_port, proto, size, pid, proc_name, raw)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8::integer, 0), $9, NULLIF($10, ''), $11)
	`
	// Size is at least 1 when reported, so zero means the agent left it out.
	_, err := s.pool.Exec(ctx, query,
		e.Time, e.AgentID, e.Src, e.SrcPort, e.Dst, e.DstPort,
		e.Proto, e.Size, e.PID, e.ProcName, e.Raw(),
	)
	if err != nil {
		return wrap("insert event", err)
	}
	return nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a *models.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO alerts
		(id, type, severity, description, time, src, dst, acknowledged, escalated, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			time = EXCLUDED.time,
			src = EXCLUDED.src,
			dst = EXCLUDED.dst,
			acknowledged = EXCLUDED.acknowledged,
			escalated = EXCLUDED.escalated,
			notes = EXCLUDED.notes
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Type, a.Severity, a.Description, a.Time, a.Src, a.Dst,
		a.Acknowledged, a.Escalated, a.Notes,
	)
	if err != nil {
		return wrap("insert alert", err)
	}
	return nil
}

func (s *PostgresStore) InsertAudit(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `INSERT INTO audit (time, message) VALUES (NOW(), $1)`, message); err != nil {
		return wrap("insert audit", err)
	}
	return nil
}

const signatureColumns = `id, rule_id, name, description, type, patterns, severity, active, version, created_at`

func scanSignature(row pgx.Row) (*models.Signature, error) {
	var sig models.Signature
	err := row.Scan(&sig.ID, &sig.RuleID, &sig.Name, &sig.Description, &sig.Type,
		&sig.Patterns, &sig.Severity, &sig.Active, &sig.Version, &sig.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *PostgresStore) ListSignatures(ctx context.Context) ([]models.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+signatureColumns+` FROM signatures ORDER BY id`)
	if err != nil {
		return nil, wrap("list signatures", err)
	}
	defer rows.Close()

	var sigs []models.Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, wrap("scan signature", err)
		}
		sigs = append(sigs, *sig)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list signatures", err)
	}
	return sigs, nil
}

func (s *PostgresStore) InsertSignature(ctx context.Context, sig *models.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	patterns := sig.Patterns
	if patterns == nil {
		patterns = []string{}
	}
	severity := sig.Severity
	if severity == "" {
		severity = models.DefaultAlertSeverity
	}

	query := `
		INSERT INTO signatures (rule_id, name, description, type, patterns, severity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version, created_at
	`
	err := s.pool.QueryRow(ctx, query,
		sig.RuleID, sig.Name, sig.Description, sig.Type, patterns, severity, sig.Active,
	).Scan(&sig.ID, &sig.Version, &sig.CreatedAt)
	if err != nil {
		return wrap("insert signature", err)
	}
	sig.Severity = severity
	return nil
}

func (s *PostgresStore) GetSignature(ctx context.Context, id int64) (*models.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sig, err := scanSignature(s.pool.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap("get signature", err)
	}
	return sig, nil
}

func (s *PostgresStore) SetSignatureActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE signatures SET active = $2, version = version + 1 WHERE id = $1`, id, active)
	if err != nil {
		return wrap("set signature active", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const alertColumns = `id, type, severity, description, time, src, dst, acknowledged, escalated, notes`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Description, &a.Time,
		&a.Src, &a.Dst, &a.Acknowledged, &a.Escalated, &a.Notes)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list alerts", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrap("scan alert", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list alerts", err)
	}
	return alerts, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, time, message FROM audit ORDER BY time DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list audit", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Time, &e.Message); err != nil {
			return nil, wrap("scan audit", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list audit", err)
	}
	return entries, nil
}

func (s *PostgresStore) UpdateAlertTriage(ctx context.Context, id string, t models.AlertTriage) (*models.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE alerts SET acknowledged = $2, escalated = $3, notes = $4
		WHERE id = $1
		RETURNING ` + alertColumns
	a, err := scanAlert(s.pool.QueryRow(ctx, query, id, t.Acknowledged, t.Escalated, t.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap("update alert triage", err)
	}
	return a, nil
}

func (s *PostgresStore) PurgeAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE time < $1`, cutoff)
	if err != nil {
		return 0, wrap("purge alerts", err)
	}
	return tag.RowsAffected(), nil
}
