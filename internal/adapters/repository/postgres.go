package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const recordColumns = `id, full_name, phone_number, email, location, company, job_title,
	source, field_confidence, committed_at, submitted_by, duplicate_override,
	origin_review_id, merged_from, superseded_by, superseded_at`

const reviewColumns = `id, candidate, issue_type, suggested_match_id, low_fields, match_count,
	submitted_by, created_at, status, resolved_by, resolved_at, result_record_id`

// PostgresStore implements ports.Store on PostgreSQL. Natural-key locks are
// transaction-scoped advisory locks and a partial unique index backs the
// one-active-record-per-email rule.
type PostgresStore struct {
	pool     *pgxpool.Pool
	settings settings
	gauges   gaugeLoop
}

var _ ports.Store = (*PostgresStore)(nil)

// pgQuerier is satisfied by both the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	st := newSettings(opts)
	if st.migrate {
		version, err := MigratePostgres(dsn)
		if err != nil {
			return nil, err
		}
		st.logger.Info(ctx, "postgres schema ready", logger.Int("version", int(version)))
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.MaxConns = st.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, model.Unavailable("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, model.Unavailable("ping", err)
	}

	s := &PostgresStore{pool: pool, settings: st}
	s.gauges.start(ctx, st.metricsInterval, s, st.logger)
	return s, nil
}

// Close stops the gauge updater and closes the pool.
func (s *PostgresStore) Close() error {
	s.gauges.stop()
	s.pool.Close()
	return nil
}

// RunInTx implements ports.TxRunner.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("tx", float64(time.Since(start).Milliseconds())) }()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return pgError("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgError("commit", err)
	}
	return nil
}

// GetRecord implements ports.Reader.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error) {
	return getRecord(ctx, s.pool, id)
}

// GetReview implements ports.Reader.
func (s *PostgresStore) GetReview(ctx context.Context, id string) (model.ReviewItem, error) {
	return getReview(ctx, s.pool, id, false)
}

// ListActive implements ports.Reader.
func (s *PostgresStore) ListActive(ctx context.Context) ([]model.AttendeeRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("list_active", float64(time.Since(start).Milliseconds())) }()
	return queryRecords(ctx, s.pool, "list active",
		`SELECT `+recordColumns+` FROM attendee_records WHERE superseded_by IS NULL ORDER BY committed_at, id`)
}

// ListReviews implements ports.Reader.
func (s *PostgresStore) ListReviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error) {
	where := []string{"TRUE"}
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.IssueType != "" {
		args = append(args, string(filter.IssueType))
		where = append(where, fmt.Sprintf("issue_type = $%d", len(args)))
	}
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError("list reviews", err)
	}
	defer rows.Close()
	out := make([]model.ReviewItem, 0)
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("list reviews", err)
	}
	return out, nil
}

// CountReviews implements ports.Reader.
func (s *PostgresStore) CountReviews(ctx context.Context, status model.ReviewStatus) (map[model.IssueType]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT issue_type, COUNT(*) FROM review_items WHERE ($1 = '' OR status = $1) GROUP BY issue_type`,
		string(status))
	if err != nil {
		return nil, pgError("count reviews", err)
	}
	defer rows.Close()
	out := make(map[model.IssueType]int)
	for rows.Next() {
		var (
			issue string
			n     int
		)
		if err := rows.Scan(&issue, &n); err != nil {
			return nil, fmt.Errorf("scan review count: %w", err)
		}
		out[model.IssueType(issue)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("count reviews", err)
	}
	return out, nil
}

// PendingEvents implements ports.Outbox.
func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]model.DomainEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, aggregate_id, occurred_at, payload FROM outbox_events
		 WHERE dispatched_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, pgError("pending events", err)
	}
	defer rows.Close()
	out := make([]model.DomainEvent, 0)
	for rows.Next() {
		var (
			ev      model.DomainEvent
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.AggregateID, &ev.OccurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = model.EventType(typ)
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("pending events", err)
	}
	return out, nil
}

// MarkDispatched implements ports.Outbox.
func (s *PostgresStore) MarkDispatched(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET dispatched_at = now() WHERE id = ANY($1) AND dispatched_at IS NULL`, ids); err != nil {
		return pgError("mark dispatched", err)
	}
	return nil
}

func (s *PostgresStore) gaugeCounts(ctx context.Context) (gaugeCounts, error) {
	c := gaugeCounts{}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendee_records WHERE superseded_by IS NULL`).Scan(&c.active); err != nil {
		return c, pgError("count active", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE dispatched_at IS NULL`).Scan(&c.backlog); err != nil {
		return c, pgError("count backlog", err)
	}
	pending, err := s.CountReviews(ctx, model.StatusPending)
	if err != nil {
		return c, err
	}
	c.pending = pending
	return c, nil
}

// pgTx implements ports.Tx over a pgx transaction.
type pgTx struct {
	q pgQuerier
}

func (t *pgTx) LockKey(ctx context.Context, key string) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return pgError("lock key", err)
	}
	return nil
}

func (t *pgTx) FindByEmail(ctx context.Context, email string) ([]model.AttendeeRecord, error) {
	return queryRecords(ctx, t.q, "find by email",
		`SELECT `+recordColumns+` FROM attendee_records WHERE email = $1 AND superseded_by IS NULL`, email)
}

func (t *pgTx) FindByPhone(ctx context.Context, phone string) ([]model.AttendeeRecord, error) {
	return queryRecords(ctx, t.q, "find by phone",
		`SELECT `+recordColumns+` FROM attendee_records WHERE phone_number = $1 AND superseded_by IS NULL`, phone)
}

func (t *pgTx) GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error) {
	return getRecord(ctx, t.q, id)
}

func (t *pgTx) InsertRecord(ctx context.Context, rec model.AttendeeRecord) error { //nolint:gocritic // stored by value
	conf, err := marshalConfidence(rec.FieldConfidence)
	if err != nil {
		return err
	}
	var supBy *string
	if rec.SupersededBy != "" {
		supBy = &rec.SupersededBy
	}
	_, err = t.q.Exec(ctx, `INSERT INTO attendee_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.FullName, rec.PhoneNumber, rec.Email, rec.Location, rec.Company, rec.JobTitle,
		string(rec.Source), conf, rec.Timestamp.UTC(), rec.SubmittedBy, rec.DuplicateOverride,
		rec.OriginReviewID, nonNil(rec.MergedFrom), supBy, rec.SupersededAt,
	)
	if err != nil {
		return pgError("insert record", err)
	}
	return nil
}

func (t *pgTx) RetireRecord(ctx context.Context, id, supersededBy string, at time.Time) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE attendee_records SET superseded_by = $2, superseded_at = $3
		 WHERE id = $1 AND superseded_by IS NULL`, id, supersededBy, at.UTC())
	if err != nil {
		return pgError("retire record", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := getRecord(ctx, t.q, id); err != nil {
		return err
	}
	return model.ErrSuperseded
}

func (t *pgTx) InsertReview(ctx context.Context, item model.ReviewItem) error { //nolint:gocritic // stored by value
	cand, err := json.Marshal(item.Candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	_, err = t.q.Exec(ctx, `INSERT INTO review_items (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, cand, string(item.IssueType), item.SuggestedMatchID, fieldNames(item.LowFields),
		item.MatchCount, item.SubmittedBy, item.CreatedAt.UTC(), string(item.Status),
		item.ResolvedBy, item.ResolvedAt, item.ResultRecordID,
	)
	if err != nil {
		return pgError("insert review", err)
	}
	return nil
}

func (t *pgTx) GetReview(ctx context.Context, id string) (model.ReviewItem, error) {
	return getReview(ctx, t.q, id, true)
}

func (t *pgTx) ResolveReview(ctx context.Context, id string, res model.Resolution) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE review_items SET status = $2, resolved_by = $3, resolved_at = $4, result_record_id = $5
		 WHERE id = $1 AND status = 'PENDING'`,
		id, string(res.Status), res.ResolvedBy, res.ResolvedAt.UTC(), res.ResultRecordID)
	if err != nil {
		return pgError("resolve review", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	item, err := getReview(ctx, t.q, id, false)
	if err != nil {
		return err
	}
	return &model.StaleResolutionError{ItemID: id, Status: item.Status}
}

func (t *pgTx) AppendEvent(ctx context.Context, ev model.DomainEvent) error { //nolint:gocritic // stored by value
	_, err := t.q.Exec(ctx,
		`INSERT INTO outbox_events (id, type, aggregate_id, occurred_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), ev.AggregateID, ev.OccurredAt.UTC(), []byte(ev.Payload))
	if err != nil {
		return pgError("append event", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getRecord(ctx context.Context, q pgQuerier, id string) (model.AttendeeRecord, error) {
	rec, err := scanRecord(q.QueryRow(ctx, `SELECT `+recordColumns+` FROM attendee_records WHERE id = $1`, id))
	if err != nil {
		return model.AttendeeRecord{}, pgError("get record", err)
	}
	return rec, nil
}

func getReview(ctx context.Context, q pgQuerier, id string, forUpdate bool) (model.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	item, err := scanReview(q.QueryRow(ctx, query, id))
	if err != nil {
		return model.ReviewItem{}, pgError("get review", err)
	}
	return item, nil
}

func queryRecords(ctx context.Context, q pgQuerier, op, query string, args ...any) ([]model.AttendeeRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(op, err)
	}
	defer rows.Close()
	out := make([]model.AttendeeRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(op, err)
	}
	return out, nil
}

func scanRecord(row rowScanner) (model.AttendeeRecord, error) {
	var (
		rec    model.AttendeeRecord
		source string
		conf   []byte
		merged []string
		supBy  *string
		supAt  *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.FullName, &rec.PhoneNumber, &rec.Email, &rec.Location, &rec.Company, &rec.JobTitle,
		&source, &conf, &rec.Timestamp, &rec.SubmittedBy, &rec.DuplicateOverride,
		&rec.OriginReviewID, &merged, &supBy, &supAt,
	)
	if err != nil {
		return model.AttendeeRecord{}, err
	}
	rec.Source = model.Source(source)
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.FieldConfidence, err = unmarshalConfidence(conf); err != nil {
		return model.AttendeeRecord{}, err
	}
	if len(merged) > 0 {
		rec.MergedFrom = merged
	}
	if supBy != nil {
		rec.SupersededBy = *supBy
	}
	if supAt != nil {
		at := supAt.UTC()
		rec.SupersededAt = &at
	}
	return rec, nil
}

func scanReview(row rowScanner) (model.ReviewItem, error) {
	var (
		item       model.ReviewItem
		cand       []byte
		issue      string
		status     string
		lowFields  []string
		resolvedAt *time.Time
	)
	err := row.Scan(
		&item.ID, &cand, &issue, &item.SuggestedMatchID, &lowFields, &item.MatchCount,
		&item.SubmittedBy, &item.CreatedAt, &status, &item.ResolvedBy, &resolvedAt, &item.ResultRecordID,
	)
	if err != nil {
		return model.ReviewItem{}, err
	}
	if err := json.Unmarshal(cand, &item.Candidate); err != nil {
		return model.ReviewItem{}, fmt.Errorf("decode candidate: %w", err)
	}
	item.IssueType = model.IssueType(issue)
	item.Status = model.ReviewStatus(status)
	item.CreatedAt = item.CreatedAt.UTC()
	item.LowFields = toFields(lowFields)
	if resolvedAt != nil {
		at := resolvedAt.UTC()
		item.ResolvedAt = &at
	}
	return item, nil
}

// pgError maps driver errors onto the domain error kinds.
func pgError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, model.ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, model.ErrNotFound, pgErr.ConstraintName)
		}
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordStoreError(op)
	return model.Unavailable(op, err)
}

func marshalConfidence(conf map[model.Field]float64) ([]byte, error) {
	if len(conf) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(conf)
	if err != nil {
		return nil, fmt.Errorf("encode field confidence: %w", err)
	}
	return b, nil
}

func unmarshalConfidence(b []byte) (map[model.Field]float64, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var conf map[model.Field]float64
	if err := json.Unmarshal(b, &conf); err != nil {
		return nil, fmt.Errorf("decode field confidence: %w", err)
	}
	if len(conf) == 0 {
		return nil, nil
	}
	return conf, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func fieldNames(fs []model.Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func toFields(names []string) []model.Field {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.Field, len(names))
	for i, n := range names {
		out[i] = model.Field(n)
	}
	return out
}
