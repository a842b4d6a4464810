package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

// tsLayout is fixed width so text columns sort chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements ports.Store on a single SQLite file. One connection
// serializes every transaction, which also serializes natural-key checks.
type SQLiteStore struct {
	db       *sql.DB
	settings settings
	gauges   gaugeLoop
}

var _ ports.Store = (*SQLiteStore)(nil)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore opens path and brings its schema up to date.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	st := newSettings(opts)
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		path, st.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, model.Unavailable("ping", err)
	}
	version, err := migrateSQLiteDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	st.logger.Info(ctx, "sqlite schema ready", logger.String("path", path), logger.Int("version", int(version)))

	s := &SQLiteStore{db: db, settings: st}
	s.gauges.start(ctx, st.metricsInterval, s, st.logger)
	return s, nil
}

// migrateSQLiteDB runs the embedded migrations on an open handle. The
// migrate instance is not closed since that would close db.
func migrateSQLiteDB(db *sql.DB) (uint, error) {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("init sqlite migrations: %w", err)
	}
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return 0, fmt.Errorf("load sqlite migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("init sqlite migrations: %w", err)
	}
	return up(m)
}

// Close stops the gauge updater and closes the database.
func (s *SQLiteStore) Close() error {
	s.gauges.stop()
	return s.db.Close()
}

// RunInTx implements ports.TxRunner.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("tx", float64(time.Since(start).Milliseconds())) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqliteTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return sqliteError("commit", err)
	}
	return nil
}

// GetRecord implements ports.Reader.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error) {
	return sqliteGetRecord(ctx, s.db, id)
}

// GetReview implements ports.Reader.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (model.ReviewItem, error) {
	return sqliteGetReview(ctx, s.db, id)
}

// ListActive implements ports.Reader.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]model.AttendeeRecord, error) {
	return sqliteQueryRecords(ctx, s.db, "list active",
		`SELECT `+recordColumns+` FROM attendee_records WHERE superseded_by IS NULL ORDER BY committed_at, id`)
}

// ListReviews implements ports.Reader.
func (s *SQLiteStore) ListReviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.IssueType != "" {
		where = append(where, "issue_type = ?")
		args = append(args, string(filter.IssueType))
	}
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError("list reviews", err)
	}
	defer rows.Close()
	out := make([]model.ReviewItem, 0)
	for rows.Next() {
		item, err := sqliteScanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("list reviews", err)
	}
	return out, nil
}

// CountReviews implements ports.Reader.
func (s *SQLiteStore) CountReviews(ctx context.Context, status model.ReviewStatus) (map[model.IssueType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT issue_type, COUNT(*) FROM review_items WHERE (? = '' OR status = ?) GROUP BY issue_type`,
		string(status), string(status))
	if err != nil {
		return nil, sqliteError("count reviews", err)
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
		return nil, sqliteError("count reviews", err)
	}
	return out, nil
}

// PendingEvents implements ports.Outbox.
func (s *SQLiteStore) PendingEvents(ctx context.Context, limit int) ([]model.DomainEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, aggregate_id, occurred_at, payload FROM outbox_events
		 WHERE dispatched_at IS NULL ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, sqliteError("pending events", err)
	}
	defer rows.Close()
	out := make([]model.DomainEvent, 0)
	for rows.Next() {
		var (
			ev               model.DomainEvent
			typ, at, payload string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.AggregateID, &at, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.OccurredAt, err = parseTS(at); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(typ)
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("pending events", err)
	}
	return out, nil
}

// MarkDispatched implements ports.Outbox.
func (s *SQLiteStore) MarkDispatched(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTS(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE outbox_events SET dispatched_at = ? WHERE dispatched_at IS NULL AND id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return sqliteError("mark dispatched", err)
	}
	return nil
}

func (s *SQLiteStore) gaugeCounts(ctx context.Context) (gaugeCounts, error) {
	c := gaugeCounts{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendee_records WHERE superseded_by IS NULL`).Scan(&c.active); err != nil {
		return c, sqliteError("count active", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE dispatched_at IS NULL`).Scan(&c.backlog); err != nil {
		return c, sqliteError("count backlog", err)
	}
	pending, err := s.CountReviews(ctx, model.StatusPending)
	if err != nil {
		return c, err
	}
	c.pending = pending
	return c, nil
}

type sqliteTx struct {
	q sqlQuerier
}

// LockKey is a no-op: the single connection already serializes transactions.
func (t *sqliteTx) LockKey(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (t *sqliteTx) FindByEmail(ctx context.Context, email string) ([]model.AttendeeRecord, error) {
	return sqliteQueryRecords(ctx, t.q, "find by email",
		`SELECT `+recordColumns+` FROM attendee_records WHERE email = ? AND superseded_by IS NULL`, email)
}

func (t *sqliteTx) FindByPhone(ctx context.Context, phone string) ([]model.AttendeeRecord, error) {
	return sqliteQueryRecords(ctx, t.q, "find by phone",
		`SELECT `+recordColumns+` FROM attendee_records WHERE phone_number = ? AND superseded_by IS NULL`, phone)
}

func (t *sqliteTx) GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error) {
	return sqliteGetRecord(ctx, t.q, id)
}

func (t *sqliteTx) InsertRecord(ctx context.Context, rec model.AttendeeRecord) error { //nolint:gocritic // stored by value
	conf, err := marshalConfidence(rec.FieldConfidence)
	if err != nil {
		return err
	}
	merged, err := json.Marshal(nonNil(rec.MergedFrom))
	if err != nil {
		return fmt.Errorf("encode merged from: %w", err)
	}
	_, err = t.q.ExecContext(ctx, `INSERT INTO attendee_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FullName, rec.PhoneNumber, rec.Email, rec.Location, rec.Company, rec.JobTitle,
		string(rec.Source), nullText(string(conf)), formatTS(rec.Timestamp), rec.SubmittedBy, rec.DuplicateOverride,
		rec.OriginReviewID, string(merged), nullText(rec.SupersededBy), nullTS(rec.SupersededAt),
	)
	if err != nil {
		return sqliteError("insert record", err)
	}
	return nil
}

func (t *sqliteTx) RetireRecord(ctx context.Context, id, supersededBy string, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE attendee_records SET superseded_by = ?, superseded_at = ? WHERE id = ? AND superseded_by IS NULL`,
		supersededBy, formatTS(at), id)
	if err != nil {
		return sqliteError("retire record", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := sqliteGetRecord(ctx, t.q, id); err != nil {
		return err
	}
	return model.ErrSuperseded
}

func (t *sqliteTx) InsertReview(ctx context.Context, item model.ReviewItem) error { //nolint:gocritic // stored by value
	cand, err := json.Marshal(item.Candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	low, err := json.Marshal(fieldNames(item.LowFields))
	if err != nil {
		return fmt.Errorf("encode low fields: %w", err)
	}
	_, err = t.q.ExecContext(ctx, `INSERT INTO review_items (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(cand), string(item.IssueType), item.SuggestedMatchID, string(low),
		item.MatchCount, item.SubmittedBy, formatTS(item.CreatedAt), string(item.Status),
		item.ResolvedBy, nullTS(item.ResolvedAt), item.ResultRecordID,
	)
	if err != nil {
		return sqliteError("insert review", err)
	}
	return nil
}

func (t *sqliteTx) GetReview(ctx context.Context, id string) (model.ReviewItem, error) {
	return sqliteGetReview(ctx, t.q, id)
}

func (t *sqliteTx) ResolveReview(ctx context.Context, id string, res model.Resolution) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE review_items SET status = ?, resolved_by = ?, resolved_at = ?, result_record_id = ?
		 WHERE id = ? AND status = 'PENDING'`,
		string(res.Status), res.ResolvedBy, formatTS(res.ResolvedAt), res.ResultRecordID, id)
	if err != nil {
		return sqliteError("resolve review", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return nil
	}
	item, err := sqliteGetReview(ctx, t.q, id)
	if err != nil {
		return err
	}
	return &model.StaleResolutionError{ItemID: id, Status: item.Status}
}

func (t *sqliteTx) AppendEvent(ctx context.Context, ev model.DomainEvent) error { //nolint:gocritic // stored by value
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO outbox_events (id, type, aggregate_id, occurred_at, payload) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.AggregateID, formatTS(ev.OccurredAt), string(ev.Payload))
	if err != nil {
		return sqliteError("append event", err)
	}
	return nil
}

func sqliteGetRecord(ctx context.Context, q sqlQuerier, id string) (model.AttendeeRecord, error) {
	rec, err := sqliteScanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendee_records WHERE id = ?`, id))
	if err != nil {
		return model.AttendeeRecord{}, sqliteError("get record", err)
	}
	return rec, nil
}

func sqliteGetReview(ctx context.Context, q sqlQuerier, id string) (model.ReviewItem, error) {
	item, err := sqliteScanReview(q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_items WHERE id = ?`, id))
	if err != nil {
		return model.ReviewItem{}, sqliteError("get review", err)
	}
	return item, nil
}

func sqliteQueryRecords(ctx context.Context, q sqlQuerier, op, query string, args ...any) ([]model.AttendeeRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(op, err)
	}
	defer rows.Close()
	out := make([]model.AttendeeRecord, 0)
	for rows.Next() {
		rec, err := sqliteScanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError(op, err)
	}
	return out, nil
}

func sqliteScanRecord(row rowScanner) (model.AttendeeRecord, error) {
	var (
		rec          model.AttendeeRecord
		source       string
		conf         sql.NullString
		committedAt  string
		merged       string
		supBy, supAt sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.FullName, &rec.PhoneNumber, &rec.Email, &rec.Location, &rec.Company, &rec.JobTitle,
		&source, &conf, &committedAt, &rec.SubmittedBy, &rec.DuplicateOverride,
		&rec.OriginReviewID, &merged, &supBy, &supAt,
	)
	if err != nil {
		return model.AttendeeRecord{}, err
	}
	rec.Source = model.Source(source)
	if rec.Timestamp, err = parseTS(committedAt); err != nil {
		return model.AttendeeRecord{}, err
	}
	if rec.FieldConfidence, err = unmarshalConfidence([]byte(conf.String)); err != nil {
		return model.AttendeeRecord{}, err
	}
	var from []string
	if err := json.Unmarshal([]byte(merged), &from); err != nil {
		return model.AttendeeRecord{}, fmt.Errorf("decode merged from: %w", err)
	}
	if len(from) > 0 {
		rec.MergedFrom = from
	}
	rec.SupersededBy = supBy.String
	if supAt.Valid {
		at, err := parseTS(supAt.String)
		if err != nil {
			return model.AttendeeRecord{}, err
		}
		rec.SupersededAt = &at
	}
	return rec, nil
}

func sqliteScanReview(row rowScanner) (model.ReviewItem, error) {
	var (
		item                      model.ReviewItem
		cand, issue, low, created string
		status                    string
		resolvedAt                sql.NullString
	)
	err := row.Scan(
		&item.ID, &cand, &issue, &item.SuggestedMatchID, &low, &item.MatchCount,
		&item.SubmittedBy, &created, &status, &item.ResolvedBy, &resolvedAt, &item.ResultRecordID,
	)
	if err != nil {
		return model.ReviewItem{}, err
	}
	if err := json.Unmarshal([]byte(cand), &item.Candidate); err != nil {
		return model.ReviewItem{}, fmt.Errorf("decode candidate: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(low), &names); err != nil {
		return model.ReviewItem{}, fmt.Errorf("decode low fields: %w", err)
	}
	item.LowFields = toFields(names)
	item.IssueType = model.IssueType(issue)
	item.Status = model.ReviewStatus(status)
	if item.CreatedAt, err = parseTS(created); err != nil {
		return model.ReviewItem{}, err
	}
	if resolvedAt.Valid {
		at, err := parseTS(resolvedAt.String)
		if err != nil {
			return model.ReviewItem{}, err
		}
		item.ResolvedAt = &at
	}
	return item, nil
}

// sqliteError maps driver errors onto the domain error kinds.
func sqliteError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, model.ErrAlreadyExists)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", op, model.ErrNotFound)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			metrics.RecordStoreError(op)
			return model.Unavailable(op, err)
		}
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		metrics.RecordStoreError(op)
		return model.Unavailable(op, err)
	}
	metrics.RecordStoreError(op)
	return fmt.Errorf("%s: %w", op, err)
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
