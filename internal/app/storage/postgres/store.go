package postgres

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/conedex/conedex/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ storage.ProfileStore      = (*Store)(nil)
	_ storage.ShopStore         = (*Store)(nil)
	_ storage.ClaimStore        = (*Store)(nil)
	_ storage.FlavorStore       = (*Store)(nil)
	_ storage.LogStore          = (*Store)(nil)
	_ storage.QuestStore        = (*Store)(nil)
	_ storage.BadgeStore        = (*Store)(nil)
	_ storage.NotificationStore = (*Store)(nil)
	_ storage.NewsletterStore   = (*Store)(nil)
	_ storage.ModerationStore   = (*Store)(nil)
	_ storage.AnalyticsStore    = (*Store)(nil)
)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:  sqlx.NewDb(db, "postgres"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLife > 0 {
		db.SetConnMaxLifetime(maxLife)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapErr translates driver errors into storage sentinel errors.
func mapErr(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == uniqueViolation || pqErr.Code == foreignKeyViolation) {
		return fmt.Errorf("%s %s: %s: %w", kind, id, pqErr.Constraint, storage.ErrConflict)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}

// mustAffect returns ErrNotFound when an UPDATE or DELETE touched no rows.
func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

func stamp(created *time.Time, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// jsonColumn stores V as JSONB.
type jsonColumn[T any] struct {
	V T
}

func (j jsonColumn[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (j *jsonColumn[T]) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// where accumulates filter clauses with positional arguments.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT/OFFSET to query.
func (w *where) page(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		w.args = append(w.args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
