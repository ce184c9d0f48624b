package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goclockin/calendar"
	"goclockin/internal/timeutil"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db       *sql.DB
	location *time.Location
}

var ErrActionNotFound = errors.New("action not found")

// ActionRecord is one journal line: an attempted clock action and what came
// of it.
type ActionRecord struct {
	ID          int64
	Account     string
	Kind        string
	Source      string
	At          time.Time
	Decision    string
	ShiftID     string
	EffectiveAt *time.Time
	Warning     string
	Outcome     string
	Error       string
	CreatedAt   time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Writes from the dispatcher and the web UI go through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, location: time.Local}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS calendar_days (
	account TEXT NOT NULL,
	date TEXT NOT NULL,
	is_working_weekday INTEGER NOT NULL,
	is_holiday INTEGER NOT NULL,
	is_leave INTEGER NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	fetched_on TEXT NOT NULL,
	PRIMARY KEY (account, date)
);`,
		`CREATE TABLE IF NOT EXISTS actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account TEXT NOT NULL,
	kind TEXT NOT NULL,
	at TEXT NOT NULL,
	decision TEXT NOT NULL,
	shift_id TEXT NOT NULL DEFAULT '',
	effective_at TEXT NOT NULL DEFAULT '',
	warning TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
		`CREATE INDEX IF NOT EXISTS actions_account_at ON actions(account, at);`,
	}
	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := s.ensureColumn("actions", "source", `TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column to databases created before it existed.
func (s *SQLiteStore) ensureColumn(table, column, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return fmt.Errorf("query table info: %w", err)
	}
	defer rows.Close()

	hasColumn := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		if strings.EqualFold(name, column) {
			hasColumn = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table info: %w", err)
	}
	rows.Close()

	if hasColumn {
		return nil
	}

	if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s;`, table, column, definition)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}

// SaveCalendar replaces the cached entries for the given days.
func (s *SQLiteStore) SaveCalendar(account string, days []calendar.Day, fetchedOn time.Time) (int, error) {
	account = normalizeAccount(account)
	if account == "" {
		return 0, errors.New("account is required")
	}
	if len(days) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	const upsertStmt = `
INSERT INTO calendar_days (
	account,
	date,
	is_working_weekday,
	is_holiday,
	is_leave,
	label,
	fetched_on
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(account, date) DO UPDATE SET
	is_working_weekday = excluded.is_working_weekday,
	is_holiday = excluded.is_holiday,
	is_leave = excluded.is_leave,
	label = excluded.label,
	fetched_on = excluded.fetched_on;`

	stmt, err := tx.Prepare(upsertStmt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare calendar upsert: %w", err)
	}
	defer stmt.Close()

	fetched := fetchedOn.In(s.location).Format(timeutil.DayLayout)
	saved := 0
	for _, day := range days {
		if _, err := stmt.Exec(
			account,
			day.Date.In(s.location).Format(timeutil.DayLayout),
			boolInt(day.IsWorkingWeekday),
			boolInt(day.IsHoliday),
			boolInt(day.IsLeave),
			day.Label,
			fetched,
		); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("save calendar day %s: %w", day.Date.Format(timeutil.DayLayout), err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit calendar: %w", err)
	}
	return saved, nil
}

// CalendarFor returns cached days in [from, to] that were fetched on
// fetchedOn. Entries fetched on other days are treated as stale and skipped.
func (s *SQLiteStore) CalendarFor(account string, from, to, fetchedOn time.Time) ([]calendar.Day, error) {
	const query = `
SELECT
	date,
	is_working_weekday,
	is_holiday,
	is_leave,
	label
FROM calendar_days
WHERE account = ? AND date >= ? AND date <= ? AND fetched_on = ?
ORDER BY date;
`

	rows, err := s.db.Query(
		query,
		normalizeAccount(account),
		from.In(s.location).Format(timeutil.DayLayout),
		to.In(s.location).Format(timeutil.DayLayout),
		fetchedOn.In(s.location).Format(timeutil.DayLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer rows.Close()

	days := make([]calendar.Day, 0, 31)
	for rows.Next() {
		var (
			dateRaw                  string
			working, holiday, leave int
			day                      calendar.Day
		)
		if err := rows.Scan(&dateRaw, &working, &holiday, &leave, &day.Label); err != nil {
			return nil, fmt.Errorf("scan calendar day: %w", err)
		}
		day.Date, err = time.ParseInLocation(timeutil.DayLayout, dateRaw, s.location)
		if err != nil {
			return nil, fmt.Errorf("parse calendar date %q: %w", dateRaw, err)
		}
		day.IsWorkingWeekday = working != 0
		day.IsHoliday = holiday != 0
		day.IsLeave = leave != 0
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar: %w", err)
	}

	return days, nil
}

// DeleteCalendar drops all cached calendar entries of account.
func (s *SQLiteStore) DeleteCalendar(account string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM calendar_days WHERE account = ?;`, normalizeAccount(account))
	if err != nil {
		return 0, fmt.Errorf("delete calendar: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read deleted row count: %w", err)
	}
	return affected, nil
}

func (s *SQLiteStore) AppendAction(record ActionRecord) (int64, error) {
	record.Account = normalizeAccount(record.Account)
	if record.Account == "" {
		return 0, errors.New("account is required")
	}

	const insertStmt = `
INSERT INTO actions (
	account,
	kind,
	source,
	at,
	decision,
	shift_id,
	effective_at,
	warning,
	outcome,
	error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	effectiveAt := ""
	if record.EffectiveAt != nil {
		effectiveAt = record.EffectiveAt.UTC().Format(time.RFC3339)
	}

	res, err := s.db.Exec(
		insertStmt,
		record.Account,
		record.Kind,
		record.Source,
		record.At.UTC().Format(time.RFC3339),
		record.Decision,
		record.ShiftID,
		effectiveAt,
		record.Warning,
		record.Outcome,
		record.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted row id: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid inserted row id %d", id)
	}
	return id, nil
}

// ListActions returns journal entries with at in [from, to), oldest first.
// An empty account lists all accounts.
func (s *SQLiteStore) ListActions(account string, from, to time.Time) ([]ActionRecord, error) {
	query := `
SELECT
	id,
	account,
	kind,
	source,
	at,
	decision,
	shift_id,
	effective_at,
	warning,
	outcome,
	error,
	created_at
FROM actions
WHERE at >= ? AND at < ?`
	args := []any{from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)}
	if account = normalizeAccount(account); account != "" {
		query += ` AND account = ?`
		args = append(args, account)
	}
	query += `
ORDER BY at, id;`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	records := make([]ActionRecord, 0, 64)
	for rows.Next() {
		record, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}

	return records, nil
}

// LastAction returns the most recent journal entry of account.
func (s *SQLiteStore) LastAction(account string) (ActionRecord, error) {
	const query = `
SELECT
	id,
	account,
	kind,
	source,
	at,
	decision,
	shift_id,
	effective_at,
	warning,
	outcome,
	error,
	created_at
FROM actions
WHERE account = ?
ORDER BY at DESC, id DESC
LIMIT 1;
`
	row := s.db.QueryRow(query, normalizeAccount(account))
	record, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ActionRecord{}, ErrActionNotFound
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (ActionRecord, error) {
	var (
		record       ActionRecord
		atRaw        string
		effectiveRaw string
		createdRaw   string
	)
	if err := row.Scan(
		&record.ID,
		&record.Account,
		&record.Kind,
		&record.Source,
		&atRaw,
		&record.Decision,
		&record.ShiftID,
		&effectiveRaw,
		&record.Warning,
		&record.Outcome,
		&record.Error,
		&createdRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActionRecord{}, err
		}
		return ActionRecord{}, fmt.Errorf("scan action: %w", err)
	}

	var err error
	record.At, err = time.Parse(time.RFC3339, atRaw)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("parse action time %q: %w", atRaw, err)
	}
	record.At = record.At.Local()
	if effectiveRaw != "" {
		effective, err := time.Parse(time.RFC3339, effectiveRaw)
		if err != nil {
			return ActionRecord{}, fmt.Errorf("parse effective time %q: %w", effectiveRaw, err)
		}
		effective = effective.Local()
		record.EffectiveAt = &effective
	}
	// CURRENT_TIMESTAMP is UTC "YYYY-MM-DD HH:MM:SS".
	if created, err := time.ParseInLocation("2006-01-02 15:04:05", createdRaw, time.UTC); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}

func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
