package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

type dialect struct {
	driver       string
	primaryKey   string
	floatType    string
	columnsQuery string // lists column names of the table passed as the single argument
}

var (
	sqliteDialect = dialect{
		driver:       "sqlite",
		primaryKey:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		floatType:    "REAL",
		columnsQuery: `SELECT name FROM pragma_table_info(?)`,
	}
	postgresDialect = dialect{
		driver:     "postgres",
		primaryKey: "BIGSERIAL PRIMARY KEY",
		floatType:  "DOUBLE PRECISION",
		columnsQuery: `SELECT column_name FROM information_schema.columns
		               WHERE table_schema = current_schema() AND table_name = ?`,
	}
)

type column struct {
	table      string
	name       string
	definition string
}

// baseTables is the layout every database starts from. Fields added later go
// through additiveColumns so that existing databases keep their in-flight
// reminder state. Databases still in the older ISO-text layout are converted
// first, see upgradeLegacyLayout.
func (d dialect) baseTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS lessons (
			id ` + d.primaryKey + `,
			chat_id BIGINT NOT NULL,
			school TEXT NOT NULL,
			student_name TEXT NOT NULL,
			lesson_start BIGINT NOT NULL,
			start_reminder_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lesson_reports (
			id ` + d.primaryKey + `,
			chat_id BIGINT NOT NULL,
			full_name TEXT NOT NULL,
			school TEXT NOT NULL,
			payment TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id BIGINT PRIMARY KEY,
			teacher_name TEXT NOT NULL DEFAULT '',
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_report_notifications (
			id ` + d.primaryKey + `,
			chat_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			is_open INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL
		)`,
	}
}

func (d dialect) additiveColumns() []column {
	return []column{
		{table: "lessons", name: "lesson_end", definition: "BIGINT"},
		{table: "lessons", name: "end_reminder_at", definition: "BIGINT"},
		{table: "lessons", name: "status", definition: "TEXT NOT NULL DEFAULT 'booked'"},
		{table: "lessons", name: "start_reminded_at", definition: "BIGINT"},
		{table: "lessons", name: "end_reminded_at", definition: "BIGINT"},
		{table: "lessons", name: "report_prompted_at", definition: "BIGINT"},
		{table: "lessons", name: "closed_at", definition: "BIGINT"},
		{table: "lesson_reports", name: "payment_amount", definition: d.floatType + " NOT NULL DEFAULT 0"},
		{table: "pending_report_notifications", name: "lesson_id", definition: "BIGINT"},
	}
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_lessons_status ON lessons (status)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_start ON lessons (lesson_start)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_open ON pending_report_notifications (is_open, lesson_id)`,
}

// schemaExecer is satisfied by both *sqlx.DB and *sqlx.Tx.
type schemaExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

func (s *Store) migrate(ctx context.Context) error {
	defer s.lock()()

	legacy, err := s.hasLegacyLayout(ctx)
	if err != nil {
		return err
	}
	if legacy {
		if err := s.upgradeLegacyLayout(ctx); err != nil {
			return fmt.Errorf("error upgrading legacy layout: %w", err)
		}
	} else if err := s.createSchema(ctx, s.db); err != nil {
		return err
	}

	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating index: %w", err)
		}
	}
	return nil
}

func (s *Store) columnsOf(ctx context.Context, x schemaExecer, table string) (map[string]bool, error) {
	var names []string
	if err := x.SelectContext(ctx, &names, x.Rebind(s.dialect.columnsQuery), table); err != nil {
		return nil, fmt.Errorf("error reading columns of %s: %w", table, err)
	}
	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[n] = true
	}
	return cols, nil
}

// createSchema creates missing tables and adds missing columns.
func (s *Store) createSchema(ctx context.Context, x schemaExecer) error {
	for _, stmt := range s.dialect.baseTables() {
		if _, err := x.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating table: %w", err)
		}
	}

	existing := map[string]map[string]bool{}
	for _, col := range s.dialect.additiveColumns() {
		cols, ok := existing[col.table]
		if !ok {
			var err error
			if cols, err = s.columnsOf(ctx, x, col.table); err != nil {
				return err
			}
			existing[col.table] = cols
		}
		if cols[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.definition)
		if _, err := x.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error adding column %s.%s: %w", col.table, col.name, err)
		}
		cols[col.name] = true
		s.logger.WithFields(logrus.Fields{"table": col.table, "column": col.name}).Info("Column added")
	}
	return nil
}
