package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	applogger "RateCast/pkg/logger"

	"github.com/google/uuid"
)

const martChunkSize = 1000

// CHMart keeps labeled feature rows in one wide table partitioned by entity.
// A rebuild writes a staging table and swaps the entity partition in one ALTER.
type CHMart struct {
	db      *sql.DB
	table   string
	columns []string
	l       *applogger.Logger
}

// NewCHMart stores labeled rows in table, one column per schema column.
func NewCHMart(db *sql.DB, table string, columns []string) *CHMart {
	return &CHMart{db: db, table: table, columns: columns}
}

// SetLogger injects a structured logger.
func (m *CHMart) SetLogger(l *applogger.Logger) { m.l = l }

// MartDDL creates the mart table for the given feature columns.
func MartDDL(table string, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (entity_id String, date Date, target Nullable(Float64), prediction Nullable(Float64)", table)
	for _, c := range columns {
		fmt.Fprintf(&b, ", `%s` Nullable(Float64)", c)
	}
	b.WriteString(") ENGINE = MergeTree PARTITION BY entity_id ORDER BY (entity_id, date)")
	return b.String()
}

func (m *CHMart) columnList() string {
	cols := make([]string, 0, len(m.columns)+4)
	cols = append(cols, "entity_id", "date", "target", "prediction")
	for _, c := range m.columns {
		cols = append(cols, "`"+c+"`")
	}
	return strings.Join(cols, ", ")
}

// ReplaceEntity swaps the entity's rows for rows atomically.
func (m *CHMart) ReplaceEntity(ctx context.Context, entityID string, rows []models.LabeledRow) error {
	start := time.Now()
	partition := quote(entityID)

	if len(rows) == 0 {
		q := fmt.Sprintf("ALTER TABLE %s DROP PARTITION %s", m.table, partition)
		if _, err := m.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mart drop partition: %w", err)
		}
		return nil
	}

	staging := fmt.Sprintf("%s_staging_%s", m.table, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", staging, m.table)); err != nil {
		return fmt.Errorf("mart create staging: %w", err)
	}
	defer func() {
		// cleanup must not inherit a cancelled ctx
		dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.db.ExecContext(dctx, "DROP TABLE IF EXISTS "+staging); err != nil && m.l != nil {
			m.l.Warn("mart drop staging failed", applogger.String("table", staging), applogger.Error(err))
		}
	}()

	if err := m.insert(ctx, staging, entityID, rows); err != nil {
		return err
	}

	q := fmt.Sprintf("ALTER TABLE %s REPLACE PARTITION %s FROM %s", m.table, partition, staging)
	if _, err := m.db.ExecContext(ctx, q); err != nil {
		if m.l != nil {
			m.l.Error("mart partition swap failed", applogger.String("entity", entityID), applogger.Error(err))
		}
		return fmt.Errorf("mart replace partition: %w", err)
	}

	if m.l != nil {
		m.l.Debug("mart rebuilt",
			applogger.String("entity", entityID),
			applogger.Int("rows", len(rows)),
			applogger.Duration("took_ms", time.Since(start)),
		)
	}
	return nil
}

func (m *CHMart) insert(ctx context.Context, table, entityID string, rows []models.LabeledRow) error {
	width := len(m.columns) + 4
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"

	for from := 0; from < len(rows); from += martChunkSize {
		to := min(from+martChunkSize, len(rows))
		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*width)
		for _, r := range rows[from:to] {
			if len(r.Values) != len(m.columns) {
				return &models.SchemaMismatchError{EntityID: entityID, Stage: models.StageCommit, Want: len(m.columns), Got: len(r.Values)}
			}
			values = append(values, placeholder)
			args = append(args, entityID, r.Date, nullable(r.Target), nullable(r.Prediction))
			for _, v := range r.Values {
				args = append(args, nanToNull(v))
			}
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, m.columnList(), strings.Join(values, ","))
		if _, err := m.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("mart insert: %w", err)
		}
	}
	return nil
}

// Rows returns the entity's rows in date order. limit <= 0 returns all of them.
func (m *CHMart) Rows(ctx context.Context, entityID string, limit int) ([]models.LabeledRow, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE entity_id = ? ORDER BY date DESC", m.columnList(), m.table)
	args := []interface{}{entityID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rs, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mart rows: %w", err)
	}
	defer rs.Close()

	var out []models.LabeledRow
	for rs.Next() {
		var (
			r          models.LabeledRow
			target     sql.NullFloat64
			prediction sql.NullFloat64
			vals       = make([]sql.NullFloat64, len(m.columns))
		)
		dest := []interface{}{&r.EntityID, &r.Date, &target, &prediction}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan mart row: %w", err)
		}
		r.Columns = m.columns
		r.Values = make([]float64, len(vals))
		for i, v := range vals {
			r.Values[i] = math.NaN()
			if v.Valid {
				r.Values[i] = v.Float64
			}
		}
		if target.Valid {
			r.Target = &target.Float64
		}
		if prediction.Valid {
			r.Prediction = &prediction.Float64
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("mart rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdatePrediction writes the forecast onto the (entity, date) row.
func (m *CHMart) UpdatePrediction(ctx context.Context, entityID string, date time.Time, value float64) error {
	q := fmt.Sprintf("ALTER TABLE %s UPDATE prediction = ? WHERE entity_id = ? AND date = ?", m.table)
	if _, err := m.db.ExecContext(ctx, q, value, entityID, models.Day(date)); err != nil {
		return fmt.Errorf("update prediction: %w", err)
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func nullable(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return nanToNull(*p)
}

func nanToNull(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

var (
	_ domrepo.MartStore      = (*CHMart)(nil)
	_ domrepo.PredictionSink = (*CHMart)(nil)
)
