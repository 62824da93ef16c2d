// Package storage persists plans, goals, transactions, and score snapshots
// in SQLite. Rows cross this boundary as loose records; the services layer
// owns normalizing them into engine types.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gyebu/internal/log"
)

const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// PlanRecord mirrors a plans row. String fields stay loose here; the
// services layer parses them into engine types.
type PlanRecord struct {
	ID              int64
	Name            string
	PeriodType      string
	Currency        string
	TimeZone        string
	AnchorUTC       *time.Time
	TotalLimitMinor int64
	CreatedAt       time.Time
}

// BudgetGoalRecord mirrors a budget_goals row.
type BudgetGoalRecord struct {
	ID         int64
	PlanID     int64
	Category   string
	LimitMinor int64
}

// SavingsGoalRecord mirrors a savings_goals row.
type SavingsGoalRecord struct {
	ID          string
	PlanID      int64
	Name        string
	TargetMinor int64
}

// TransactionRecord mirrors a transactions row.
type TransactionRecord struct {
	ID            int64
	PlanID        int64
	Type          string
	AmountMinor   int64
	Currency      string
	FxUsdKrw      sql.NullFloat64
	Category      string
	SavingsGoalID sql.NullString
	OccurredAt    time.Time
}

// ScoreSnapshot is one persisted scoring result for a plan.
type ScoreSnapshot struct {
	ID          int64
	PlanID      int64
	Percent     int
	SpentMinor  int64
	SavedMinor  int64
	WindowStart time.Time
	WindowEnd   time.Time
	ComputedAt  time.Time
}

// CreatePlanParams carries the writable fields of a plan.
type CreatePlanParams struct {
	Name            string
	PeriodType      string
	Currency        string
	TimeZone        string
	AnchorUTC       *time.Time
	TotalLimitMinor int64
}

func (r *SQLiteRepository) CreatePlan(ctx context.Context, p CreatePlanParams) (int64, error) {
	var anchor any
	if p.AnchorUTC != nil && !p.AnchorUTC.IsZero() {
		anchor = p.AnchorUTC.UTC().Format(timeLayout)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO plans (name, period_type, currency, timezone, anchor_utc, total_limit_minor)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.PeriodType, p.Currency, p.TimeZone, anchor, p.TotalLimitMinor)
	if err != nil {
		return 0, fmt.Errorf("create plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("plan insert id: %w", err)
	}

	slog.InfoContext(ctx, "Plan created",
		log.FieldPlanID, id,
		log.FieldPeriodType, p.PeriodType,
		log.FieldCurrency, p.Currency)
	return id, nil
}

func (r *SQLiteRepository) GetPlan(ctx context.Context, id int64) (PlanRecord, error) {
	var (
		rec       PlanRecord
		anchor    sql.NullString
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, period_type, currency, timezone, anchor_utc, total_limit_minor, created_at
		 FROM plans WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.PeriodType, &rec.Currency, &rec.TimeZone, &anchor, &rec.TotalLimitMinor, &createdAt)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("get plan %d: %w", id, err)
	}

	if anchor.Valid {
		t, err := time.Parse(timeLayout, anchor.String)
		if err != nil {
			return PlanRecord{}, fmt.Errorf("parse plan %d anchor: %w", id, err)
		}
		rec.AnchorUTC = &t
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func (r *SQLiteRepository) ListPlanIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list plan ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertBudgetGoal creates or replaces the one budget goal a category has
// per plan.
func (r *SQLiteRepository) UpsertBudgetGoal(ctx context.Context, planID int64, category string, limitMinor int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_goals (plan_id, category, limit_minor) VALUES (?, ?, ?)
		 ON CONFLICT (plan_id, category) DO UPDATE SET limit_minor = excluded.limit_minor`,
		planID, category, limitMinor)
	if err != nil {
		return fmt.Errorf("upsert budget goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudgetGoals(ctx context.Context, planID int64) ([]BudgetGoalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, category, limit_minor FROM budget_goals WHERE plan_id = ? ORDER BY category`,
		planID)
	if err != nil {
		return nil, fmt.Errorf("get budget goals: %w", err)
	}
	defer rows.Close()

	var goals []BudgetGoalRecord
	for rows.Next() {
		var g BudgetGoalRecord
		if err := rows.Scan(&g.ID, &g.PlanID, &g.Category, &g.LimitMinor); err != nil {
			return nil, fmt.Errorf("scan budget goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r *SQLiteRepository) UpsertSavingsGoal(ctx context.Context, planID int64, id, name string, targetMinor int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_goals (id, plan_id, name, target_minor) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, target_minor = excluded.target_minor`,
		id, planID, name, targetMinor)
	if err != nil {
		return fmt.Errorf("upsert savings goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSavingsGoals(ctx context.Context, planID int64) ([]SavingsGoalRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, name, target_minor FROM savings_goals WHERE plan_id = ? ORDER BY name`,
		planID)
	if err != nil {
		return nil, fmt.Errorf("get savings goals: %w", err)
	}
	defer rows.Close()

	var goals []SavingsGoalRecord
	for rows.Next() {
		var g SavingsGoalRecord
		if err := rows.Scan(&g.ID, &g.PlanID, &g.Name, &g.TargetMinor); err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// CreateTransactionParams carries the writable fields of a transaction.
type CreateTransactionParams struct {
	PlanID        int64
	Type          string
	AmountMinor   int64
	Currency      string
	FxUsdKrw      float64 // 0 means no snapshot
	Category      string
	SavingsGoalID string
	OccurredAt    time.Time
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, p CreateTransactionParams) (int64, error) {
	var fx any
	if p.FxUsdKrw > 0 {
		fx = p.FxUsdKrw
	}
	var goalID any
	if p.SavingsGoalID != "" {
		goalID = p.SavingsGoalID
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (plan_id, tx_type, amount_minor, currency, fx_usd_krw, category, savings_goal_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PlanID, p.Type, p.AmountMinor, p.Currency, fx, p.Category, goalID, p.OccurredAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction insert id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		log.FieldTxID, id,
		log.FieldPlanID, p.PlanID,
		log.FieldTxType, p.Type,
		log.FieldAmountMinor, p.AmountMinor,
		log.FieldCurrency, p.Currency,
		log.FieldCategory, p.Category)
	return id, nil
}

// ListTransactions returns non-deleted transactions for a plan whose
// occurred-at falls in [from, to). This is a performance prefilter; the
// engine still applies the authoritative local-calendar window filter.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, planID int64, from, to time.Time) ([]TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, tx_type, amount_minor, currency, fx_usd_krw, category, savings_goal_id, occurred_at
		 FROM transactions
		 WHERE plan_id = ? AND deleted_at IS NULL AND occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at`,
		planID, from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		var (
			rec        TransactionRecord
			occurredAt string
		)
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.Type, &rec.AmountMinor, &rec.Currency,
			&rec.FxUsdKrw, &rec.Category, &rec.SavingsGoalID, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse transaction %d occurred-at: %w", rec.ID, err)
		}
		rec.OccurredAt = t
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SoftDeleteTransaction marks a transaction deleted without losing the row.
func (r *SQLiteRepository) SoftDeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("soft delete transaction %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	slog.InfoContext(ctx, "Transaction soft deleted", log.FieldTxID, id)
	return nil
}

func (r *SQLiteRepository) InsertScoreSnapshot(ctx context.Context, s ScoreSnapshot) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO score_snapshots (plan_id, percent, spent_minor, saved_minor, window_start, window_end, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.PlanID, s.Percent, s.SpentMinor, s.SavedMinor,
		s.WindowStart.UTC().Format(timeLayout), s.WindowEnd.UTC().Format(timeLayout),
		s.ComputedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert score snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListScoreSnapshots(ctx context.Context, planID int64, limit int) ([]ScoreSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, percent, spent_minor, saved_minor, window_start, window_end, computed_at
		 FROM score_snapshots WHERE plan_id = ? ORDER BY computed_at DESC LIMIT ?`,
		planID, limit)
	if err != nil {
		return nil, fmt.Errorf("list score snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []ScoreSnapshot
	for rows.Next() {
		var (
			s                    ScoreSnapshot
			start, end, computed string
		)
		if err := rows.Scan(&s.ID, &s.PlanID, &s.Percent, &s.SpentMinor, &s.SavedMinor, &start, &end, &computed); err != nil {
			return nil, fmt.Errorf("scan score snapshot: %w", err)
		}
		if s.WindowStart, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("parse snapshot %d window start: %w", s.ID, err)
		}
		if s.WindowEnd, err = time.Parse(timeLayout, end); err != nil {
			return nil, fmt.Errorf("parse snapshot %d window end: %w", s.ID, err)
		}
		if s.ComputedAt, err = time.Parse(timeLayout, computed); err != nil {
			return nil, fmt.Errorf("parse snapshot %d computed-at: %w", s.ID, err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
