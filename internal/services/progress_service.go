// Package services orchestrates the progress engine over storage and AMQP.
// It owns the single normalization boundary where loose persistence-layer
// records become the engine's closed types.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gyebu/internal/core"
	"gyebu/internal/log"
	"gyebu/internal/storage"
)

// PlanStore reads plan and goal rows.
type PlanStore interface {
	GetPlan(ctx context.Context, id int64) (storage.PlanRecord, error)
	GetBudgetGoals(ctx context.Context, planID int64) ([]storage.BudgetGoalRecord, error)
	GetSavingsGoals(ctx context.Context, planID int64) ([]storage.SavingsGoalRecord, error)
}

// TransactionStore reads and writes transaction rows.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, p storage.CreateTransactionParams) (int64, error)
	ListTransactions(ctx context.Context, planID int64, from, to time.Time) ([]storage.TransactionRecord, error)
	SoftDeleteTransaction(ctx context.Context, id int64) error
}

// RefreshPublisher notifies the worker that a plan's score went stale.
type RefreshPublisher interface {
	PublishScoreRefresh(ctx context.Context, planID int64) error
}

// ProgressService computes plan progress and records transactions.
type ProgressService struct {
	plans     PlanStore
	txs       TransactionStore
	publisher RefreshPublisher
	// defaultTimeZone backs plans saved without a timezone of their own.
	defaultTimeZone string
}

func NewProgressService(plans PlanStore, txs TransactionStore, publisher RefreshPublisher, defaultTimeZone string) *ProgressService {
	return &ProgressService{
		plans:           plans,
		txs:             txs,
		publisher:       publisher,
		defaultTimeZone: defaultTimeZone,
	}
}

// TransactionInput is the loose external shape of a new transaction as the
// CRUD layer supplies it.
type TransactionInput struct {
	Type          string
	AmountMinor   int64
	Currency      string
	FxUsdKrw      float64
	Category      string
	SavingsGoalID string
	OccurredAt    time.Time
}

// RecordTransaction validates and stores a transaction, then publishes a
// score-refresh message. Publish failures are logged, not returned: the
// transaction is durable locally and the periodic sweep will catch up.
func (s *ProgressService) RecordTransaction(ctx context.Context, planID int64, input TransactionInput) (int64, error) {
	tx, err := decodeTransactionInput(input)
	if err != nil {
		return 0, err
	}

	id, err := s.txs.CreateTransaction(ctx, storage.CreateTransactionParams{
		PlanID:        planID,
		Type:          string(tx.Type),
		AmountMinor:   tx.AmountMinor,
		Currency:      string(tx.Currency),
		FxUsdKrw:      tx.FxUsdKrw,
		Category:      tx.Category,
		SavingsGoalID: tx.SavingsGoalID,
		OccurredAt:    tx.OccurredAt,
	})
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}

	s.publishRefresh(ctx, planID)
	return id, nil
}

// DeleteTransaction soft deletes a transaction and refreshes the score.
func (s *ProgressService) DeleteTransaction(ctx context.Context, planID, txID int64) error {
	if err := s.txs.SoftDeleteTransaction(ctx, txID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publishRefresh(ctx, planID)
	return nil
}

func (s *ProgressService) publishRefresh(ctx context.Context, planID int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishScoreRefresh(ctx, planID); err != nil {
		slog.WarnContext(ctx, "Failed to publish score refresh",
			log.FieldPlanID, planID, log.FieldError, err)
	}
}

// Progress recomputes a plan's progress at the given instant. now is
// threaded through explicitly so the whole path stays deterministic under
// test.
func (s *ProgressService) Progress(ctx context.Context, planID int64, now time.Time) (core.Progress, error) {
	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return core.Progress{}, err
	}

	loc, err := plan.Location()
	if err != nil {
		return core.Progress{}, fmt.Errorf("plan %d: %w", planID, err)
	}
	window, err := core.ComputeWindow(plan.PeriodType, now, loc, plan.AnchorUTC)
	if err != nil {
		return core.Progress{}, fmt.Errorf("plan %d window: %w", planID, err)
	}

	// Range prefilter only; the engine applies the authoritative filter.
	records, err := s.txs.ListTransactions(ctx, planID, window.StartUTC, window.EndUTC)
	if err != nil {
		return core.Progress{}, fmt.Errorf("plan %d transactions: %w", planID, err)
	}

	transactions := make([]core.Transaction, 0, len(records))
	for _, rec := range records {
		tx, err := decodeTransactionRecord(rec)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable transaction",
				log.FieldTxID, rec.ID, log.FieldPlanID, planID, log.FieldError, err)
			continue
		}
		transactions = append(transactions, tx)
	}

	progress, err := core.Score(plan, transactions, now)
	if err != nil {
		return core.Progress{}, fmt.Errorf("score plan %d: %w", planID, err)
	}

	slog.InfoContext(ctx, "Plan scored",
		log.FieldPlanID, planID,
		log.FieldPercent, progress.Percent,
		log.FieldWindowStart, progress.Window.StartUTC,
		log.FieldWindowEnd, progress.Window.EndUTC)
	return progress, nil
}

// loadPlan assembles a core.Plan from its stored rows.
func (s *ProgressService) loadPlan(ctx context.Context, planID int64) (core.Plan, error) {
	rec, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return core.Plan{}, fmt.Errorf("load plan %d: %w", planID, err)
	}
	budgetRecs, err := s.plans.GetBudgetGoals(ctx, planID)
	if err != nil {
		return core.Plan{}, fmt.Errorf("load plan %d budget goals: %w", planID, err)
	}
	savingsRecs, err := s.plans.GetSavingsGoals(ctx, planID)
	if err != nil {
		return core.Plan{}, fmt.Errorf("load plan %d savings goals: %w", planID, err)
	}
	return s.decodePlan(rec, budgetRecs, savingsRecs)
}

func (s *ProgressService) decodePlan(rec storage.PlanRecord, budgetRecs []storage.BudgetGoalRecord, savingsRecs []storage.SavingsGoalRecord) (core.Plan, error) {
	periodType, err := core.ParsePeriodType(rec.PeriodType)
	if err != nil {
		return core.Plan{}, fmt.Errorf("plan %d: %w", rec.ID, err)
	}

	timeZone := rec.TimeZone
	if timeZone == "" {
		timeZone = s.defaultTimeZone
	}

	plan := core.Plan{
		PeriodType:      periodType,
		Currency:        core.ParseCurrency(rec.Currency),
		TimeZone:        timeZone,
		AnchorUTC:       rec.AnchorUTC,
		TotalLimitMinor: rec.TotalLimitMinor,
	}
	for _, g := range budgetRecs {
		plan.BudgetGoals = append(plan.BudgetGoals, core.BudgetGoal{
			Category:   g.Category,
			LimitMinor: g.LimitMinor,
		})
	}
	for _, g := range savingsRecs {
		plan.SavingsGoals = append(plan.SavingsGoals, core.SavingsGoal{
			ID:          g.ID,
			Name:        g.Name,
			TargetMinor: g.TargetMinor,
		})
	}
	return plan, nil
}

// decodeTransactionInput is the validation boundary for externally supplied
// transaction payloads.
func decodeTransactionInput(input TransactionInput) (core.Transaction, error) {
	txType, err := core.ParseTxType(input.Type)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction type %q: %w", input.Type, err)
	}

	amount := input.AmountMinor
	if amount < 0 {
		amount = -amount
	}

	fx := input.FxUsdKrw
	if !(fx > 0) || math.IsInf(fx, 0) {
		fx = 0
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		return core.Transaction{}, core.ErrZeroOccurredAt
	}

	tx := core.Transaction{
		Type:          txType,
		AmountMinor:   amount,
		Currency:      core.ParseCurrency(input.Currency),
		FxUsdKrw:      fx,
		Category:      input.Category,
		SavingsGoalID: input.SavingsGoalID,
		OccurredAt:    occurredAt,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// decodeTransactionRecord normalizes a stored row into an engine
// transaction.
func decodeTransactionRecord(rec storage.TransactionRecord) (core.Transaction, error) {
	txType, err := core.ParseTxType(rec.Type)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d type %q: %w", rec.ID, rec.Type, err)
	}

	amount := rec.AmountMinor
	if amount < 0 {
		amount = -amount
	}

	var fx float64
	if rec.FxUsdKrw.Valid && rec.FxUsdKrw.Float64 > 0 {
		fx = rec.FxUsdKrw.Float64
	}

	return core.Transaction{
		Type:          txType,
		AmountMinor:   amount,
		Currency:      core.ParseCurrency(rec.Currency),
		FxUsdKrw:      fx,
		Category:      rec.Category,
		SavingsGoalID: rec.SavingsGoalID.String,
		OccurredAt:    rec.OccurredAt,
	}, nil
}
