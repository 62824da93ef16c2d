package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"gyebu/internal/storage"
)

type fakePlanStore struct {
	plan    storage.PlanRecord
	budgets []storage.BudgetGoalRecord
	savings []storage.SavingsGoalRecord
	err     error
}

func (f *fakePlanStore) GetPlan(_ context.Context, id int64) (storage.PlanRecord, error) {
	if f.err != nil {
		return storage.PlanRecord{}, f.err
	}
	return f.plan, nil
}

func (f *fakePlanStore) GetBudgetGoals(_ context.Context, _ int64) ([]storage.BudgetGoalRecord, error) {
	return f.budgets, nil
}

func (f *fakePlanStore) GetSavingsGoals(_ context.Context, _ int64) ([]storage.SavingsGoalRecord, error) {
	return f.savings, nil
}

type fakeTxStore struct {
	created []storage.CreateTransactionParams
	records []storage.TransactionRecord
	deleted []int64
}

func (f *fakeTxStore) CreateTransaction(_ context.Context, p storage.CreateTransactionParams) (int64, error) {
	f.created = append(f.created, p)
	return int64(len(f.created)), nil
}

func (f *fakeTxStore) ListTransactions(_ context.Context, _ int64, from, to time.Time) ([]storage.TransactionRecord, error) {
	var out []storage.TransactionRecord
	for _, rec := range f.records {
		if !rec.OccurredAt.Before(from) && rec.OccurredAt.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeTxStore) SoftDeleteTransaction(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePublisher struct {
	planIDs []int64
	err     error
}

func (f *fakePublisher) PublishScoreRefresh(_ context.Context, planID int64) error {
	if f.err != nil {
		return f.err
	}
	f.planIDs = append(f.planIDs, planID)
	return nil
}

func monthlyPlanRecord() storage.PlanRecord {
	return storage.PlanRecord{
		ID:         1,
		Name:       "household",
		PeriodType: "monthly",
		Currency:   "USD",
		TimeZone:   "UTC",
	}
}

func TestRecordTransaction(t *testing.T) {
	txStore := &fakeTxStore{}
	pub := &fakePublisher{}
	svc := NewProgressService(&fakePlanStore{plan: monthlyPlanRecord()}, txStore, pub, "UTC")

	occurred := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	id, err := svc.RecordTransaction(context.Background(), 1, TransactionInput{
		Type:        "EXPENSE",
		AmountMinor: -5000, // sign artifacts are normalized away
		Currency:    "usd",
		Category:    "groceries",
		OccurredAt:  occurred,
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}

	stored := txStore.created[0]
	if stored.Type != "expense" || stored.Currency != "USD" || stored.AmountMinor != 5000 {
		t.Fatalf("stored params not normalized: %+v", stored)
	}
	if len(pub.planIDs) != 1 || pub.planIDs[0] != 1 {
		t.Fatalf("refresh not published: %v", pub.planIDs)
	}
}

func TestRecordTransaction_RejectsBadInput(t *testing.T) {
	svc := NewProgressService(&fakePlanStore{}, &fakeTxStore{}, nil, "UTC")
	occurred := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input TransactionInput
	}{
		{"unknown type", TransactionInput{Type: "transfer", AmountMinor: 1, Category: "x", OccurredAt: occurred}},
		{"empty category", TransactionInput{Type: "expense", AmountMinor: 1, Category: " ", OccurredAt: occurred}},
		{"zero occurred-at", TransactionInput{Type: "expense", AmountMinor: 1, Category: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordTransaction(context.Background(), 1, tc.input); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRecordTransaction_PublishFailureIsNotFatal(t *testing.T) {
	txStore := &fakeTxStore{}
	svc := NewProgressService(&fakePlanStore{}, txStore, &fakePublisher{err: errors.New("broker down")}, "UTC")

	_, err := svc.RecordTransaction(context.Background(), 1, TransactionInput{
		Type:        "saving",
		AmountMinor: 100,
		Category:    "transfer",
		OccurredAt:  time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("publish failure must not fail the request: %v", err)
	}
	if len(txStore.created) != 1 {
		t.Fatal("transaction was not stored")
	}
}

func TestProgress_EndToEnd(t *testing.T) {
	now := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	plans := &fakePlanStore{
		plan: monthlyPlanRecord(),
		budgets: []storage.BudgetGoalRecord{
			{PlanID: 1, Category: "groceries", LimitMinor: 10000},
		},
	}
	txs := &fakeTxStore{
		records: []storage.TransactionRecord{
			{
				ID: 1, PlanID: 1, Type: "expense", AmountMinor: 5000,
				Currency: "USD", Category: "groceries",
				OccurredAt: time.Date(2025, 4, 5, 8, 0, 0, 0, time.UTC),
			},
			{
				// Outside the window, filtered by the range prefilter.
				ID: 2, PlanID: 1, Type: "expense", AmountMinor: 9999,
				Currency: "USD", Category: "groceries",
				OccurredAt: time.Date(2025, 3, 30, 8, 0, 0, 0, time.UTC),
			},
			{
				// Undecodable row is skipped, not fatal.
				ID: 3, PlanID: 1, Type: "mystery", AmountMinor: 1,
				Currency: "USD", Category: "groceries",
				OccurredAt: time.Date(2025, 4, 6, 8, 0, 0, 0, time.UTC),
			},
		},
	}

	svc := NewProgressService(plans, txs, nil, "UTC")
	p, err := svc.Progress(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 5000 {
		t.Fatalf("spent = %d, want 5000", p.SpentMinor)
	}
	if p.Percent != 50 {
		t.Fatalf("percent = %d, want 50", p.Percent)
	}
}

func TestProgress_CrossCurrencyRecords(t *testing.T) {
	now := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	plans := &fakePlanStore{
		plan: monthlyPlanRecord(),
		budgets: []storage.BudgetGoalRecord{
			{PlanID: 1, Category: "dining", LimitMinor: 10000},
		},
	}
	occurred := time.Date(2025, 4, 5, 8, 0, 0, 0, time.UTC)
	txs := &fakeTxStore{
		records: []storage.TransactionRecord{
			{
				ID: 1, PlanID: 1, Type: "expense", AmountMinor: 65000,
				Currency: "KRW", Category: "dining", OccurredAt: occurred,
				FxUsdKrw: sql.NullFloat64{Float64: 1300, Valid: true},
			},
			{
				// No snapshot: contributes zero to totals.
				ID: 2, PlanID: 1, Type: "expense", AmountMinor: 65000,
				Currency: "KRW", Category: "dining", OccurredAt: occurred,
			},
		},
	}

	svc := NewProgressService(plans, txs, nil, "UTC")
	p, err := svc.Progress(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 5000 {
		t.Fatalf("spent = %d, want 5000", p.SpentMinor)
	}
}

func TestProgress_DefaultTimeZoneFallback(t *testing.T) {
	rec := monthlyPlanRecord()
	rec.TimeZone = ""
	plans := &fakePlanStore{plan: rec}

	svc := NewProgressService(plans, &fakeTxStore{}, nil, "Asia/Seoul")
	seoul, _ := time.LoadLocation("Asia/Seoul")
	// 2025-05-01 07:00 KST is still 2025-04-30 in UTC; the Seoul fallback
	// must place us in the May window.
	now := time.Date(2025, 5, 1, 7, 0, 0, 0, seoul)

	p, err := svc.Progress(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 5, 1, 0, 0, 0, 0, seoul)
	if !p.Window.StartLocal.Equal(want) {
		t.Fatalf("window start %v, want %v", p.Window.StartLocal, want)
	}
}

func TestProgress_BadPeriodType(t *testing.T) {
	rec := monthlyPlanRecord()
	rec.PeriodType = "quarterly"
	svc := NewProgressService(&fakePlanStore{plan: rec}, &fakeTxStore{}, nil, "UTC")

	if _, err := svc.Progress(context.Background(), 1, time.Now()); err == nil {
		t.Fatal("expected error for unknown period type")
	}
}

func TestProgress_BiweeklyAnchorFlowsThrough(t *testing.T) {
	anchor := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	rec := monthlyPlanRecord()
	rec.PeriodType = "biweekly"
	rec.AnchorUTC = &anchor

	svc := NewProgressService(&fakePlanStore{plan: rec}, &fakeTxStore{}, nil, "UTC")
	now := time.Date(2025, 1, 19, 12, 0, 0, 0, time.UTC)

	p, err := svc.Progress(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Window.StartLocal.Equal(anchor) {
		t.Fatalf("window start %v, want anchor %v", p.Window.StartLocal, anchor)
	}
}

func TestDeleteTransaction(t *testing.T) {
	txStore := &fakeTxStore{}
	pub := &fakePublisher{}
	svc := NewProgressService(&fakePlanStore{}, txStore, pub, "UTC")

	if err := svc.DeleteTransaction(context.Background(), 1, 7); err != nil {
		t.Fatal(err)
	}
	if len(txStore.deleted) != 1 || txStore.deleted[0] != 7 {
		t.Fatalf("deleted = %v", txStore.deleted)
	}
	if len(pub.planIDs) != 1 {
		t.Fatal("refresh not published after delete")
	}
}
