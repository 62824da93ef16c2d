package core

import (
	"testing"
	"time"
)

func monthlyUSDPlan() Plan {
	return Plan{
		PeriodType: Monthly,
		Currency:   USD,
		TimeZone:   "UTC",
	}
}

func TestScore_SingleBudgetGoalHalfway(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.BudgetGoals = []BudgetGoal{{Category: "groceries", LimitMinor: 10000}}

	now := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 5000, Currency: USD, Category: "groceries", OccurredAt: now.AddDate(0, 0, -1)},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	// budget 0.5, savings neutral 0.5 -> round((0.5*0.7 + 0.5*0.3)*100) = 50
	if p.Percent != 50 {
		t.Fatalf("percent = %d, want 50", p.Percent)
	}
	if p.SpentMinor != 5000 {
		t.Fatalf("spent = %d, want 5000", p.SpentMinor)
	}
	if got := p.PerCategory["groceries"]; got != 0.5 {
		t.Fatalf("groceries ratio = %v, want 0.5", got)
	}
}

func TestScore_OverspendFloorsAtZero(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.BudgetGoals = []BudgetGoal{{Category: "groceries", LimitMinor: 10000}}

	now := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 12000, Currency: USD, Category: "groceries", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	// budget 0, savings neutral 0.5 -> round((0*0.7 + 0.5*0.3)*100) = 15
	if p.Percent != 15 {
		t.Fatalf("percent = %d, want 15", p.Percent)
	}
	if got := p.PerCategory["groceries"]; got != 1.2 {
		t.Fatalf("groceries ratio = %v, want 1.2", got)
	}
}

func TestScore_EmptyPlanIsNeutral(t *testing.T) {
	p, err := Score(monthlyUSDPlan(), nil, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if p.Percent != 50 {
		t.Fatalf("percent = %d, want neutral 50", p.Percent)
	}
	if p.SpentMinor != 0 || p.SavedMinor != 0 {
		t.Fatalf("totals = %d/%d, want 0/0", p.SpentMinor, p.SavedMinor)
	}
	if p.PerCategory == nil || p.PerGoal == nil {
		t.Fatal("maps must be non-nil even for empty plans")
	}
}

func TestScore_MissingFXContributesZero(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.BudgetGoals = []BudgetGoal{{Category: "dining", LimitMinor: 10000}}

	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		// KRW expense without an FX snapshot: counted as zero, not guessed.
		{Type: TxExpense, AmountMinor: 65000, Currency: KRW, Category: "dining", OccurredAt: now},
		// Same record with a snapshot converts normally: 65000/1300 = $50.
		{Type: TxExpense, AmountMinor: 65000, Currency: KRW, FxUsdKrw: 1300, Category: "dining", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 5000 {
		t.Fatalf("spent = %d, want 5000 (only the converted record)", p.SpentMinor)
	}
	if p.Percent != 50 {
		t.Fatalf("percent = %d, want 50", p.Percent)
	}
}

func TestScore_SavingsGoals(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.SavingsGoals = []SavingsGoal{
		{ID: "g1", Name: "emergency fund", TargetMinor: 100000},
		{ID: "g2", Name: "vacation", TargetMinor: 50000},
	}

	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxSaving, AmountMinor: 60000, Currency: USD, Category: "transfer", SavingsGoalID: "g1", OccurredAt: now},
		// Over-contribution clamps at 1.
		{Type: TxSaving, AmountMinor: 80000, Currency: USD, Category: "transfer", SavingsGoalID: "g2", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.PerGoal["emergency fund"]; got != 0.6 {
		t.Fatalf("emergency fund ratio = %v, want 0.6", got)
	}
	if got := p.PerGoal["vacation"]; got != 1.0 {
		t.Fatalf("vacation ratio = %v, want 1.0 (clamped)", got)
	}
	// budget neutral 0.5, savings (0.6+1)/2 = 0.8 -> round((0.5*0.7+0.8*0.3)*100) = 59
	if p.Percent != 59 {
		t.Fatalf("percent = %d, want 59", p.Percent)
	}
	if p.SavedMinor != 140000 {
		t.Fatalf("saved = %d, want 140000", p.SavedMinor)
	}
}

func TestScore_LegacySavingCategory(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.SavingsGoals = []SavingsGoal{{ID: "g1", Name: "Savings", TargetMinor: 20000}}

	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		// Pre-migration record: typed as expense, category text says saving.
		{Type: TxExpense, AmountMinor: 10000, Currency: USD, Category: "Savings", OccurredAt: now},
		{Type: TxExpense, AmountMinor: 5000, Currency: USD, Category: "저축", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 0 {
		t.Fatalf("spent = %d, legacy saving records must not count as expenses", p.SpentMinor)
	}
	if p.SavedByGoal["Savings"] != 10000 {
		t.Fatalf("SavedByGoal = %v", p.SavedByGoal)
	}
	if p.SavedMinor != 15000 {
		t.Fatalf("saved = %d, want 15000", p.SavedMinor)
	}
}

func TestScore_FiltersOutsideWindow(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.BudgetGoals = []BudgetGoal{{Category: "groceries", LimitMinor: 10000}}

	now := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 2500, Currency: USD, Category: "groceries", OccurredAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{Type: TxExpense, AmountMinor: 9999, Currency: USD, Category: "groceries", OccurredAt: time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)},
		{Type: TxExpense, AmountMinor: 9999, Currency: USD, Category: "groceries", OccurredAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 2500 {
		t.Fatalf("spent = %d, want 2500 (first of month in, neighbors out)", p.SpentMinor)
	}
}

func TestScore_IncomeIgnored(t *testing.T) {
	plan := monthlyUSDPlan()
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxIncome, AmountMinor: 500000, Currency: USD, Category: "salary", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 0 || p.SavedMinor != 0 {
		t.Fatalf("income leaked into totals: spent=%d saved=%d", p.SpentMinor, p.SavedMinor)
	}
}

func TestScore_TotalLimitTerm(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.TotalLimitMinor = 20000
	plan.BudgetGoals = []BudgetGoal{{Category: "groceries", LimitMinor: 10000}}

	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 5000, Currency: USD, Category: "groceries", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	// goal term 0.5, total term 1 - 5000/20000 = 0.75 -> budget 0.625
	// composite round((0.625*0.7 + 0.5*0.3)*100) = round(58.75) = 59
	if p.Percent != 59 {
		t.Fatalf("percent = %d, want 59", p.Percent)
	}
}

func TestScore_BoundsUnderPathologicalInputs(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.BudgetGoals = []BudgetGoal{
		{Category: "a", LimitMinor: 1},
		{Category: "ignored", LimitMinor: 0}, // no goal, excluded
	}
	plan.SavingsGoals = []SavingsGoal{
		{ID: "g", Name: "g", TargetMinor: 1},
		{ID: "x", Name: "x", TargetMinor: -5}, // excluded
	}

	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 1 << 40, Currency: USD, Category: "a", OccurredAt: now},
		{Type: TxSaving, AmountMinor: 1 << 40, Currency: USD, SavingsGoalID: "g", Category: "transfer", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.Percent < 0 || p.Percent > 100 {
		t.Fatalf("percent %d outside [0, 100]", p.Percent)
	}
	// massive overspend -> budget 0; massive saving clamps -> savings 1
	if p.Percent != 30 {
		t.Fatalf("percent = %d, want 30", p.Percent)
	}
}

func TestScore_BiweeklyPlanNeedsAnchor(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.PeriodType = Biweekly
	if _, err := Score(plan, nil, time.Now()); err != ErrMissingAnchor {
		t.Fatalf("err = %v, want ErrMissingAnchor", err)
	}
}

func TestScore_InvalidTimeZone(t *testing.T) {
	plan := monthlyUSDPlan()
	plan.TimeZone = "Mars/Olympus_Mons"
	if _, err := Score(plan, nil, time.Now()); err != ErrInvalidTimeZone {
		t.Fatalf("err = %v, want ErrInvalidTimeZone", err)
	}
}

func TestScore_KRWHomeCurrency(t *testing.T) {
	plan := Plan{
		PeriodType:  Monthly,
		Currency:    KRW,
		TimeZone:    "Asia/Seoul",
		BudgetGoals: []BudgetGoal{{Category: "food", LimitMinor: 200000}},
	}

	seoul, _ := time.LoadLocation("Asia/Seoul")
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, seoul)
	txs := []Transaction{
		{Type: TxExpense, AmountMinor: 50000, Currency: KRW, Category: "food", OccurredAt: now},
		// $38.46 at 1300 -> 49998 won
		{Type: TxExpense, AmountMinor: 3846, Currency: USD, FxUsdKrw: 1300, Category: "food", OccurredAt: now},
	}

	p, err := Score(plan, txs, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.SpentMinor != 99998 {
		t.Fatalf("spent = %d, want 99998", p.SpentMinor)
	}
}
