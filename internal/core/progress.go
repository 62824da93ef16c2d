package core

import (
	"math"
	"time"
)

// Composite weighting: budget adherence drives the headline number harder
// than savings attainment. Fixed product decision.
const (
	budgetWeight  = 0.7
	savingsWeight = 0.3

	// neutralScore is used for a dimension with nothing configured; absence
	// of goals must not read as "failing".
	neutralScore = 0.5
)

// Progress is the scored state of a plan for its current period.
type Progress struct {
	// Percent is the composite health score, always an integer in [0, 100].
	Percent int
	// SpentMinor / SavedMinor are home-currency totals over the window.
	SpentMinor int64
	SavedMinor int64
	// SpentByCategory / SavedByGoal are home-currency minor-unit sums.
	SpentByCategory map[string]int64
	SavedByGoal     map[string]int64
	// PerCategory is spent/limit per budget goal (uncapped, so the UI can
	// show overspend); PerGoal is saved/target clamped to [0, 1].
	PerCategory map[string]float64
	PerGoal     map[string]float64
	Window      PeriodWindow
}

// Score recomputes a plan's progress from scratch.
//
// It is a pure, stateless pass over the supplied transactions: callers re-run
// it on every relevant change instead of patching a cached result. now must
// be supplied explicitly; the engine never consults the wall clock. The only
// error paths are a bad timezone and a biweekly plan without an anchor; an
// empty plan or an empty transaction list always yields a usable neutral
// result, never an error.
func Score(plan Plan, transactions []Transaction, now time.Time) (Progress, error) {
	loc, err := plan.Location()
	if err != nil {
		return Progress{}, err
	}
	window, err := ComputeWindow(plan.PeriodType, now, loc, plan.AnchorUTC)
	if err != nil {
		return Progress{}, err
	}

	home := plan.Currency
	p := Progress{
		SpentByCategory: make(map[string]int64),
		SavedByGoal:     make(map[string]int64),
		PerCategory:     make(map[string]float64),
		PerGoal:         make(map[string]float64),
		Window:          window,
	}

	savingsNames := make(map[string]string, len(plan.SavingsGoals))
	for _, g := range plan.SavingsGoals {
		savingsNames[g.ID] = g.Name
	}

	for _, tx := range transactions {
		if !window.Contains(tx.OccurredAt) {
			continue
		}
		switch {
		case tx.isSavingTx():
			amount := tx.HomeAmount(home)
			p.SavedMinor += amount
			p.SavedByGoal[savingsGoalKey(tx, savingsNames)] += amount
		case tx.Type == TxExpense:
			amount := tx.HomeAmount(home)
			p.SpentMinor += amount
			p.SpentByCategory[tx.Category] += amount
		}
	}

	budgetScore := scoreBudgets(plan, p)
	savingsScore := scoreSavings(plan, p)

	composite := clamp01(budgetScore*budgetWeight + savingsScore*savingsWeight)
	p.Percent = int(math.Round(composite * 100))
	return p, nil
}

// savingsGoalKey buckets a saving transaction under its linked goal's name
// when the link resolves, otherwise under the raw link or category text.
func savingsGoalKey(tx Transaction, names map[string]string) string {
	if tx.SavingsGoalID != "" {
		if name, ok := names[tx.SavingsGoalID]; ok {
			return name
		}
		return tx.SavingsGoalID
	}
	return tx.Category
}

// scoreBudgets averages per-goal adherence terms. Each goal with a positive
// limit contributes max(0, 1 - spent/limit): overspending floors at zero,
// it never drags the mean negative. The plan-level total limit, when set,
// contributes one more term against total spend. No goals at all yields the
// neutral score.
func scoreBudgets(plan Plan, p Progress) float64 {
	var sum float64
	var terms int
	for _, g := range plan.BudgetGoals {
		if g.LimitMinor <= 0 {
			continue
		}
		ratio := float64(p.SpentByCategory[g.Category]) / float64(g.LimitMinor)
		p.PerCategory[g.Category] = ratio
		if ratio < 1 {
			sum += 1 - ratio
		}
		terms++
	}
	if plan.TotalLimitMinor > 0 {
		ratio := float64(p.SpentMinor) / float64(plan.TotalLimitMinor)
		if ratio < 1 {
			sum += 1 - ratio
		}
		terms++
	}
	if terms == 0 {
		return neutralScore
	}
	return sum / float64(terms)
}

// scoreSavings averages saved/target across goals with a positive target,
// each term clamped to [0, 1]. No goals yields the neutral score.
func scoreSavings(plan Plan, p Progress) float64 {
	var sum float64
	var terms int
	for _, g := range plan.SavingsGoals {
		if g.TargetMinor <= 0 {
			continue
		}
		ratio := clamp01(float64(p.SavedByGoal[g.Name]) / float64(g.TargetMinor))
		p.PerGoal[g.Name] = ratio
		sum += ratio
		terms++
	}
	if terms == 0 {
		return neutralScore
	}
	return sum / float64(terms)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
