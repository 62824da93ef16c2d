package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// TxType classifies a transaction. The type field is the sole classification
// signal for the aggregator; free-text category matching survives only as a
// legacy fallback behind legacySavingCategory.
type TxType string

const (
	TxExpense TxType = "expense"
	TxIncome  TxType = "income"
	TxSaving  TxType = "saving"
)

var (
	ErrInvalidTxType    = errors.New("invalid transaction type")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrInvalidTimeZone  = errors.New("invalid time zone")
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroOccurredAt   = errors.New("occurred-at must be set")
	ErrInvalidLimit     = errors.New("limit must not be negative")
	ErrEmptySavingsName = errors.New("empty savings goal name")
)

// ParseTxType maps a stored string to a TxType.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(strings.ToLower(strings.TrimSpace(s))); t {
	case TxExpense, TxIncome, TxSaving:
		return t, nil
	}
	return "", ErrInvalidTxType
}

// Transaction is a single income, expense, or saving record as the engine
// consumes it. Records are created by the CRUD layer and read-only here.
// Direction is carried by Type, never by the sign of AmountMinor.
type Transaction struct {
	Type        TxType
	AmountMinor int64
	Currency    Currency
	// FxUsdKrw is the rate captured when the record was entered, meaning
	// "1 USD = FxUsdKrw KRW". Zero means no snapshot was recorded.
	FxUsdKrw      float64
	Category      string
	SavingsGoalID string
	OccurredAt    time.Time
}

func (t Transaction) Validate() error {
	if _, err := ParseTxType(string(t.Type)); err != nil {
		return err
	}
	if t.AmountMinor < 0 {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.OccurredAt.IsZero() {
		return ErrZeroOccurredAt
	}
	return nil
}

// HomeAmount normalizes the transaction into home-currency minor units.
//
// The amount is taken as an absolute value. A cross-currency record with no
// usable FX snapshot contributes 0 rather than a guessed number: totals must
// never lie, and the record stays visible elsewhere in the app regardless.
func (t Transaction) HomeAmount(home Currency) int64 {
	amount := t.AmountMinor
	if amount < 0 {
		amount = -amount
	}

	from := ParseCurrency(string(t.Currency))
	if from == home {
		return amount
	}
	if !(t.FxUsdKrw > 0) || math.IsInf(t.FxUsdKrw, 0) {
		return 0
	}

	converted, err := ConvertMinor(amount, from, home, t.FxUsdKrw)
	if err != nil {
		return 0
	}
	if converted < 0 {
		converted = -converted
	}
	return converted
}

// isSavingTx reports whether a transaction counts toward savings goals.
// The tagged type decides; the category text is consulted only for legacy
// records entered before the type field existed.
func (t Transaction) isSavingTx() bool {
	if t.Type == TxSaving {
		return true
	}
	return legacySavingCategory(t.Category)
}

// legacySavingCategory detects pre-migration records whose only hint at
// being a saving was a free-text category name. New code must set TxSaving
// instead of relying on this.
func legacySavingCategory(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return false
	}
	for _, token := range []string{"saving", "savings", "save", "저축", "적금"} {
		if c == token || strings.Contains(c, token) {
			return true
		}
	}
	return false
}

// BudgetGoal caps spending for one category per plan. A non-positive limit
// means "no goal" and is excluded from scoring.
type BudgetGoal struct {
	Category   string
	LimitMinor int64
}

func (g BudgetGoal) Validate() error {
	if strings.TrimSpace(g.Category) == "" {
		return ErrEmptyCategory
	}
	if g.LimitMinor < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// SavingsGoal is a savings target. A non-positive target is excluded from
// scoring.
type SavingsGoal struct {
	ID          string
	Name        string
	TargetMinor int64
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptySavingsName
	}
	if g.TargetMinor < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Plan holds everything the aggregator needs to score one budgeting plan.
type Plan struct {
	PeriodType PeriodType
	// Currency is the home currency all totals and goals are denominated in.
	Currency Currency
	// TimeZone is an IANA identifier from the user's profile.
	TimeZone string
	// AnchorUTC is the fixed reference Monday for biweekly plans; nil
	// otherwise.
	AnchorUTC *time.Time
	// TotalLimitMinor is an optional plan-wide spending cap; <= 0 disables it.
	TotalLimitMinor int64
	BudgetGoals     []BudgetGoal
	SavingsGoals    []SavingsGoal
}

// Location resolves the plan's timezone, falling back to UTC when unset.
func (p Plan) Location() (*time.Location, error) {
	if strings.TrimSpace(p.TimeZone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return nil, ErrInvalidTimeZone
	}
	return loc, nil
}
