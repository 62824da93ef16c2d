package http

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gyebu/internal/core"
	"gyebu/internal/log"
	"gyebu/internal/services"
	"gyebu/internal/storage"
)

// CreatePlanRequest is the POST /plans payload. TotalLimit is user-typed
// money text; TotalLimitMinor is the pre-parsed alternative and is used
// only when TotalLimit is empty.
type CreatePlanRequest struct {
	Name            string `json:"name"`
	PeriodType      string `json:"periodType"`
	Currency        string `json:"currency"`
	TimeZone        string `json:"timeZone"`
	Anchor          string `json:"anchor,omitempty"`
	TotalLimit      string `json:"totalLimit,omitempty"`
	TotalLimitMinor int64  `json:"totalLimitMinor,omitempty"`
}

type CreatePlanResponse struct {
	ID int64 `json:"id"`
}

// GoalsRequest is the PUT /plans/{id}/goals payload. Limits and targets
// are user-typed money text in the plan currency.
type GoalsRequest struct {
	BudgetGoals []struct {
		Category string `json:"category"`
		Limit    string `json:"limit"`
	} `json:"budgetGoals"`
	SavingsGoals []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Target string `json:"target"`
	} `json:"savingsGoals"`
}

type GoalsResponse struct {
	BudgetGoalsSaved   int `json:"budgetGoalsSaved"`
	BudgetGoalsSkipped int `json:"budgetGoalsSkipped"`
	SavingsGoalsSaved  int `json:"savingsGoalsSaved"`
}

// CreateTransactionRequest is the POST /plans/{id}/transactions payload.
// Amount is user-typed money text in the transaction currency; AmountMinor
// is used only when Amount is empty.
type CreateTransactionRequest struct {
	Type          string  `json:"type"`
	Amount        string  `json:"amount,omitempty"`
	AmountMinor   int64   `json:"amountMinor,omitempty"`
	Currency      string  `json:"currency"`
	FxUsdKrw      float64 `json:"fxUsdKrw,omitempty"`
	Category      string  `json:"category"`
	SavingsGoalID string  `json:"savingsGoalId,omitempty"`
	OccurredAt    string  `json:"occurredAt"`
}

type CreateTransactionResponse struct {
	ID int64 `json:"id"`
}

// ProgressResponse is the GET /plans/{id}/progress payload.
type ProgressResponse struct {
	Percent         int                `json:"percent"`
	SpentMinor      int64              `json:"spentMinor"`
	SavedMinor      int64              `json:"savedMinor"`
	SpentByCategory map[string]int64   `json:"spentByCategory"`
	SavedByGoal     map[string]int64   `json:"savedByGoal"`
	PerCategory     map[string]float64 `json:"perCategory"`
	PerGoal         map[string]float64 `json:"perGoal"`
	Window          WindowResponse     `json:"window"`
}

type WindowResponse struct {
	Type       string `json:"type"`
	StartUTC   string `json:"startUtc"`
	EndUTC     string `json:"endUtc"`
	StartLocal string `json:"startLocal"`
	EndLocal   string `json:"endLocal"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	periodType, err := core.ParsePeriodType(req.PeriodType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var anchor *time.Time
	if req.Anchor != "" {
		t, err := time.Parse(time.RFC3339, req.Anchor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "anchor must be RFC3339")
			return
		}
		anchor = &t
	}
	if periodType == core.Biweekly && anchor == nil {
		writeError(w, http.StatusBadRequest, core.ErrMissingAnchor.Error())
		return
	}

	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown time zone %q", req.TimeZone))
			return
		}
	}

	currency := core.ParseCurrency(req.Currency)
	limitMinor := req.TotalLimitMinor
	if req.TotalLimit != "" {
		limitMinor = core.ParseAmountToMinor(req.TotalLimit, currency)
	}
	if limitMinor < 0 {
		writeError(w, http.StatusBadRequest, core.ErrInvalidLimit.Error())
		return
	}

	id, err := s.planStore.CreatePlan(r.Context(), storage.CreatePlanParams{
		Name:            req.Name,
		PeriodType:      string(periodType),
		Currency:        string(currency),
		TimeZone:        req.TimeZone,
		AnchorUTC:       anchor,
		TotalLimitMinor: limitMinor,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create plan", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to create plan")
		return
	}

	writeJSON(w, http.StatusCreated, CreatePlanResponse{ID: id})
}

func (s *Server) handleUpsertGoals(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req GoalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	plan, err := s.plans.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to load plan", log.FieldPlanID, planID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	currency := core.ParseCurrency(plan.Currency)

	existing, err := s.plans.GetBudgetGoals(r.Context(), planID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load budget goals", log.FieldPlanID, planID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load budget goals")
		return
	}
	existingLimits := make(map[string]int64, len(existing))
	for _, g := range existing {
		existingLimits[g.Category] = g.LimitMinor
	}

	var resp GoalsResponse
	for _, g := range req.BudgetGoals {
		if g.Category == "" {
			writeError(w, http.StatusBadRequest, core.ErrEmptyCategory.Error())
			return
		}
		// Skip saves that wouldn't change the stored limit, so a form
		// resubmit with untouched fields is a no-op.
		if saved, ok := existingLimits[g.Category]; ok && !core.MoneyInputDirty(g.Limit, saved, currency) {
			resp.BudgetGoalsSkipped++
			continue
		}
		limitMinor := core.ParseAmountToMinor(g.Limit, currency)
		if limitMinor < 0 {
			writeError(w, http.StatusBadRequest, core.ErrInvalidLimit.Error())
			return
		}
		if err := s.planStore.UpsertBudgetGoal(r.Context(), planID, g.Category, limitMinor); err != nil {
			slog.ErrorContext(r.Context(), "Failed to save budget goal",
				log.FieldPlanID, planID, log.FieldCategory, g.Category, log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "failed to save budget goal")
			return
		}
		resp.BudgetGoalsSaved++
	}

	for _, g := range req.SavingsGoals {
		if g.Name == "" {
			writeError(w, http.StatusBadRequest, core.ErrEmptySavingsName.Error())
			return
		}
		targetMinor := core.ParseAmountToMinor(g.Target, currency)
		if targetMinor < 0 {
			writeError(w, http.StatusBadRequest, core.ErrInvalidLimit.Error())
			return
		}
		// The id is the savings_goals primary key; two id-less goals must
		// not collapse into one row.
		if g.ID == "" {
			g.ID = newSavingsGoalID()
		}
		if err := s.planStore.UpsertSavingsGoal(r.Context(), planID, g.ID, g.Name, targetMinor); err != nil {
			slog.ErrorContext(r.Context(), "Failed to save savings goal",
				log.FieldPlanID, planID, "goal_id", g.ID, log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "failed to save savings goal")
			return
		}
		resp.SavingsGoalsSaved++
	}

	s.progressCache.Delete(progressCacheKey(planID))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	now := time.Now()
	historic := false
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		now = t
		historic = true
	}

	cacheKey := progressCacheKey(planID)
	if !historic {
		if cached, found := s.progressCache.Get(cacheKey); found {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	progress, err := s.progress.Progress(r.Context(), planID, now)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "plan not found")
		case errors.Is(err, core.ErrMissingAnchor),
			errors.Is(err, core.ErrInvalidTimeZone):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			slog.ErrorContext(r.Context(), "Failed to compute progress", log.FieldPlanID, planID, log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "failed to compute progress")
		}
		return
	}

	resp := toProgressResponse(progress)
	if !historic {
		s.progressCache.Set(cacheKey, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "occurredAt must be RFC3339")
		return
	}

	currency := core.ParseCurrency(req.Currency)
	amountMinor := req.AmountMinor
	if req.Amount != "" {
		amountMinor = core.ParseAmountToMinor(req.Amount, currency)
	}

	id, err := s.recorder.RecordTransaction(r.Context(), planID, services.TransactionInput{
		Type:          req.Type,
		AmountMinor:   amountMinor,
		Currency:      string(currency),
		FxUsdKrw:      req.FxUsdKrw,
		Category:      req.Category,
		SavingsGoalID: req.SavingsGoalID,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		if status, msg := validationStatus(err); status != 0 {
			writeError(w, status, msg)
			return
		}
		slog.ErrorContext(r.Context(), "Failed to record transaction", log.FieldPlanID, planID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	s.progressCache.Delete(progressCacheKey(planID))
	writeJSON(w, http.StatusCreated, CreateTransactionResponse{ID: id})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	txID, ok := pathID(w, r, "txID")
	if !ok {
		return
	}

	if err := s.recorder.DeleteTransaction(r.Context(), planID, txID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete transaction",
			log.FieldPlanID, planID, log.FieldTxID, txID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	s.progressCache.Delete(progressCacheKey(planID))
	w.WriteHeader(http.StatusNoContent)
}

// validationStatus maps domain validation errors to a 400, returning 0 for
// anything that isn't a client error.
func validationStatus(err error) (int, string) {
	for _, sentinel := range []error{
		core.ErrInvalidTxType,
		core.ErrNegativeAmount,
		core.ErrEmptyCategory,
		core.ErrZeroOccurredAt,
		core.ErrEmptySavingsName,
		core.ErrInvalidLimit,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, err.Error()
		}
	}
	return 0, ""
}

func toProgressResponse(p core.Progress) ProgressResponse {
	return ProgressResponse{
		Percent:         p.Percent,
		SpentMinor:      p.SpentMinor,
		SavedMinor:      p.SavedMinor,
		SpentByCategory: p.SpentByCategory,
		SavedByGoal:     p.SavedByGoal,
		PerCategory:     p.PerCategory,
		PerGoal:         p.PerGoal,
		Window: WindowResponse{
			Type:       string(p.Window.Type),
			StartUTC:   p.Window.StartUTC.Format(time.RFC3339),
			EndUTC:     p.Window.EndUTC.Format(time.RFC3339),
			StartLocal: p.Window.StartLocal.Format(time.RFC3339),
			EndLocal:   p.Window.EndLocal.Format(time.RFC3339),
		},
	}
}

func newSavingsGoalID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

func progressCacheKey(planID int64) string {
	return "plan:" + strconv.FormatInt(planID, 10)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
