package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldPlanID        = "plan_id"
	FieldTxID          = "tx_id"
	FieldTxType        = "tx_type"
	FieldCategory      = "category"
	FieldCurrency      = "currency"
	FieldAmountMinor   = "amount_minor"
	FieldPercent       = "percent"
	FieldPeriodType    = "period_type"
	FieldWindowStart   = "window_start"
	FieldWindowEnd     = "window_end"
	FieldSpreadsheetID = "spreadsheet_id"
)

// Components defines standard component names
const (
	ComponentApp    = "app"
	ComponentWorker = "worker"
)
