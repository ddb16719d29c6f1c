package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldMemberID      = "member_id"
	FieldLeaveID       = "leave_id"
	FieldPaymentID     = "payment_id"
	FieldTransactionID = "transaction_id"
	FieldBillID        = "bill_id"
	FieldCategoryID    = "category_id"
	FieldLogID         = "log_id"
	FieldEntityType    = "entity_type"
	FieldEntityID      = "entity_id"
	FieldAction        = "action"
	FieldMonth         = "month"
	FieldAmountCents   = "amount_cents"
	FieldGroupID       = "group_id"
	FieldRecurringID   = "recurring_id"
	FieldCount         = "count"
	FieldDuration      = "duration_ms"
	FieldWarning       = "warning"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentDues    = "dues"
	ComponentMembers = "members"
	ComponentLeaves  = "leaves"
	ComponentBills   = "bills"
	ComponentLedger  = "ledger"
	ComponentAudit   = "audit"
	ComponentStorage = "storage"
	ComponentBlob    = "blob"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
	ComponentReport  = "report"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAppend   = "append"
	OpSync     = "sync"
	OpLink     = "link"
	OpUndo     = "undo"
	OpRevert   = "revert"
	OpUpload   = "upload"
	OpPublish  = "publish"
	OpReport   = "report"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntity adds the audited entity type and id.
func (f LogFields) WithEntity(entityType, id string) LogFields {
	f[FieldEntityType] = entityType
	f[FieldEntityID] = id
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
