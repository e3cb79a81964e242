package models

// DefaultChunkSize is the number of rows processed per chunk in batch operations.
const DefaultChunkSize = 100

// MaxBatchItems caps the number of items accepted by one bulk request.
const MaxBatchItems = 10000

// BatchOptions controls how a batch operation treats failures.
type BatchOptions struct {
	ChunkSize       int   `json:"chunk_size"`
	ContinueOnError bool  `json:"continue_on_error"`
	ValidateOnly    bool  `json:"validate_only"`
	UpdateExisting  bool  `json:"update_existing"`
	AuditChanges    bool  `json:"audit_changes"`
	Actor           Actor `json:"-"`
}

// DefaultBatchOptions returns options with the default chunk size and auditing on.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{ChunkSize: DefaultChunkSize, AuditChanges: true}
}

// BatchRowError describes one failed row. Row is 1-indexed and excludes the CSV header.
type BatchRowError struct {
	Row     int               `json:"row"`
	Data    map[string]string `json:"data,omitempty"`
	Message string            `json:"message"`
}

// BatchResult is the aggregate outcome of a batch operation.
type BatchResult struct {
	TotalProcessed int             `json:"total_processed"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Errors         []BatchRowError `json:"errors"`
	Created        []int64         `json:"created,omitempty"`
	Updated        []int64         `json:"updated,omitempty"`
	Deleted        []int64         `json:"deleted,omitempty"`
	RolledBack     bool            `json:"rolled_back"`
	Aborted        bool            `json:"aborted"`
}

// NewBatchResult returns an empty result with a non-nil error list.
func NewBatchResult() *BatchResult {
	return &BatchResult{Errors: []BatchRowError{}}
}

// AddError records a failed row.
func (r *BatchResult) AddError(row int, data map[string]string, msg string) {
	r.TotalProcessed++
	r.Failed++
	r.Errors = append(r.Errors, BatchRowError{Row: row, Data: data, Message: msg})
}

// AddSuccess records a successful row.
func (r *BatchResult) AddSuccess() {
	r.TotalProcessed++
	r.Successful++
}

// RollBack marks the result as discarded. Created, updated and deleted ids
// no longer exist, so they are cleared.
func (r *BatchResult) RollBack() {
	r.RolledBack = true
	r.Aborted = true
	r.Created = nil
	r.Updated = nil
	r.Deleted = nil
}

// OperationType is the kind of a standalone operation.
type OperationType string

// Operation types.
const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// Operation is one independent create, update or delete.
type Operation struct {
	Type    OperationType `json:"type" binding:"required,oneof=create update delete"`
	ID      int64         `json:"id,omitempty"`
	Book    *BookInput    `json:"book,omitempty"`
	Changes *BookPatch    `json:"changes,omitempty"`
}

// OperationsResult reports only aggregate counts.
type OperationsResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
