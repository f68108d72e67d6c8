package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// JobType identifies the reconciliation variant a job runs.
type JobType string

const (
	JobTypeTransferStatus JobType = "transfer_status_reconciliation"
	JobTypePremium        JobType = "premium_reconciliation"
	JobTypeAll            JobType = "all"
)

// JobStatus is the lifecycle state of a reconciliation job.
// Transitions: pending -> running -> {completed, failed}. Terminal states
// are never left.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Check outcomes.
const (
	OutcomeMatch    = "match"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// Discrepancy resolution actors.
const (
	ResolvedBySystem = "system"
	ResolvedByManual = "manual"
)

// ResolutionAcceptAuthoritative is the default resolution policy: the
// event value is taken as ground truth.
const ResolutionAcceptAuthoritative = "accept_authoritative"

// ReconciliationJob tracks one top-level reconciliation run end to end.
type ReconciliationJob struct {
	ID     string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Type   JobType   `gorm:"column:type;size:64;index:idx_jobs_type_period" json:"type"`
	Status JobStatus `gorm:"column:status;size:16;index" json:"status"`
	// BillingPeriod is the distinguishing config key for premium jobs;
	// empty for transfer reconciliation. Extracted from Config so the
	// single-active invariant can be enforced with a query.
	BillingPeriod string          `gorm:"column:billing_period;size:7;index:idx_jobs_type_period" json:"billingPeriod,omitempty"`
	Config        json.RawMessage `gorm:"column:config;type:json" json:"config"`
	CreatedBy     string          `gorm:"column:created_by;size:64" json:"createdBy"`
	CreatedAt     time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	StartedAt     *time.Time      `gorm:"column:started_at" json:"startedAt,omitempty"`
	CompletedAt   *time.Time      `gorm:"column:completed_at" json:"completedAt,omitempty"`
	Results       json.RawMessage `gorm:"column:results;type:json" json:"results,omitempty"`
	Errors        json.RawMessage `gorm:"column:errors;type:json" json:"errors,omitempty"`
}

// TableName overrides the table name.
func (ReconciliationJob) TableName() string {
	return "reconciliation_jobs"
}

// IsTerminal reports whether the job reached a final state.
func (j *ReconciliationJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ReconciliationCheck records one comparison of a named rule against one
// resource during a run. Never mutated after creation except to attach
// discrepancies.
type ReconciliationCheck struct {
	ID            string                      `gorm:"column:id;primaryKey;size:36" json:"id"`
	JobID         string                      `gorm:"column:job_id;size:36;index" json:"jobId"`
	ResourceType  string                      `gorm:"column:resource_type;size:32" json:"resourceType"`
	ResourceID    string                      `gorm:"column:resource_id;size:64;index" json:"resourceId"`
	CheckName     string                      `gorm:"column:check_name;size:64" json:"checkName"`
	Metadata      json.RawMessage             `gorm:"column:metadata;type:json" json:"metadata,omitempty"`
	Outcome       string                      `gorm:"column:outcome;size:16" json:"outcome"`
	CreatedAt     time.Time                   `gorm:"column:created_at" json:"createdAt"`
	Discrepancies []ReconciliationDiscrepancy `gorm:"foreignKey:CheckID" json:"discrepancies,omitempty"`
}

// TableName overrides the table name.
func (ReconciliationCheck) TableName() string {
	return "reconciliation_checks"
}

// ReconciliationDiscrepancy is a detected field-level mismatch between an
// event's authoritative value and a snapshot's local value. Both values
// are stored JSON-serialized for audit.
type ReconciliationDiscrepancy struct {
	ID                 string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	CheckID            string          `gorm:"column:check_id;size:36;index" json:"checkId"`
	ResourceType       string          `gorm:"column:resource_type;size:32;index:idx_disc_resource_field" json:"resourceType"`
	ResourceID         string          `gorm:"column:resource_id;size:64;index:idx_disc_resource_field" json:"resourceId"`
	Field              string          `gorm:"column:field;size:32;index:idx_disc_resource_field" json:"field"`
	AuthoritativeValue string          `gorm:"column:authoritative_value;size:255" json:"authoritativeValue"`
	LocalValue         string          `gorm:"column:local_value;size:255" json:"localValue"`
	Resolved           bool            `gorm:"column:resolved;index" json:"resolved"`
	ResolvedAt         *time.Time      `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy         string          `gorm:"column:resolved_by;size:16" json:"resolvedBy,omitempty"`
	ResolutionType     string          `gorm:"column:resolution_type;size:32" json:"resolutionType,omitempty"`
	ResolutionDetails  json.RawMessage `gorm:"column:resolution_details;type:json" json:"resolutionDetails,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"createdAt"`
}

// TableName overrides the table name.
func (ReconciliationDiscrepancy) TableName() string {
	return "reconciliation_discrepancies"
}

// CheckWatermark is the persisted cursor bounding a check's event fetch
// window. Read before and written after each successful run so restart
// semantics do not depend on wall-clock heuristics.
type CheckWatermark struct {
	CheckName   string    `gorm:"column:check_name;primaryKey;size:64"`
	LastEventAt time.Time `gorm:"column:last_event_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (CheckWatermark) TableName() string {
	return "reconciliation_watermarks"
}

// Transfer is the locally persisted snapshot of a payments provider
// transfer. The table is owned by the dashboard application; the
// reconciliation service only reads it.
type Transfer struct {
	ID         int64           `gorm:"column:id;primaryKey"`
	ExternalID string          `gorm:"column:external_id;size:64;uniqueIndex"`
	AccountID  string          `gorm:"column:account_id;size:64;index"`
	Status     string          `gorm:"column:status;size:32"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(12,2)"`
	Metadata   json.RawMessage `gorm:"column:metadata;type:json"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (Transfer) TableName() string {
	return "transfers"
}

// JobError is the structured payload stored in a failed job's Errors
// column: a human-readable message plus optional detail lines.
type JobError struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Marshal serializes the error payload, falling back to a bare message
// on the (unlikely) marshal failure.
func (e JobError) Marshal() json.RawMessage {
	raw, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(`{"message":"unserializable error"}`)
	}
	return raw
}

// TransferJobConfig is the typed config payload for transfer status jobs.
type TransferJobConfig struct {
	ConfigNames []string `json:"configNames,omitempty"`
	ForceRun    bool     `json:"forceRun,omitempty"`
}

// DateRange is an explicit reconciliation window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// PremiumJobConfig is the typed config payload for premium jobs.
type PremiumJobConfig struct {
	BillingPeriod  string     `json:"billingPeriod"`
	DateRange      *DateRange `json:"dateRange,omitempty"`
	IncludePending bool       `json:"includePending,omitempty"`
	ForceRun       bool       `json:"forceRun,omitempty"`
}
