package vitecsync

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	MatchTypeNew           = "new"
	MatchTypeMatched       = "matched"
	MatchTypeNotInExternal = "not_in_external"
)

const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

const (
	RecordTypeOffice   = "office"
	RecordTypeEmployee = "employee"
)

// Match methods, in chain order. Confidence is fixed per method, never blended.
const (
	MatchMethodOrganizationNumber = "organization_number"
	MatchMethodExternalId         = "external_id"
	MatchMethodNameExact          = "name_exact"
	MatchMethodNameFuzzy          = "name_fuzzy"
	MatchMethodVitecEmployeeId    = "vitec_employee_id"
	MatchMethodEmail              = "email"
	MatchMethodNameInDepartment   = "name_in_department"
)

// VitecOffice is the raw wire shape of one department in Vitec Next.
type VitecOffice struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	LegalName          string `json:"legalName"`
	OrganizationNumber string `json:"organisationNumber"`
	Email              string `json:"email"`
	Phone              string `json:"phoneNumber"`
	StreetAddress      string `json:"streetAddress"`
	PostalCode         string `json:"postalCode"`
	City               string `json:"city"`
}

// VitecEmployee is the raw wire shape of one employee in Vitec Next.
type VitecEmployee struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Title        string   `json:"title"`
	Email        string   `json:"email"`
	Phone        string   `json:"phoneNumber"`
	Roles        []string `json:"roles"`
	DepartmentId string   `json:"departmentId"`
}

// NormalizedOffice is the canonical field map for one external office.
// nil means the external side holds no opinion on the field, which is
// different from an explicit empty value.
type NormalizedOffice struct {
	ExternalId         string
	Name               *string
	LegalName          *string
	OrganizationNumber *string
	Email              *string
	Phone              *string
	StreetAddress      *string
	PostalCode         *string
	City               *string
}

// NormalizedEmployee is the canonical field map for one external employee.
type NormalizedEmployee struct {
	ExternalId      string
	FirstName       *string
	LastName        *string
	Title           *string
	Email           *string
	Phone           *string
	SystemRoles     []string
	VitecEmployeeId *string
	DepartmentId    *string
}

// FieldDiff is one proposed field change. Scalar fields use
// LocalValue/ExternalValue; list fields use LocalValues/ExternalValues.
type FieldDiff struct {
	FieldName      string   `json:"field_name"`
	LocalValue     *string  `json:"local_value"`
	ExternalValue  *string  `json:"external_value"`
	LocalValues    []string `json:"local_values,omitempty"`
	ExternalValues []string `json:"external_values,omitempty"`
	HasConflict    bool     `json:"has_conflict"`
	Decision       string   `json:"decision,omitempty"`
}

// RecordDiff is the reconciliation verdict for one external (or orphaned
// local) record. RecordId is the stable key decision updates refer to.
type RecordDiff struct {
	RecordId        string      `json:"record_id"`
	MatchType       string      `json:"match_type"`
	LocalId         *uint       `json:"local_id"`
	ExternalId      *string     `json:"external_id"`
	DisplayName     string      `json:"display_name"`
	Fields          []FieldDiff `json:"fields"`
	MatchConfidence float64     `json:"match_confidence"`
	MatchMethod     string      `json:"match_method,omitempty"`
}

type MatchCounts struct {
	New           int `json:"new"`
	Matched       int `json:"matched"`
	NotInExternal int `json:"not_in_external"`
}

type SyncSummary struct {
	Offices   MatchCounts `json:"offices"`
	Employees MatchCounts `json:"employees"`
}

// SyncPreview is the frozen snapshot persisted on the session row.
type SyncPreview struct {
	SchemaVersion int          `json:"schema_version"`
	Offices       []RecordDiff `json:"offices"`
	Employees     []RecordDiff `json:"employees"`
	Summary       SyncSummary  `json:"summary"`
}

type SessionResponse struct {
	SessionId string       `json:"session_id"`
	Status    string       `json:"status"`
	CreatedAt string       `json:"created_at"`
	ExpiresAt string       `json:"expires_at"`
	Offices   []RecordDiff `json:"offices"`
	Employees []RecordDiff `json:"employees"`
	Summary   SyncSummary  `json:"summary"`
}

type DecisionRequest struct {
	RecordType string `json:"record_type" binding:"required,oneof=office employee"`
	RecordId   string `json:"record_id" binding:"required"`
	FieldName  string `json:"field_name" binding:"required"`
	Decision   string `json:"decision" binding:"required,oneof=accept reject"`
}

type SyncCommitResult struct {
	SessionId        string `json:"session_id"`
	OfficesCreated   int    `json:"offices_created"`
	OfficesUpdated   int    `json:"offices_updated"`
	EmployeesCreated int    `json:"employees_created"`
	EmployeesUpdated int    `json:"employees_updated"`
	FieldsApplied    int    `json:"fields_applied"`
	FieldsSkipped    int    `json:"fields_skipped"`
}

// CommittedEvent is published to Pub/Sub after a successful commit.
// Delivery is best-effort; the commit never depends on it.
type CommittedEvent struct {
	SessionId     string           `json:"session_id"`
	CommittedAt   time.Time        `json:"committed_at"`
	Result        SyncCommitResult `json:"result"`
	CorrelationId string           `json:"correlation_id,omitempty"`
}

// Config holds every tunable the engine uses. Built once in main and
// injected; nothing in this package reads env at request time.
type Config struct {
	SessionTTL      time.Duration
	FuzzyThreshold  float64
	FuzzyConfidence float64
	MatchWorkers    int
	CommitLockTTL   time.Duration
	CommittedTopic  string
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:      24 * time.Hour,
		FuzzyThreshold:  0.85,
		FuzzyConfidence: 0.7,
		MatchWorkers:    8,
		CommitLockTTL:   30 * time.Second,
		CommittedTopic:  "sync-session-committed",
	}
}

func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(os.Getenv("SYNC_SESSION_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Hour
		}
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_FUZZY_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.FuzzyThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_MATCH_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 64 {
			cfg.MatchWorkers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_COMMITTED_TOPIC")); v != "" {
		cfg.CommittedTopic = v
	}
	return cfg
}

// Clock abstracts time.Now so expiry is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// decisionKey is the ledger key for one (record, field) pair. Exactly one
// decision exists per key; writes overwrite.
func decisionKey(recordType, recordId, fieldName string) string {
	return recordType + "|" + recordId + "|" + fieldName
}
