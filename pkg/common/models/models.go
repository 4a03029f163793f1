package models

import (
	"time"

	"github.com/google/uuid"
)

// Clinical record models. Column names follow the warehouse schema the
// analytics and validation layers query against.
type Patient struct {
	ID               string     `gorm:"primaryKey;column:id" json:"id"`
	FirstName        string     `gorm:"column:first_name" json:"first_name"`
	LastName         string     `gorm:"column:last_name" json:"last_name"`
	Gender           *string    `gorm:"column:gender" json:"gender,omitempty"`
	Age              *int       `gorm:"column:age" json:"age,omitempty"`
	Ethnicity        *string    `gorm:"column:ethnicity" json:"ethnicity,omitempty"`
	Active           *bool      `gorm:"column:active" json:"active,omitempty"`
	ProgramStartDate *time.Time `gorm:"column:program_start_date" json:"program_start_date,omitempty"`
	ProgramEndDate   *time.Time `gorm:"column:program_end_date" json:"program_end_date,omitempty"`
}

func (Patient) TableName() string { return "patients" }

type Vital struct {
	ID        int64      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID string     `gorm:"column:patient_id;index" json:"patient_id"`
	Date      *time.Time `gorm:"column:date" json:"date,omitempty"`
	Weight    *float64   `gorm:"column:weight" json:"weight,omitempty"`
	BMI       *float64   `gorm:"column:bmi" json:"bmi,omitempty"`
	SBP       *float64   `gorm:"column:sbp" json:"sbp,omitempty"`
	DBP       *float64   `gorm:"column:dbp" json:"dbp,omitempty"`
	Height    *float64   `gorm:"column:height" json:"height,omitempty"`
}

func (Vital) TableName() string { return "vitals" }

type LabResult struct {
	ID        int64      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID string     `gorm:"column:patient_id;index" json:"patient_id"`
	Date      *time.Time `gorm:"column:date" json:"date,omitempty"`
	TestName  string     `gorm:"column:test_name" json:"test_name"`
	Value     *float64   `gorm:"column:value" json:"value,omitempty"`
	Unit      string     `gorm:"column:unit" json:"unit,omitempty"`
}

func (LabResult) TableName() string { return "lab_results" }

type Score struct {
	ID         int64      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID  string     `gorm:"column:patient_id;index" json:"patient_id"`
	Date       *time.Time `gorm:"column:date" json:"date,omitempty"`
	ScoreType  string     `gorm:"column:score_type" json:"score_type"`
	ScoreValue *float64   `gorm:"column:score_value" json:"score_value,omitempty"`
}

func (Score) TableName() string { return "scores" }

type PMHEntry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID string `gorm:"column:patient_id;index" json:"patient_id"`
	Condition string `gorm:"column:condition" json:"condition"`
	Code      string `gorm:"column:code" json:"code,omitempty"`
}

func (PMHEntry) TableName() string { return "pmh" }

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // query, clarification, validation
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Gateway auth. A clinic is the tenant boundary; every account belongs to
// exactly one clinic.
type Clinic struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BootstrapRequest struct {
	ClinicName    string `json:"clinic_name"`
	ClinicSlug    string `json:"clinic_slug"`
	AdminEmail    string `json:"admin_email"`
	AdminName     string `json:"admin_name,omitempty"`
	AdminPassword string `json:"admin_password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterUserRequest struct {
	ClinicID uuid.UUID `json:"clinic_id,omitempty"`
	Email    string    `json:"email"`
	Name     string    `json:"name,omitempty"`
	Role     string    `json:"role,omitempty"`
	Password string    `json:"password"`
}

type AuthResponse struct {
	Token  string  `json:"token"`
	User   User    `json:"user"`
	Clinic *Clinic `json:"clinic,omitempty"`
}

// Assistant API models
type QueryRequest struct {
	Query string `json:"query"`
}

type QueryResponse struct {
	Query              string      `json:"query"`
	NeedsClarification bool        `json:"needs_clarification"`
	Questions          []string    `json:"questions,omitempty"`
	Summary            string      `json:"summary,omitempty"`
	Result             interface{} `json:"result,omitempty"`
	Error              string      `json:"error,omitempty"`
	Elapsed            string      `json:"elapsed,omitempty"`
}

// Validation API models
type ValidationRunSummary struct {
	PatientID     string         `json:"patient_id,omitempty"`
	PatientCount  int            `json:"patient_count"`
	ResultCount   int            `json:"result_count"`
	BySeverity    map[string]int `json:"by_severity,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	FailedRuleIDs []string       `json:"failed_rule_ids,omitempty"`
}
