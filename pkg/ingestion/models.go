package ingestion

import (
	"time"
)

const (
	StatusAccepted = "accepted"
	StatusStored   = "stored"
	StatusFailed   = "failed"
)

// Batch tracks one vitals upload through acceptance, storage, and the
// follow-up validation trigger.
type Batch struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Source       string    `json:"source" gorm:"column:source"`
	RecordCount  int       `json:"record_count" gorm:"column:record_count"`
	PatientCount int       `json:"patient_count" gorm:"column:patient_count"`
	Status       string    `json:"status" gorm:"column:status"`
	Error        string    `json:"error,omitempty" gorm:"column:error"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Batch) TableName() string {
	return "ingestion_batches"
}
