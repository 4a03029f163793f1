package ingestion

import (
	"math"
	"strings"
	"time"

	"github.com/carelens-ai/platform/pkg/common/models"
)

const (
	lbPerKg = 2.20462
	inPerCm = 0.393701
)

// VitalsUpload is the wire form of a vitals batch. Records carry their
// source units; normalization to kg/cm happens before storage.
type VitalsUpload struct {
	Source  string        `json:"source"`
	Records []VitalRecord `json:"records"`
}

type VitalRecord struct {
	PatientID  string   `json:"patient_id"`
	Date       string   `json:"date"`
	Weight     *float64 `json:"weight,omitempty"`
	WeightUnit string   `json:"weight_unit,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	HeightUnit string   `json:"height_unit,omitempty"`
	BMI        *float64 `json:"bmi,omitempty"`
	SBP        *float64 `json:"sbp,omitempty"`
	DBP        *float64 `json:"dbp,omitempty"`
}

// toVital normalizes a record to warehouse units (kg, cm) and derives BMI
// when weight and height are present but BMI was not supplied.
func (r VitalRecord) toVital() models.Vital {
	v := models.Vital{
		PatientID: strings.TrimSpace(r.PatientID),
		BMI:       r.BMI,
		SBP:       r.SBP,
		DBP:       r.DBP,
	}

	if t, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date)); err == nil {
		v.Date = &t
	}

	if r.Weight != nil {
		weight := *r.Weight
		if strings.EqualFold(r.WeightUnit, "lb") || strings.EqualFold(r.WeightUnit, "lbs") {
			weight = round1(weight / lbPerKg)
		}
		v.Weight = &weight
	}
	if r.Height != nil {
		height := *r.Height
		if strings.EqualFold(r.HeightUnit, "in") {
			height = round1(height / inPerCm)
		}
		v.Height = &height
	}

	if v.BMI == nil && v.Weight != nil && v.Height != nil && *v.Height > 0 {
		meters := *v.Height / 100
		bmi := round1(*v.Weight / (meters * meters))
		v.BMI = &bmi
	}
	return v
}

func (r VitalRecord) hasMeasurement() bool {
	return r.Weight != nil || r.Height != nil || r.BMI != nil || r.SBP != nil || r.DBP != nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
