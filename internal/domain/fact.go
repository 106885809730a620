package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type FactStatus string

const (
	FactStatusSuccess FactStatus = "success"
	FactStatusError   FactStatus = "error"
)

func ValidFactStatus(s string) bool {
	switch FactStatus(s) {
	case FactStatusSuccess, FactStatusError:
		return true
	}
	return false
}

// VerifiedFact is the result of one verification-code execution against
// external data. When Status is "error" ExtractedValues must not be trusted.
type VerifiedFact struct {
	ID              uuid.UUID      `json:"id"`
	QueryID         uuid.UUID      `json:"query_id"`
	PlanID          uuid.UUID      `json:"plan_id"`
	CodeHash        string         `json:"code_hash"`
	Status          FactStatus     `json:"status"`
	ExtractedValues map[string]any `json:"extracted_values"`
	ExecutionTimeMs int            `json:"execution_time_ms"`
	MemoryUsedMB    float64        `json:"memory_used_mb"`
	CreatedAt       time.Time      `json:"created_at"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

func (f *VerifiedFact) Succeeded() bool {
	return f.Status == FactStatusSuccess
}

// Has reports whether key is present in the extracted values, whatever its value.
func (f *VerifiedFact) Has(key string) bool {
	_, ok := f.ExtractedValues[key]
	return ok
}

// Numeric returns the extracted value for key as a float64. Values decoded
// from JSON, native Go numbers and numeric strings are accepted.
func (f *VerifiedFact) Numeric(key string) (float64, bool) {
	v, ok := f.ExtractedValues[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		x, err := n.Float64()
		return x, err == nil
	case string:
		x, err := strconv.ParseFloat(n, 64)
		return x, err == nil
	}
	return 0, false
}
