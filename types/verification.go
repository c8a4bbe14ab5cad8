package types

import (
	"encoding/json"
	"time"
)

// Service определяет тип проверки
type Service string

const (
	ServiceRC       Service = "rc"
	ServiceFastag   Service = "fastag"
	ServiceChallans Service = "challans"
	ServiceHealth   Service = "health"
	ServiceVehicle  Service = "vehicle"
)

// IsVerification сообщает, идёт ли сервис через upstream-агрегатор
func (s Service) IsVerification() bool {
	switch s {
	case ServiceRC, ServiceFastag, ServiceChallans:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusCompleted VerificationStatus = "completed"
	VerificationStatusFailed    VerificationStatus = "failed"
)

// VerificationRequest представляет нормализованный входящий запрос на проверку
type VerificationRequest struct {
	Service       Service `json:"service"`
	VehicleNumber string  `json:"vehicleNumber"`
	DisplayNumber string  `json:"displayNumber"`
	ChassisNumber string  `json:"chassisNumber,omitempty"`
	EngineNumber  string  `json:"engineNumber,omitempty"`
	ForceRefresh  bool    `json:"forceRefresh"`
	CallerID      string  `json:"callerId"`
}

// VerificationRecord представляет запись в таблице verification_records
type VerificationRecord struct {
	ID            string             `json:"id" db:"id"`
	CallerID      string             `json:"caller_id" db:"caller_id"`
	VehicleNumber string             `json:"vehicle_number" db:"vehicle_number"`
	Service       Service            `json:"service" db:"service"`
	Status        VerificationStatus `json:"status" db:"status"`
	Payload       json.RawMessage    `json:"payload,omitempty" db:"payload"`
	ErrorMessage  *string            `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// IsFresh сообщает, можно ли отдать запись из кэша
func (r *VerificationRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	if r == nil || r.Status != VerificationStatusCompleted || len(r.Payload) == 0 {
		return false
	}
	return now.Sub(r.CreatedAt) < ttl
}

// VerificationEvent публикуется в NATS после завершения проверки
type VerificationEvent struct {
	VerificationID string             `json:"verification_id"`
	CallerID       string             `json:"caller_id"`
	VehicleNumber  string             `json:"vehicle_number"`
	Service        Service            `json:"service"`
	Status         VerificationStatus `json:"status"`
	Error          string             `json:"error,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
