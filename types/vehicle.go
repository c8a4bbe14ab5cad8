package types

import "time"

// VehicleInfo is the rc payload. Unresolved fields stay empty and are omitted from JSON.
type VehicleInfo struct {
	Number                string `json:"number"`
	Make                  string `json:"make,omitempty"`
	Model                 string `json:"model,omitempty"`
	Year                  string `json:"year,omitempty"`
	FuelType              string `json:"fuelType,omitempty"`
	OwnerName             string `json:"ownerName,omitempty"`
	ChassisNumber         string `json:"chassisNumber,omitempty"`
	EngineNumber          string `json:"engineNumber,omitempty"`
	RegistrationDate      string `json:"registrationDate,omitempty"`
	RegistrationAuthority string `json:"registrationAuthority,omitempty"`
	FitnessExpiry         string `json:"fitnessExpiry,omitempty"`
	PuccExpiry            string `json:"puccExpiry,omitempty"`
	InsuranceExpiry       string `json:"insuranceExpiry,omitempty"`
}

type FastagInfo struct {
	Balance             float64 `json:"balance"`
	Linked              bool    `json:"linked"`
	TagID               string  `json:"tagId,omitempty"`
	Status              string  `json:"status,omitempty"`
	LastTransactionDate string  `json:"lastTransactionDate,omitempty"`
	VehicleNumber       string  `json:"vehicleNumber,omitempty"`
	BankName            string  `json:"bankName,omitempty"`
}

type Challan struct {
	ChallanNumber string  `json:"challanNumber,omitempty"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date,omitempty"`
	Area          string  `json:"area,omitempty"`
	State         string  `json:"state,omitempty"`
	Offence       string  `json:"offence,omitempty"`
	Status        string  `json:"status,omitempty"`
}

// ChallanInfo всегда сериализует список, даже пустой
type ChallanInfo struct {
	Challans []Challan `json:"challans"`
}

// VehicleSummary представляет запись в таблице vehicles
type VehicleSummary struct {
	ID            string    `json:"id" db:"id"`
	OwnerID       string    `json:"ownerId" db:"owner_id"`
	Number        string    `json:"number" db:"number"`
	Make          *string   `json:"make,omitempty" db:"make"`
	Model         *string   `json:"model,omitempty" db:"model"`
	Year          *string   `json:"year,omitempty" db:"year"`
	FuelType      *string   `json:"fuelType,omitempty" db:"fuel_type"`
	ChassisNumber *string   `json:"chassisNumber,omitempty" db:"chassis_number"`
	EngineNumber  *string   `json:"engineNumber,omitempty" db:"engine_number"`
	FastagBalance *float64  `json:"fastagBalance,omitempty" db:"fastag_balance"`
	FastagLinked  *bool     `json:"fastagLinked,omitempty" db:"fastag_linked"`
	FastagTagID   *string   `json:"fastagTagId,omitempty" db:"fastag_tag_id"`
	ChallanCount  *int      `json:"challanCount,omitempty" db:"challan_count"`
	DriverID      *string   `json:"driverId,omitempty" db:"driver_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// VehiclePatch carries only the columns to change; nil keeps the stored value.
type VehiclePatch struct {
	Number        *string
	Make          *string
	Model         *string
	Year          *string
	FuelType      *string
	ChassisNumber *string
	EngineNumber  *string
	FastagBalance *float64
	FastagLinked  *bool
	FastagTagID   *string
	ChallanCount  *int
}

// IsEmpty сообщает, что патч ничего не меняет
func (p VehiclePatch) IsEmpty() bool {
	return p.Number == nil && p.Make == nil && p.Model == nil && p.Year == nil &&
		p.FuelType == nil && p.ChassisNumber == nil && p.EngineNumber == nil &&
		p.FastagBalance == nil && p.FastagLinked == nil && p.FastagTagID == nil &&
		p.ChallanCount == nil
}

// VehicleEvent публикуется в NATS при изменении записи vehicles (аудит)
type VehicleEvent struct {
	EventID    string    `json:"event_id"`
	Action     string    `json:"action"`
	VehicleID  string    `json:"vehicle_id"`
	OwnerID    string    `json:"owner_id"`
	Number     string    `json:"number,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
