package normalizer

import (
	"fmt"
	"strings"

	"fleet_gateway/types"
)

var (
	vehicleActionKeys = []string{"action", "operation", "op"}
	vehicleRecordKeys = []string{"id", "vehicleUuid", "vehicle_id"}
	driverIDKeys      = []string{"driverId", "driver_id"}

	patchNumberKeys  = []string{"vehicleNumber", "number", "registrationNumber", "rc_number", "vehicleId"}
	patchMakeKeys    = []string{"make", "maker"}
	patchModelKeys   = []string{"model"}
	patchYearKeys    = []string{"year", "manufacturingYear"}
	patchFuelKeys    = []string{"fuelType", "fuel_type"}
	patchChassisKeys = []string{"chassisNumber", "chassis_number", "chassis", "chassis_no"}
	patchEngineKeys  = []string{"engineNumber", "engine_number", "engine_no", "engineNo"}
)

var vehicleActionSynonyms = map[string]string{
	"create":          "create",
	"add":             "create",
	"update":          "update",
	"edit":            "update",
	"delete":          "delete",
	"remove":          "delete",
	"get":             "get",
	"list":            "list",
	"assign-driver":   "assign-driver",
	"assign_driver":   "assign-driver",
	"assigndriver":    "assign-driver",
	"unassign-driver": "unassign-driver",
	"unassign_driver": "unassign-driver",
	"unassigndriver":  "unassign-driver",
}

// VehicleAction resolves the CRUD action from the explicit value or the body.
func VehicleAction(explicit string, raw map[string]any) (string, error) {
	name := strings.TrimSpace(explicit)
	if name == "" {
		name = FirstString(raw, vehicleActionKeys...)
	}
	if action, ok := vehicleActionSynonyms[strings.ToLower(name)]; ok {
		return action, nil
	}
	return "", &ValidationError{Code: CodeInvalidAction, Message: fmt.Sprintf("unsupported vehicle action %q", name)}
}

func VehicleRecordID(raw map[string]any) string {
	return FirstString(raw, vehicleRecordKeys...)
}

func DriverID(raw map[string]any) string {
	return FirstString(raw, driverIDKeys...)
}

// VehiclePatch collects the vehicle columns present in raw. The number is normalized
// the same way as verification requests so mirrors land on the same row.
func VehiclePatch(raw map[string]any) types.VehiclePatch {
	var p types.VehiclePatch
	if s := NormalizeVehicleNumber(FirstString(raw, patchNumberKeys...)); s != "" {
		p.Number = &s
	}
	p.Make = optional(FirstString(raw, patchMakeKeys...))
	p.Model = optional(FirstString(raw, patchModelKeys...))
	p.Year = optional(FirstString(raw, patchYearKeys...))
	p.FuelType = optional(FirstString(raw, patchFuelKeys...))
	p.ChassisNumber = optional(FirstString(raw, patchChassisKeys...))
	p.EngineNumber = optional(FirstString(raw, patchEngineKeys...))
	return p
}

// MirrorPatch picks the fields of a normalized payload that the vehicle summary keeps.
func MirrorPatch(payload any) types.VehiclePatch {
	var p types.VehiclePatch
	switch v := payload.(type) {
	case *types.VehicleInfo:
		p.Make = optional(v.Make)
		p.Model = optional(v.Model)
		p.Year = optional(v.Year)
		p.FuelType = optional(v.FuelType)
		p.ChassisNumber = optional(v.ChassisNumber)
		p.EngineNumber = optional(v.EngineNumber)
	case *types.FastagInfo:
		balance, linked := v.Balance, v.Linked
		p.FastagBalance = &balance
		p.FastagLinked = &linked
		p.FastagTagID = optional(v.TagID)
	case *types.ChallanInfo:
		count := len(v.Challans)
		p.ChallanCount = &count
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
