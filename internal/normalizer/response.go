package normalizer

import (
	"strings"

	"fleet_gateway/types"
)

type vehicleField struct {
	keys   []string
	assign func(v *types.VehicleInfo, value string)
}

// Исторически наблюдавшиеся имена полей upstream для RC
var vehicleFields = []vehicleField{
	{
		keys:   []string{"maker", "make", "manufacturer", "maker_description", "vehicle_manufacturer_name", "brand_name"},
		assign: func(v *types.VehicleInfo, s string) { v.Make = s },
	},
	{
		keys:   []string{"maker_model", "model", "vehicle_model", "modelName", "brand_model"},
		assign: func(v *types.VehicleInfo, s string) { v.Model = s },
	},
	{
		keys:   []string{"manufacturing_year", "year", "mfg_year", "manufacturingYear", "manufactured_month_year", "manufacturing_date"},
		assign: func(v *types.VehicleInfo, s string) { v.Year = s },
	},
	{
		keys:   []string{"fuelType", "fuel_type", "fuel_descr", "fuel"},
		assign: func(v *types.VehicleInfo, s string) { v.FuelType = s },
	},
	{
		keys:   []string{"ownerName", "owner_name", "owner"},
		assign: func(v *types.VehicleInfo, s string) { v.OwnerName = s },
	},
	{
		keys:   []string{"chassisNumber", "chassis_number", "chassis", "chassis_no", "vehicle_chasi_number"},
		assign: func(v *types.VehicleInfo, s string) { v.ChassisNumber = s },
	},
	{
		keys:   []string{"engineNumber", "engine_number", "engine", "engine_no", "vehicle_engine_number"},
		assign: func(v *types.VehicleInfo, s string) { v.EngineNumber = s },
	},
	{
		keys:   []string{"registrationDate", "registration_date", "reg_date", "regDate"},
		assign: func(v *types.VehicleInfo, s string) { v.RegistrationDate = s },
	},
	{
		keys:   []string{"registrationAuthority", "registration_authority", "registered_at", "rto", "office_name"},
		assign: func(v *types.VehicleInfo, s string) { v.RegistrationAuthority = s },
	},
	{
		keys:   []string{"fitnessExpiry", "fitness_upto", "fitness_expiry", "fit_up_to"},
		assign: func(v *types.VehicleInfo, s string) { v.FitnessExpiry = s },
	},
	{
		keys:   []string{"puccExpiry", "pucc_upto", "pucc_expiry", "pucc_valid_upto"},
		assign: func(v *types.VehicleInfo, s string) { v.PuccExpiry = s },
	},
	{
		keys:   []string{"insuranceExpiry", "insurance_upto", "insurance_expiry", "insurance_validity"},
		assign: func(v *types.VehicleInfo, s string) { v.InsuranceExpiry = s },
	},
}

var (
	vehicleNumberKeys = []string{"number", "rc_number", "registration_number", "registrationNumber", "vehicle_number", "vehicleNumber", "reg_no", "regNo"}

	fastagLinkedKeys   = []string{"linked", "is_linked", "isLinked", "active", "is_active", "isActive"}
	fastagTagStatusKey = []string{"tag_status", "tagStatus", "fastag_status"}
	fastagBalanceKeys  = []string{"balance", "tag_balance", "tagBalance", "available_balance", "wallet_balance"}
	fastagTagIDKeys    = []string{"tag_id", "tagId", "tag_number", "tagNumber", "fastag_id"}
	fastagLastTxnKeys  = []string{"last_transaction_date", "lastTransactionDate", "last_txn_date", "last_txn_time"}
	fastagBankKeys     = []string{"bank_name", "bankName", "issuer_bank", "bank", "issuer"}

	challanNumberKeys  = []string{"challan_number", "challanNumber", "challan_no", "challanNo", "notice_no"}
	challanAmountKeys  = []string{"amount", "fine_amount", "fineAmount", "penalty_amount", "total_amount"}
	challanDateKeys    = []string{"challan_date", "challanDate", "date", "challan_date_time", "offence_date"}
	challanAreaKeys    = []string{"area", "challan_place", "place", "location"}
	challanStateKeys   = []string{"state", "state_code", "stateCode"}
	challanOffenceKeys = []string{"offence", "offense", "offence_details", "violation"}
	challanStatusKeys  = []string{"challan_status", "challanStatus", "status", "payment_status"}
	offenceNameKeys    = []string{"offence_name", "name", "offence", "description"}
)

// Значения статуса FASTag, означающие активный тег
var activeTagStatuses = map[string]bool{
	"ACTIVE": true,
	"LINKED": true,
}

// Пути, по которым upstream возвращал список штрафов
var challanListPaths = [][]string{
	{"challans"},
	{"response", "challans"},
	{"data", "challans"},
	{"result", "challans"},
	{"response", "data"},
	{"data"},
	{"response"},
	{"result"},
}

// NormalizeResponse maps upstream JSON into the stable payload for service.
// Unknown shapes degrade to empty fields; it never fails.
func NormalizeResponse(service types.Service, vehicleNumber string, upstream any) any {
	switch service {
	case types.ServiceFastag:
		return NormalizeFastag(vehicleNumber, upstream)
	case types.ServiceChallans:
		return NormalizeChallans(upstream)
	default:
		return NormalizeVehicle(vehicleNumber, upstream)
	}
}

func NormalizeVehicle(vehicleNumber string, upstream any) *types.VehicleInfo {
	sc := scopes(upstream)
	info := &types.VehicleInfo{Number: FirstStringIn(sc, vehicleNumberKeys...)}
	if info.Number == "" {
		info.Number = vehicleNumber
	}
	for _, field := range vehicleFields {
		if s := FirstStringIn(sc, field.keys...); s != "" {
			field.assign(info, s)
		}
	}
	return info
}

func NormalizeFastag(vehicleNumber string, upstream any) *types.FastagInfo {
	sc := scopes(upstream)
	info := &types.FastagInfo{
		TagID:               FirstStringIn(sc, fastagTagIDKeys...),
		LastTransactionDate: FirstStringIn(sc, fastagLastTxnKeys...),
		VehicleNumber:       FirstStringIn(sc, vehicleNumberKeys...),
		BankName:            FirstStringIn(sc, fastagBankKeys...),
		Status:              tagStatus(sc),
	}
	if info.VehicleNumber == "" {
		info.VehicleNumber = vehicleNumber
	}

	for _, scope := range sc {
		if v, ok := FirstValue(scope, fastagBalanceKeys...); ok {
			if f, ok := parseNumber(v); ok {
				info.Balance = f
				break
			}
		}
	}

	linkedSet := false
	for _, scope := range sc {
		if v, ok := FirstValue(scope, fastagLinkedKeys...); ok {
			if b, ok := parseBool(v); ok {
				info.Linked = b
				linkedSet = true
				break
			}
		}
	}
	if !linkedSet {
		info.Linked = activeTagStatuses[strings.ToUpper(info.Status)]
	}

	return info
}

// tagStatus prefers tag-specific keys; a bare "status" is only trusted inside an envelope,
// where the top-level one describes the API call rather than the tag.
func tagStatus(sc []map[string]any) string {
	if s := FirstStringIn(sc, fastagTagStatusKey...); s != "" {
		return s
	}
	if len(sc) <= 1 {
		return FirstStringIn(sc, "status")
	}
	return FirstStringIn(sc[:len(sc)-1], "status")
}

func NormalizeChallans(upstream any) *types.ChallanInfo {
	info := &types.ChallanInfo{Challans: []types.Challan{}}
	for _, item := range findChallanList(upstream) {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		info.Challans = append(info.Challans, normalizeChallan(entry))
	}
	return info
}

func normalizeChallan(entry map[string]any) types.Challan {
	c := types.Challan{
		ChallanNumber: FirstString(entry, challanNumberKeys...),
		Date:          FirstString(entry, challanDateKeys...),
		Area:          FirstString(entry, challanAreaKeys...),
		State:         FirstString(entry, challanStateKeys...),
		Offence:       FirstString(entry, challanOffenceKeys...),
		Status:        FirstString(entry, challanStatusKeys...),
	}
	if v, ok := FirstValue(entry, challanAmountKeys...); ok {
		if f, ok := parseNumber(v); ok {
			c.Amount = f
		}
	}
	if c.Offence == "" {
		c.Offence = offenceNames(entry["offences"])
	}
	return c
}

// offenceNames склеивает имена из массива offences
func offenceNames(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	var names []string
	for _, item := range list {
		switch o := item.(type) {
		case string:
			if s := strings.TrimSpace(o); s != "" {
				names = append(names, s)
			}
		case map[string]any:
			if s := FirstString(o, offenceNameKeys...); s != "" {
				names = append(names, s)
			}
		}
	}
	return strings.Join(names, "; ")
}

func findChallanList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	top, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for _, path := range challanListPaths {
		if list, ok := lookupPath(top, path).([]any); ok {
			return list
		}
	}
	return nil
}

func lookupPath(m map[string]any, path []string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}
