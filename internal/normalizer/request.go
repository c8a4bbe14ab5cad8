package normalizer

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"fleet_gateway/types"
)

const (
	CodeMissingVehicleID = "MISSING_VEHICLE_ID"
	CodeMissingFields    = "MISSING_FIELDS"
	CodeInvalidService   = "INVALID_SERVICE"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeInvalidBody      = "INVALID_BODY"
	CodeInvalidAction    = "INVALID_ACTION"
	CodeMissingID        = "MISSING_ID"
	CodeInvalidID        = "INVALID_ID"
	CodeMissingDriverID  = "MISSING_DRIVER_ID"
	CodeEmptyUpdate      = "EMPTY_UPDATE"
)

// ValidationError is returned before any network call is made.
type ValidationError struct {
	Code    string
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// Синонимы ключей входящего запроса, в порядке приоритета
var (
	vehicleIDKeys    = []string{"vehicleId", "rc_number", "registrationNumber", "vehicleNumber"}
	serviceKeys      = []string{"service", "type"}
	chassisKeys      = []string{"chassis", "chassis_no", "chassisNumber"}
	engineKeys       = []string{"engine_no", "engineNo", "engineNumber"}
	forceRefreshKeys = []string{"forceRefresh", "force_refresh"}
)

var serviceSynonyms = map[string]types.Service{
	"rc":           types.ServiceRC,
	"registration": types.ServiceRC,
	"fastag":       types.ServiceFastag,
	"fasttag":      types.ServiceFastag,
	"challans":     types.ServiceChallans,
	"challan":      types.ServiceChallans,
	"health":       types.ServiceHealth,
	"vehicle":      types.ServiceVehicle,
	"vehicles":     types.ServiceVehicle,
}

// ParseService maps a case-insensitive service name or synonym; empty means rc.
func ParseService(raw string) (types.Service, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return types.ServiceRC, nil
	}
	if svc, ok := serviceSynonyms[name]; ok {
		return svc, nil
	}
	return "", &ValidationError{Code: CodeInvalidService, Message: fmt.Sprintf("unsupported service %q", raw)}
}

// ResolveService picks the explicit discriminator (path/route) first, then the body, then the query string.
func ResolveService(explicit string, raw map[string]any, query url.Values) (types.Service, error) {
	if strings.TrimSpace(explicit) != "" {
		return ParseService(explicit)
	}
	if s := FirstString(raw, serviceKeys...); s != "" {
		return ParseService(s)
	}
	return ParseService(firstQuery(query, serviceKeys...))
}

// NormalizeVehicleNumber uppercases and drops every non-alphanumeric rune.
func NormalizeVehicleNumber(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NormalizeRequest builds a VerificationRequest from an untyped body and query string.
func NormalizeRequest(raw map[string]any, query url.Values, service types.Service, callerID string) (*types.VerificationRequest, error) {
	if !service.IsVerification() {
		return nil, &ValidationError{Code: CodeInvalidService, Message: fmt.Sprintf("service %q is not a verification service", service)}
	}

	display := FirstString(raw, vehicleIDKeys...)
	if display == "" {
		display = strings.TrimSpace(firstQuery(query, vehicleIDKeys...))
	}
	number := NormalizeVehicleNumber(display)
	if number == "" {
		return nil, &ValidationError{Code: CodeMissingVehicleID, Message: "vehicle number is required"}
	}

	req := &types.VerificationRequest{
		Service:       service,
		VehicleNumber: number,
		DisplayNumber: display,
		ChassisNumber: FirstString(raw, chassisKeys...),
		EngineNumber:  FirstString(raw, engineKeys...),
		ForceRefresh:  forceRefresh(raw, query),
		CallerID:      callerID,
	}
	if req.ChassisNumber == "" {
		req.ChassisNumber = strings.TrimSpace(firstQuery(query, chassisKeys...))
	}
	if req.EngineNumber == "" {
		req.EngineNumber = strings.TrimSpace(firstQuery(query, engineKeys...))
	}

	if service == types.ServiceChallans {
		var missing []string
		if req.ChassisNumber == "" {
			missing = append(missing, "chassis")
		}
		if req.EngineNumber == "" {
			missing = append(missing, "engine_no")
		}
		if len(missing) > 0 {
			return nil, &ValidationError{
				Code:    CodeMissingFields,
				Message: "chassis and engine number are required for challan lookup",
				Missing: missing,
			}
		}
	}

	return req, nil
}

// UpstreamPayload is the canonical body sent to the aggregator.
func UpstreamPayload(req *types.VerificationRequest) map[string]any {
	payload := map[string]any{"vehicleId": req.VehicleNumber}
	if req.Service == types.ServiceChallans {
		payload["chassis"] = req.ChassisNumber
		payload["engine_no"] = req.EngineNumber
	}
	return payload
}

func forceRefresh(raw map[string]any, query url.Values) bool {
	if v, ok := FirstValue(raw, forceRefreshKeys...); ok {
		b, _ := parseBool(v)
		return b
	}
	if s := firstQuery(query, forceRefreshKeys...); s != "" {
		b, _ := parseBool(s)
		return b
	}
	return false
}

func firstQuery(query url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
