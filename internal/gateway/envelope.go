package gateway

import (
	"errors"
	"net/http"
	"time"

	"fleet_gateway/internal/auth"
	"fleet_gateway/internal/normalizer"
	"fleet_gateway/internal/repository"
	"fleet_gateway/internal/upstream"
)

// Envelope is the only response shape callers ever see.
type Envelope struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data,omitempty"`
	Cached     *bool      `json:"cached,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	Code       string     `json:"code,omitempty"`
	Details    string     `json:"details,omitempty"`
	Missing    []string   `json:"missing,omitempty"`
}

const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeConfigError         = "CONFIG_ERROR"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

const internalErrorMessage = "Internal error"

func success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// failure maps an error from any pipeline stage to an HTTP status and envelope.
func failure(err error) (int, Envelope) {
	var (
		validationErr *normalizer.ValidationError
		httpErr       *upstream.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		status := http.StatusBadRequest
		if validationErr.Code == normalizer.CodeMissingFields {
			status = http.StatusUnprocessableEntity
		}
		return status, Envelope{
			Error:   validationErr.Message,
			Code:    validationErr.Code,
			Missing: validationErr.Missing,
		}

	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, Envelope{Error: "Unauthorized", Code: CodeUnauthorized, Details: err.Error()}

	case errors.Is(err, upstream.ErrNotConfigured):
		return http.StatusInternalServerError, Envelope{Error: "Upstream is not configured", Code: CodeConfigError, Details: err.Error()}

	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, Envelope{Error: "Upstream timeout", Code: CodeUpstreamTimeout}

	case errors.Is(err, upstream.ErrUpstreamNetwork):
		return http.StatusBadGateway, Envelope{Error: "Upstream unavailable", Code: CodeUpstreamUnavailable}

	case errors.As(err, &httpErr):
		details := httpErr.Preview
		if details == "" {
			details = httpErr.Message
		}
		message := "Upstream error"
		if httpErr.Message != "" {
			message = "Upstream error: " + httpErr.Message
		}
		return http.StatusBadGateway, Envelope{
			Error:   upstream.Truncate(message, upstream.PreviewLimit),
			Code:    CodeUpstreamError,
			Details: upstream.Truncate(details, upstream.PreviewLimit),
		}

	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, Envelope{Error: "Not found", Code: CodeNotFound}

	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, Envelope{Error: "Already exists", Code: CodeConflict, Details: err.Error()}
	}

	return http.StatusInternalServerError, Envelope{Error: internalErrorMessage, Code: CodeInternal, Details: err.Error()}
}
