package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"fleet_gateway/internal/auth"
	"fleet_gateway/internal/normalizer"
	"fleet_gateway/internal/service"
	"fleet_gateway/types"
)

// Request is the transport-neutral form of one gateway call.
// Service and Action are route discriminators and may be empty.
type Request struct {
	Service     string
	Action      string
	Body        []byte
	Query       url.Values
	Credentials auth.Credentials
}

type Response struct {
	Status   int
	Envelope Envelope
}

type Dispatcher struct {
	verification    service.VerificationService
	vehicles        service.VehicleService
	auth            *auth.Authenticator
	alwaysReturn200 bool
	now             func() time.Time
	logger          *zap.Logger
}

func NewDispatcher(
	verification service.VerificationService,
	vehicles service.VehicleService,
	authenticator *auth.Authenticator,
	alwaysReturn200 bool,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		verification:    verification,
		vehicles:        vehicles,
		auth:            authenticator,
		alwaysReturn200: alwaysReturn200,
		now:             time.Now,
		logger:          logger,
	}
}

// Dispatch never panics and always returns a well-formed envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in gateway pipeline", zap.Any("panic", r), zap.Stack("stack"))
			resp = Response{
				Status:   http.StatusInternalServerError,
				Envelope: Envelope{Error: internalErrorMessage, Code: CodeInternal, Details: fmt.Sprint(r)},
			}
		}
		if d.alwaysReturn200 {
			resp.Status = http.StatusOK
		}
	}()

	status, env := d.dispatch(ctx, req)
	return Response{Status: status, Envelope: env}
}

// Reject answers a request that failed before it reached Dispatch (unreadable or
// undecodable body, transport panic) under the same status policy.
func (d *Dispatcher) Reject(err error) Response {
	status, env := d.fail(Request{}, err)
	if d.alwaysReturn200 {
		status = http.StatusOK
	}
	return Response{Status: status, Envelope: env}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (int, Envelope) {
	raw, err := decodeBody(req.Body)
	if err != nil {
		return d.fail(req, err)
	}

	svc, err := normalizer.ResolveService(req.Service, raw, req.Query)
	if err != nil {
		return d.fail(req, err)
	}

	if svc == types.ServiceHealth {
		return http.StatusOK, success(map[string]any{
			"status":  "ok",
			"service": "fleet-gateway",
			"time":    d.now().UTC(),
		})
	}

	if err := d.auth.CheckProxy(req.Credentials); err != nil {
		return d.fail(req, err)
	}
	callerID, err := d.auth.Identify(req.Credentials)
	if err != nil {
		return d.fail(req, err)
	}

	if svc == types.ServiceVehicle {
		return d.vehicle(ctx, req, raw, callerID)
	}

	vr, err := normalizer.NormalizeRequest(raw, req.Query, svc, callerID)
	if err != nil {
		return d.fail(req, err)
	}

	result, err := d.verification.Verify(ctx, vr)
	if err != nil {
		return d.fail(req, err)
	}

	env := success(result.Data)
	cached := result.Cached
	verifiedAt := result.VerifiedAt.UTC()
	env.Cached = &cached
	env.VerifiedAt = &verifiedAt
	return http.StatusOK, env
}

func (d *Dispatcher) vehicle(ctx context.Context, req Request, raw map[string]any, callerID string) (int, Envelope) {
	if d.vehicles == nil {
		return d.fail(req, fmt.Errorf("vehicle storage is not configured"))
	}

	action, err := normalizer.VehicleAction(req.Action, raw)
	if err != nil {
		return d.fail(req, err)
	}

	data, err := d.vehicles.Handle(ctx, callerID, action, raw)
	if err != nil {
		return d.fail(req, err)
	}
	return http.StatusOK, success(data)
}

func (d *Dispatcher) fail(req Request, err error) (int, Envelope) {
	status, env := failure(err)

	fields := []zap.Field{
		zap.String("service", req.Service),
		zap.Int("status", status),
		zap.String("code", env.Code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		d.logger.Error("gateway request failed", fields...)
	} else {
		d.logger.Info("gateway request rejected", fields...)
	}
	return status, env
}

// decodeBody: пустое тело считается пустым объектом, всё кроме JSON-объекта даёт INVALID_JSON
func decodeBody(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, normalizer.NewValidationError(normalizer.CodeInvalidJSON, "request body must be a JSON object")
	}
	return raw, nil
}
