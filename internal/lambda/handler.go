package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"fleet_gateway/internal/auth"
	"fleet_gateway/internal/gateway"
	"fleet_gateway/internal/normalizer"
)

// Handler adapts API Gateway HTTP API events to the dispatcher.
type Handler struct {
	dispatcher *gateway.Dispatcher
	logger     *zap.Logger
}

func NewHandler(d *gateway.Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{dispatcher: d, logger: logger}
}

// Handle never returns an error: every failure is already an envelope.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	start := time.Now()

	body, err := readBody(req)
	if err != nil {
		h.logger.Info("failed to decode lambda body", zap.Error(err))
		resp := h.dispatcher.Reject(normalizer.NewValidationError(normalizer.CodeInvalidBody, "invalid body encoding"))
		return h.respond(resp.Status, resp.Envelope), nil
	}

	service, action := route(req)
	resp := h.dispatcher.Dispatch(ctx, gateway.Request{
		Service:     service,
		Action:      action,
		Body:        body,
		Query:       query(req),
		Credentials: credentials(req.Headers),
	})

	h.logger.Debug("lambda request processed",
		zap.String("route", req.RouteKey),
		zap.String("service", service),
		zap.Int("status", resp.Status),
		zap.Duration("elapsed", time.Since(start)))

	return h.respond(resp.Status, resp.Envelope), nil
}

func (h *Handler) respond(status int, env gateway.Envelope) events.APIGatewayV2HTTPResponse {
	raw, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal envelope", zap.Error(err))
		status = http.StatusInternalServerError
		raw = []byte(`{"success":false,"error":"Internal error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(raw),
	}
}

func readBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

// route: сначала path-параметры, затем последний сегмент пути (/verify/rc, /vehicles/list)
func route(req events.APIGatewayV2HTTPRequest) (service, action string) {
	service = req.PathParameters["service"]
	action = req.PathParameters["action"]
	if service != "" || action != "" {
		if action != "" && service == "" {
			service = "vehicle"
		}
		return service, action
	}

	segments := strings.Split(strings.Trim(req.RawPath, "/"), "/")
	if len(segments) == 0 {
		return "", ""
	}
	switch strings.ToLower(segments[0]) {
	case "health":
		return "health", ""
	case "verify":
		if len(segments) > 1 {
			return segments[1], ""
		}
	case "vehicles", "vehicle":
		if len(segments) > 1 {
			return "vehicle", segments[1]
		}
		return "vehicle", ""
	}
	return "", ""
}

func query(req events.APIGatewayV2HTTPRequest) url.Values {
	if req.RawQueryString != "" {
		if values, err := url.ParseQuery(req.RawQueryString); err == nil {
			return values
		}
	}
	values := url.Values{}
	for k, v := range req.QueryStringParameters {
		values.Set(k, v)
	}
	return values
}

// credentials: заголовки API Gateway приходят в произвольном регистре
func credentials(headers map[string]string) auth.Credentials {
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}
	return auth.Credentials{
		Authorization: lower["authorization"],
		ProxyToken:    lower["x-proxy-token"],
		UserID:        lower["x-user-id"],
	}
}
