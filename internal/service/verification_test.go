package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fleet_gateway/internal/config"
	"fleet_gateway/internal/upstream"
	"fleet_gateway/types"
)

// Mock для VerificationRepository
type mockVerificationRepository struct {
	lookupFunc func(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error)
	storeErr   error
	stored     []types.VerificationRecord
	lookups    int
}

func (m *mockVerificationRepository) Lookup(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error) {
	m.lookups++
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, callerID, vehicleNumber, service)
	}
	return nil, nil
}

func (m *mockVerificationRepository) Store(ctx context.Context, record *types.VerificationRecord) error {
	m.stored = append(m.stored, *record)
	return m.storeErr
}

// Mock для VehicleRepository
type mockVehicleRepository struct {
	mirrorErr     error
	mirrored      []types.VehiclePatch
	setDriverFunc func(ctx context.Context, ownerID, id string, driverID *string) (*types.VehicleSummary, error)
	deleteErr     error
	createErr     error
	created       []types.VehiclePatch
	updated       []types.VehiclePatch
}

func (m *mockVehicleRepository) Create(ctx context.Context, ownerID string, patch types.VehiclePatch) (*types.VehicleSummary, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, patch)
	return &types.VehicleSummary{ID: "veh-1", OwnerID: ownerID, Number: *patch.Number}, nil
}

func (m *mockVehicleRepository) Update(ctx context.Context, ownerID, id string, patch types.VehiclePatch) (*types.VehicleSummary, error) {
	m.updated = append(m.updated, patch)
	return &types.VehicleSummary{ID: id, OwnerID: ownerID, Number: "KA03NC5479"}, nil
}

func (m *mockVehicleRepository) Delete(ctx context.Context, ownerID, id string) error {
	return m.deleteErr
}

func (m *mockVehicleRepository) Get(ctx context.Context, ownerID, id string) (*types.VehicleSummary, error) {
	return &types.VehicleSummary{ID: id, OwnerID: ownerID}, nil
}

func (m *mockVehicleRepository) List(ctx context.Context, ownerID string) ([]*types.VehicleSummary, error) {
	return []*types.VehicleSummary{}, nil
}

func (m *mockVehicleRepository) SetDriver(ctx context.Context, ownerID, id string, driverID *string) (*types.VehicleSummary, error) {
	if m.setDriverFunc != nil {
		return m.setDriverFunc(ctx, ownerID, id, driverID)
	}
	return &types.VehicleSummary{ID: id, OwnerID: ownerID, DriverID: driverID}, nil
}

func (m *mockVehicleRepository) MirrorVerification(ctx context.Context, ownerID, number string, patch types.VehiclePatch) error {
	m.mirrored = append(m.mirrored, patch)
	return m.mirrorErr
}

// Mock для upstream.Client: отвечает по очереди из responses
type mockUpstream struct {
	responses []func() (*upstream.Result, error)
	payloads  []map[string]any
	configErr error
}

func (m *mockUpstream) Configured() error { return m.configErr }

func (m *mockUpstream) Call(ctx context.Context, service types.Service, payload map[string]any) (*upstream.Result, error) {
	m.payloads = append(m.payloads, payload)
	i := len(m.payloads) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i]()
}

func (m *mockUpstream) calls() int { return len(m.payloads) }

func okResult(body string) func() (*upstream.Result, error) {
	return func() (*upstream.Result, error) {
		var v any
		_ = json.Unmarshal([]byte(body), &v)
		return &upstream.Result{OK: true, HTTPStatus: 200, JSON: v}, nil
	}
}

func errResult(err error) func() (*upstream.Result, error) {
	return func() (*upstream.Result, error) { return nil, err }
}

// Mock для NATSClient
type mockNATSClient struct {
	verificationEvents []*types.VerificationEvent
	vehicleEvents      []*types.VehicleEvent
	publishErr         error
}

func (m *mockNATSClient) PublishVerificationCompleted(ctx context.Context, event *types.VerificationEvent) error {
	m.verificationEvents = append(m.verificationEvents, event)
	return m.publishErr
}

func (m *mockNATSClient) PublishVehicleChanged(ctx context.Context, event *types.VehicleEvent) error {
	m.vehicleEvents = append(m.vehicleEvents, event)
	return m.publishErr
}

func (m *mockNATSClient) SubscribeToVerificationCompleted(ctx context.Context, handler func(*types.VerificationEvent)) error {
	return nil
}

func (m *mockNATSClient) Close() {}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		CacheTTL:      24 * time.Hour,
		RetryAttempts: 1,
		RetryDelayMS:  1,
	}
}

func rcRequest(force bool) *types.VerificationRequest {
	return &types.VerificationRequest{
		Service:       types.ServiceRC,
		VehicleNumber: "KA03NC5479",
		DisplayNumber: "KA-03-NC-5479",
		ForceRefresh:  force,
		CallerID:      "user-1",
	}
}

func TestVerifyCacheHit(t *testing.T) {
	createdAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockVerificationRepository{
		lookupFunc: func(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error) {
			if callerID != "user-1" || vehicleNumber != "KA03NC5479" || service != types.ServiceRC {
				t.Errorf("unexpected lookup key: %s %s %s", callerID, vehicleNumber, service)
			}
			return &types.VerificationRecord{
				ID:        "rec-1",
				Status:    types.VerificationStatusCompleted,
				Payload:   json.RawMessage(`{"number":"KA03NC5479","ownerName":"RAVI"}`),
				CreatedAt: createdAt,
			}, nil
		},
	}
	client := &mockUpstream{responses: []func() (*upstream.Result, error){okResult(`{}`)}}

	svc := NewVerificationService(repo, nil, client, &mockNATSClient{}, testGatewayConfig(), zaptest.NewLogger(t))
	result, err := svc.Verify(context.Background(), rcRequest(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.calls() != 0 {
		t.Errorf("expected zero upstream calls on cache hit, got %d", client.calls())
	}
	if !result.Cached {
		t.Error("expected cached=true")
	}
	if !result.VerifiedAt.Equal(createdAt) {
		t.Errorf("expected verifiedAt %s, got %s", createdAt, result.VerifiedAt)
	}
	out, _ := json.Marshal(result.Data)
	if string(out) != `{"number":"KA03NC5479","ownerName":"RAVI"}` {
		t.Errorf("unexpected cached payload: %s", out)
	}
	if len(repo.stored) != 0 {
		t.Errorf("cache hit must not write records, got %d", len(repo.stored))
	}
}

func TestVerifyForceRefreshBypassesCache(t *testing.T) {
	repo := &mockVerificationRepository{
		lookupFunc: func(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error) {
			return &types.VerificationRecord{Status: types.VerificationStatusCompleted, Payload: json.RawMessage(`{}`), CreatedAt: time.Now()}, nil
		},
	}
	client := &mockUpstream{responses: []func() (*upstream.Result, error){okResult(`{"response":{"owner_name":"RAVI"}}`)}}
	nats := &mockNATSClient{}

	svc := NewVerificationService(repo, nil, client, nats, testGatewayConfig(), zaptest.NewLogger(t))
	result, err := svc.Verify(context.Background(), rcRequest(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.lookups != 0 {
		t.Errorf("force refresh must skip lookup, got %d lookups", repo.lookups)
	}
	if client.calls() != 1 {
		t.Errorf("expected exactly one upstream call, got %d", client.calls())
	}
	if result.Cached {
		t.Error("expected cached=false")
	}
	info, ok := result.Data.(*types.VehicleInfo)
	if !ok || info.OwnerName != "RAVI" || info.Number != "KA03NC5479" {
		t.Errorf("unexpected normalized data: %#v", result.Data)
	}

	// pending → completed под одним id
	if len(repo.stored) != 2 {
		t.Fatalf("expected pending and completed writes, got %d", len(repo.stored))
	}
	if repo.stored[0].Status != types.VerificationStatusPending || repo.stored[1].Status != types.VerificationStatusCompleted {
		t.Errorf("unexpected status sequence: %s, %s", repo.stored[0].Status, repo.stored[1].Status)
	}
	if repo.stored[0].ID != repo.stored[1].ID {
		t.Error("expected the same record id across the lifecycle")
	}
	if len(nats.verificationEvents) != 1 || nats.verificationEvents[0].Status != types.VerificationStatusCompleted {
		t.Errorf("expected one completed event, got %+v", nats.verificationEvents)
	}
}

func TestVerifyRetry(t *testing.T) {
	timeout := fmt.Errorf("%w: deadline", upstream.ErrUpstreamTimeout)
	network := fmt.Errorf("%w: connection reset", upstream.ErrUpstreamNetwork)

	tests := []struct {
		name          string
		attempts      int
		responses     []func() (*upstream.Result, error)
		expectedCalls int
		expectedError error
	}{
		{
			name:          "timeout_then_success",
			attempts:      1,
			responses:     []func() (*upstream.Result, error){errResult(timeout), okResult(`{}`)},
			expectedCalls: 2,
		},
		{
			name:          "network_error_twice",
			attempts:      1,
			responses:     []func() (*upstream.Result, error){errResult(network), errResult(network)},
			expectedCalls: 2,
			expectedError: upstream.ErrUpstreamNetwork,
		},
		{
			name:          "retries_disabled",
			attempts:      0,
			responses:     []func() (*upstream.Result, error){errResult(timeout)},
			expectedCalls: 1,
			expectedError: upstream.ErrUpstreamTimeout,
		},
		{
			name:          "config_error_is_not_retried",
			attempts:      1,
			responses:     []func() (*upstream.Result, error){errResult(upstream.ErrNotConfigured)},
			expectedCalls: 1,
			expectedError: upstream.ErrNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGatewayConfig()
			cfg.RetryAttempts = tt.attempts
			repo := &mockVerificationRepository{}
			client := &mockUpstream{responses: tt.responses}

			svc := NewVerificationService(repo, nil, client, &mockNATSClient{}, cfg, zaptest.NewLogger(t))
			_, err := svc.Verify(context.Background(), rcRequest(false))

			if client.calls() != tt.expectedCalls {
				t.Errorf("expected %d upstream calls, got %d", tt.expectedCalls, client.calls())
			}
			if tt.expectedError == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectedError) {
				t.Fatalf("expected %v, got %v", tt.expectedError, err)
			}
			last := repo.stored[len(repo.stored)-1]
			if last.Status != types.VerificationStatusFailed || last.ErrorMessage == nil {
				t.Errorf("expected failed record with message, got %+v", last)
			}
		})
	}
}

func TestVerifyRetryHonoursContext(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.RetryDelayMS = 10000

	ctx, cancel := context.WithCancel(context.Background())
	client := &mockUpstream{responses: []func() (*upstream.Result, error){
		func() (*upstream.Result, error) {
			cancel()
			return nil, fmt.Errorf("%w: reset", upstream.ErrUpstreamNetwork)
		},
	}}

	svc := NewVerificationService(&mockVerificationRepository{}, nil, client, &mockNATSClient{}, cfg, zaptest.NewLogger(t))
	start := time.Now()
	_, err := svc.Verify(ctx, rcRequest(false))

	if !errors.Is(err, upstream.ErrUpstreamNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
	if client.calls() != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", client.calls())
	}
	if time.Since(start) > time.Second {
		t.Error("retry wait ignored context cancellation")
	}
}

func TestVerifyUpstreamHTTPError(t *testing.T) {
	client := &mockUpstream{responses: []func() (*upstream.Result, error){
		func() (*upstream.Result, error) {
			return &upstream.Result{OK: false, HTTPStatus: 200, JSON: map[string]any{"code": float64(400), "status": "error"}, Message: "invalid"}, nil
		},
	}}
	repo := &mockVerificationRepository{}

	svc := NewVerificationService(repo, nil, client, &mockNATSClient{}, testGatewayConfig(), zaptest.NewLogger(t))
	_, err := svc.Verify(context.Background(), rcRequest(false))

	var httpErr *upstream.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *upstream.HTTPError, got %v", err)
	}
	if client.calls() != 1 {
		t.Errorf("upstream HTTP errors must not be retried, got %d calls", client.calls())
	}
	if repo.stored[len(repo.stored)-1].Status != types.VerificationStatusFailed {
		t.Error("expected failed record")
	}
}

func TestVerifyPersistenceWarnings(t *testing.T) {
	repo := &mockVerificationRepository{storeErr: errors.New("database connection failed")}
	vehicles := &mockVehicleRepository{mirrorErr: errors.New("database connection failed")}
	nats := &mockNATSClient{publishErr: errors.New("nats down")}
	client := &mockUpstream{responses: []func() (*upstream.Result, error){okResult(`{"tag_status":"ACTIVE","balance":"250"}`)}}

	svc := NewVerificationService(repo, vehicles, client, nats, testGatewayConfig(), zaptest.NewLogger(t))
	req := rcRequest(false)
	req.Service = types.ServiceFastag

	result, err := svc.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("persistence failures must not fail the request: %v", err)
	}
	info, ok := result.Data.(*types.FastagInfo)
	if !ok || !info.Linked || info.Balance != 250 {
		t.Errorf("unexpected data: %#v", result.Data)
	}
	if len(vehicles.mirrored) != 1 || vehicles.mirrored[0].FastagBalance == nil || *vehicles.mirrored[0].FastagBalance != 250 {
		t.Errorf("expected fastag balance to be mirrored, got %+v", vehicles.mirrored)
	}
}

func TestVerifyLookupErrorFallsThrough(t *testing.T) {
	repo := &mockVerificationRepository{
		lookupFunc: func(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error) {
			return nil, errors.New("database connection failed")
		},
	}
	client := &mockUpstream{responses: []func() (*upstream.Result, error){okResult(`{"challans":[]}`)}}

	svc := NewVerificationService(repo, nil, client, &mockNATSClient{}, testGatewayConfig(), zaptest.NewLogger(t))
	req := rcRequest(false)
	req.Service = types.ServiceChallans
	req.ChassisNumber, req.EngineNumber = "C1", "E1"

	result, err := svc.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls() != 1 {
		t.Errorf("expected one upstream call, got %d", client.calls())
	}
	if client.payloads[0]["chassis"] != "C1" || client.payloads[0]["engine_no"] != "E1" {
		t.Errorf("unexpected upstream payload: %v", client.payloads[0])
	}
	out, _ := json.Marshal(result.Data)
	if string(out) != `{"challans":[]}` {
		t.Errorf("unexpected data: %s", out)
	}
}

func TestVerifyNotConfiguredKeepsStoredRecord(t *testing.T) {
	repo := &mockVerificationRepository{}
	nats := &mockNATSClient{}
	client := &mockUpstream{
		responses: []func() (*upstream.Result, error){okResult(`{}`)},
		configErr: fmt.Errorf("%w: api key is empty", upstream.ErrNotConfigured),
	}

	svc := NewVerificationService(repo, nil, client, nats, testGatewayConfig(), zaptest.NewLogger(t))
	_, err := svc.Verify(context.Background(), rcRequest(true))

	if !errors.Is(err, upstream.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if client.calls() != 0 {
		t.Errorf("expected no upstream calls, got %d", client.calls())
	}
	if len(repo.stored) != 0 {
		t.Errorf("config error must not overwrite the stored record, got %+v", repo.stored)
	}
	if len(nats.verificationEvents) != 0 {
		t.Errorf("config error must not publish events, got %d", len(nats.verificationEvents))
	}
}
