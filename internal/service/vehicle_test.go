package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"fleet_gateway/internal/normalizer"
	"fleet_gateway/internal/repository"
	"fleet_gateway/types"
)

const vehicleID = "5b0c7a52-8d0e-4f4e-9a57-2f1f6f0f6a11"

func TestVehicleHandle(t *testing.T) {
	tests := []struct {
		name          string
		action        string
		raw           map[string]any
		expectedCode  string
		expectedEvent string
	}{
		{
			name:          "create",
			action:        ActionCreate,
			raw:           map[string]any{"vehicleNumber": "ka-03 nc 5479", "make": "TATA"},
			expectedEvent: ActionCreate,
		},
		{
			name:         "create_without_number",
			action:       ActionCreate,
			raw:          map[string]any{"make": "TATA"},
			expectedCode: normalizer.CodeMissingVehicleID,
		},
		{
			name:          "update",
			action:        ActionUpdate,
			raw:           map[string]any{"id": vehicleID, "model": "NEXON"},
			expectedEvent: ActionUpdate,
		},
		{
			name:         "update_without_fields",
			action:       ActionUpdate,
			raw:          map[string]any{"id": vehicleID},
			expectedCode: normalizer.CodeEmptyUpdate,
		},
		{
			name:         "get_without_id",
			action:       ActionGet,
			raw:          map[string]any{},
			expectedCode: normalizer.CodeMissingID,
		},
		{
			name:   "list",
			action: ActionList,
			raw:    map[string]any{},
		},
		{
			name:          "assign_driver",
			action:        ActionAssignDriver,
			raw:           map[string]any{"vehicleUuid": vehicleID, "driverId": "driver-7"},
			expectedEvent: ActionAssignDriver,
		},
		{
			name:         "assign_driver_without_driver",
			action:       ActionAssignDriver,
			raw:          map[string]any{"id": vehicleID},
			expectedCode: normalizer.CodeMissingDriverID,
		},
		{
			name:          "unassign_driver",
			action:        ActionUnassignDriver,
			raw:           map[string]any{"vehicle_id": vehicleID},
			expectedEvent: ActionUnassignDriver,
		},
		{
			name:          "delete",
			action:        ActionDelete,
			raw:           map[string]any{"id": vehicleID},
			expectedEvent: ActionDelete,
		},
		{
			name:         "get_with_non_uuid_id",
			action:       ActionGet,
			raw:          map[string]any{"id": "veh-1"},
			expectedCode: normalizer.CodeInvalidID,
		},
		{
			name:         "delete_with_non_uuid_id",
			action:       ActionDelete,
			raw:          map[string]any{"id": "'; drop table vehicles"},
			expectedCode: normalizer.CodeInvalidID,
		},
		{
			name:         "unknown_action_without_id",
			action:       "archive",
			raw:          map[string]any{},
			expectedCode: normalizer.CodeInvalidAction,
		},
		{
			name:         "unknown_action",
			action:       "archive",
			raw:          map[string]any{"id": vehicleID},
			expectedCode: normalizer.CodeInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockVehicleRepository{}
			nats := &mockNATSClient{}
			svc := NewVehicleService(repo, nats, zaptest.NewLogger(t))

			result, err := svc.Handle(context.Background(), "owner-1", tt.action, tt.raw)

			if tt.expectedCode != "" {
				var vErr *normalizer.ValidationError
				if !errors.As(err, &vErr) || vErr.Code != tt.expectedCode {
					t.Fatalf("expected validation error %s, got %v", tt.expectedCode, err)
				}
				if len(nats.vehicleEvents) != 0 {
					t.Error("rejected actions must not be audited")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil {
				t.Fatal("expected a result")
			}

			if tt.expectedEvent == "" {
				if len(nats.vehicleEvents) != 0 {
					t.Errorf("read actions must not be audited, got %+v", nats.vehicleEvents)
				}
				return
			}
			if len(nats.vehicleEvents) != 1 || nats.vehicleEvents[0].Action != tt.expectedEvent {
				t.Fatalf("expected one %s event, got %+v", tt.expectedEvent, nats.vehicleEvents)
			}
			if nats.vehicleEvents[0].OwnerID != "owner-1" || nats.vehicleEvents[0].EventID == "" {
				t.Errorf("unexpected event: %+v", nats.vehicleEvents[0])
			}
		})
	}
}

func TestVehicleCreateNormalizesNumber(t *testing.T) {
	repo := &mockVehicleRepository{}
	svc := NewVehicleService(repo, &mockNATSClient{}, zaptest.NewLogger(t))

	result, err := svc.Handle(context.Background(), "owner-1", ActionCreate, map[string]any{"vehicleNumber": "ka-03 nc 5479"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := result.(*types.VehicleSummary)
	if v.Number != "KA03NC5479" {
		t.Errorf("expected normalized number, got %s", v.Number)
	}
}

func TestVehicleHandleErrors(t *testing.T) {
	t.Run("empty_owner", func(t *testing.T) {
		svc := NewVehicleService(&mockVehicleRepository{}, &mockNATSClient{}, zaptest.NewLogger(t))
		if _, err := svc.Handle(context.Background(), "", ActionList, nil); err == nil {
			t.Error("expected error for empty owner")
		}
	})

	t.Run("not_found_passes_through", func(t *testing.T) {
		repo := &mockVehicleRepository{deleteErr: repository.ErrNotFound}
		nats := &mockNATSClient{}
		svc := NewVehicleService(repo, nats, zaptest.NewLogger(t))

		_, err := svc.Handle(context.Background(), "owner-1", ActionDelete, map[string]any{"id": "3f1c1b9e-0000-4000-8000-000000000000"})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if len(nats.vehicleEvents) != 0 {
			t.Error("failed delete must not be audited")
		}
	})

	t.Run("conflict_passes_through", func(t *testing.T) {
		repo := &mockVehicleRepository{createErr: fmt.Errorf("vehicle KA03NC5479: %w", repository.ErrConflict)}
		nats := &mockNATSClient{}
		svc := NewVehicleService(repo, nats, zaptest.NewLogger(t))

		_, err := svc.Handle(context.Background(), "owner-1", ActionCreate, map[string]any{"vehicleNumber": "KA03NC5479"})
		if !errors.Is(err, repository.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if len(nats.vehicleEvents) != 0 {
			t.Error("failed create must not be audited")
		}
	})

	t.Run("audit_failure_is_swallowed", func(t *testing.T) {
		nats := &mockNATSClient{publishErr: errors.New("nats down")}
		svc := NewVehicleService(&mockVehicleRepository{}, nats, zaptest.NewLogger(t))

		if _, err := svc.Handle(context.Background(), "owner-1", ActionDelete, map[string]any{"id": vehicleID}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
