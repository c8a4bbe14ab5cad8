package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet_gateway/internal/messaging"
	"fleet_gateway/internal/normalizer"
	"fleet_gateway/internal/repository"
	"fleet_gateway/types"
)

const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionGet            = "get"
	ActionList           = "list"
	ActionAssignDriver   = "assign-driver"
	ActionUnassignDriver = "unassign-driver"
)

// recordActions работают с одной существующей записью и требуют id
var recordActions = map[string]bool{
	ActionGet:            true,
	ActionUpdate:         true,
	ActionDelete:         true,
	ActionAssignDriver:   true,
	ActionUnassignDriver: true,
}

type VehicleService interface {
	// Handle runs one CRUD action for the owner; raw is the decoded request body.
	Handle(ctx context.Context, ownerID, action string, raw map[string]any) (any, error)
}

type vehicleService struct {
	repo   repository.VehicleRepository
	nats   messaging.NATSClient
	now    func() time.Time
	logger *zap.Logger
}

func NewVehicleService(repo repository.VehicleRepository, nats messaging.NATSClient, logger *zap.Logger) VehicleService {
	return &vehicleService{
		repo:   repo,
		nats:   nats,
		now:    time.Now,
		logger: logger,
	}
}

func (s *vehicleService) Handle(ctx context.Context, ownerID, action string, raw map[string]any) (any, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id cannot be empty")
	}

	switch action {
	case ActionList:
		return s.repo.List(ctx, ownerID)
	case ActionCreate:
		patch := normalizer.VehiclePatch(raw)
		if patch.Number == nil {
			return nil, normalizer.NewValidationError(normalizer.CodeMissingVehicleID, "vehicle number is required")
		}
		v, err := s.repo.Create(ctx, ownerID, patch)
		if err != nil {
			return nil, err
		}
		s.audit(ctx, action, v.ID, ownerID, v.Number, "")
		return v, nil
	}

	if !recordActions[action] {
		return nil, normalizer.NewValidationError(normalizer.CodeInvalidAction, fmt.Sprintf("unsupported vehicle action %q", action))
	}

	id := normalizer.VehicleRecordID(raw)
	if id == "" {
		return nil, normalizer.NewValidationError(normalizer.CodeMissingID, "vehicle id is required")
	}
	// id уходит в колонку uuid: мусор отсекаем до запроса
	if _, err := uuid.Parse(id); err != nil {
		return nil, normalizer.NewValidationError(normalizer.CodeInvalidID, fmt.Sprintf("vehicle id %q is not a valid uuid", id))
	}

	switch action {
	case ActionGet:
		return s.repo.Get(ctx, ownerID, id)

	case ActionUpdate:
		patch := normalizer.VehiclePatch(raw)
		if patch.IsEmpty() {
			return nil, normalizer.NewValidationError(normalizer.CodeEmptyUpdate, "nothing to update")
		}
		v, err := s.repo.Update(ctx, ownerID, id, patch)
		if err != nil {
			return nil, err
		}
		s.audit(ctx, action, id, ownerID, v.Number, "")
		return v, nil

	case ActionDelete:
		if err := s.repo.Delete(ctx, ownerID, id); err != nil {
			return nil, err
		}
		s.audit(ctx, action, id, ownerID, "", "")
		return map[string]any{"id": id, "deleted": true}, nil

	case ActionAssignDriver:
		driverID := normalizer.DriverID(raw)
		if driverID == "" {
			return nil, normalizer.NewValidationError(normalizer.CodeMissingDriverID, "driver id is required")
		}
		v, err := s.repo.SetDriver(ctx, ownerID, id, &driverID)
		if err != nil {
			return nil, err
		}
		s.audit(ctx, action, id, ownerID, v.Number, driverID)
		return v, nil

	case ActionUnassignDriver:
		v, err := s.repo.SetDriver(ctx, ownerID, id, nil)
		if err != nil {
			return nil, err
		}
		s.audit(ctx, action, id, ownerID, v.Number, "")
		return v, nil
	}

	return nil, normalizer.NewValidationError(normalizer.CodeInvalidAction, fmt.Sprintf("unsupported vehicle action %q", action))
}

// audit публикует vehicle.changed; ошибка публикации не отменяет изменение
func (s *vehicleService) audit(ctx context.Context, action, vehicleID, ownerID, number, driverID string) {
	event := &types.VehicleEvent{
		EventID:    uuid.New().String(),
		Action:     action,
		VehicleID:  vehicleID,
		OwnerID:    ownerID,
		Number:     number,
		DriverID:   driverID,
		OccurredAt: s.now(),
	}
	if err := s.nats.PublishVehicleChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish vehicle audit event", zap.String("vehicle_id", vehicleID), zap.String("action", action), zap.Error(err))
	}
	s.logger.Info("vehicle changed", zap.String("vehicle_id", vehicleID), zap.String("action", action))
}
