package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet_gateway/internal/config"
	"fleet_gateway/internal/messaging"
	"fleet_gateway/internal/metrics"
	"fleet_gateway/internal/normalizer"
	"fleet_gateway/internal/repository"
	"fleet_gateway/internal/upstream"
	"fleet_gateway/types"
)

// VerifyResult is what the gateway renders into the success envelope.
// Data is a normalized record, or the stored JSON payload on a cache hit.
type VerifyResult struct {
	Data       any
	Cached     bool
	VerifiedAt time.Time
}

type VerificationService interface {
	Verify(ctx context.Context, req *types.VerificationRequest) (*VerifyResult, error)
}

type verificationService struct {
	repo     repository.VerificationRepository
	vehicles repository.VehicleRepository
	client   upstream.Client
	nats     messaging.NATSClient
	cfg      config.GatewayConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewVerificationService: vehicles может быть nil, тогда сводка по машине не обновляется
func NewVerificationService(
	repo repository.VerificationRepository,
	vehicles repository.VehicleRepository,
	client upstream.Client,
	nats messaging.NATSClient,
	cfg config.GatewayConfig,
	logger *zap.Logger,
) VerificationService {
	return &verificationService{
		repo:     repo,
		vehicles: vehicles,
		client:   client,
		nats:     nats,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *verificationService) Verify(ctx context.Context, req *types.VerificationRequest) (*VerifyResult, error) {
	if req == nil {
		return nil, fmt.Errorf("verification request cannot be nil")
	}
	log := s.logger.With(
		zap.String("service", string(req.Service)),
		zap.String("vehicle_number", req.VehicleNumber),
		zap.String("caller_id", req.CallerID))

	if !req.ForceRefresh {
		if result := s.lookup(ctx, req, log); result != nil {
			metrics.VerificationRequestsTotal.WithLabelValues(string(req.Service), "cache_hit").Inc()
			return result, nil
		}
	}

	// без ключа не трогаем сохранённую запись
	if err := s.client.Configured(); err != nil {
		metrics.VerificationRequestsTotal.WithLabelValues(string(req.Service), outcome(err)).Inc()
		log.Error("upstream is not configured", zap.Error(err))
		return nil, err
	}

	record := &types.VerificationRecord{
		ID:            uuid.New().String(),
		CallerID:      req.CallerID,
		VehicleNumber: req.VehicleNumber,
		Service:       req.Service,
		Status:        types.VerificationStatusPending,
		CreatedAt:     s.now(),
	}
	record.UpdatedAt = record.CreatedAt
	s.store(ctx, record, log)

	result, err := s.callWithRetry(ctx, req, log)
	if err == nil && !result.OK {
		err = result.Err()
	}
	if err != nil {
		metrics.VerificationRequestsTotal.WithLabelValues(string(req.Service), outcome(err)).Inc()
		s.fail(ctx, record, err, log)
		return nil, err
	}

	data := normalizer.NormalizeResponse(req.Service, req.VehicleNumber, result.JSON)
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized payload: %w", err)
	}

	completedAt := s.now()
	record.Status = types.VerificationStatusCompleted
	record.Payload = payload
	record.ErrorMessage = nil
	record.CreatedAt = completedAt
	record.UpdatedAt = completedAt
	s.store(ctx, record, log)
	s.mirror(ctx, req, data, log)
	s.publish(ctx, record, "")

	metrics.VerificationRequestsTotal.WithLabelValues(string(req.Service), "success").Inc()
	log.Info("verification completed", zap.String("verification_id", record.ID))

	return &VerifyResult{
		Data:       data,
		Cached:     false,
		VerifiedAt: completedAt,
	}, nil
}

func (s *verificationService) lookup(ctx context.Context, req *types.VerificationRequest, log *zap.Logger) *VerifyResult {
	record, err := s.repo.Lookup(ctx, req.CallerID, req.VehicleNumber, req.Service)
	if err != nil {
		// недоступный кэш не должен ломать проверку
		log.Warn("cache lookup failed, calling upstream", zap.Error(err))
		return nil
	}
	if record == nil {
		return nil
	}

	log.Info("verification served from cache", zap.String("verification_id", record.ID))
	return &VerifyResult{
		Data:       json.RawMessage(record.Payload),
		Cached:     true,
		VerifiedAt: record.CreatedAt,
	}
}

// callWithRetry repeats the call only for timeouts and transport failures.
func (s *verificationService) callWithRetry(ctx context.Context, req *types.VerificationRequest, log *zap.Logger) (*upstream.Result, error) {
	payload := normalizer.UpstreamPayload(req)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			log.Warn("retrying upstream call", zap.Int("attempt", attempt+1), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(s.cfg.RetryDelay()):
			}
		}

		result, err := s.client.Call(ctx, req.Service, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	return errors.Is(err, upstream.ErrUpstreamTimeout) || errors.Is(err, upstream.ErrUpstreamNetwork)
}

func outcome(err error) string {
	var httpErr *upstream.HTTPError
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, upstream.ErrUpstreamNetwork):
		return "network_error"
	case errors.Is(err, upstream.ErrNotConfigured):
		return "config_error"
	case errors.As(err, &httpErr):
		return "upstream_error"
	}
	return "error"
}

func (s *verificationService) fail(ctx context.Context, record *types.VerificationRecord, cause error, log *zap.Logger) {
	msg := upstream.Truncate(cause.Error(), upstream.PreviewLimit)
	record.Status = types.VerificationStatusFailed
	record.ErrorMessage = &msg
	record.UpdatedAt = s.now()
	s.store(ctx, record, log)
	s.publish(ctx, record, msg)

	log.Warn("verification failed", zap.String("verification_id", record.ID), zap.Error(cause))
}

// store, mirror и publish не влияют на ответ клиенту: ошибки только логируются
func (s *verificationService) store(ctx context.Context, record *types.VerificationRecord, log *zap.Logger) {
	if err := s.repo.Store(ctx, record); err != nil {
		metrics.PersistenceWarningsTotal.WithLabelValues("verification_record").Inc()
		log.Warn("failed to persist verification record",
			zap.String("status", string(record.Status)), zap.Error(err))
	}
}

func (s *verificationService) mirror(ctx context.Context, req *types.VerificationRequest, data any, log *zap.Logger) {
	if s.vehicles == nil {
		return
	}
	if err := s.vehicles.MirrorVerification(ctx, req.CallerID, req.VehicleNumber, normalizer.MirrorPatch(data)); err != nil {
		metrics.PersistenceWarningsTotal.WithLabelValues("vehicle_mirror").Inc()
		log.Warn("failed to mirror verification into vehicle summary", zap.Error(err))
	}
}

func (s *verificationService) publish(ctx context.Context, record *types.VerificationRecord, errMsg string) {
	event := &types.VerificationEvent{
		VerificationID: record.ID,
		CallerID:       record.CallerID,
		VehicleNumber:  record.VehicleNumber,
		Service:        record.Service,
		Status:         record.Status,
		Error:          errMsg,
		OccurredAt:     record.UpdatedAt,
	}
	if err := s.nats.PublishVerificationCompleted(ctx, event); err != nil {
		s.logger.Warn("failed to publish verification event", zap.String("verification_id", record.ID), zap.Error(err))
	}
}
