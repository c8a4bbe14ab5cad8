package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fleet_gateway/internal/metrics"
	"fleet_gateway/types"
)

type VerificationRepository interface {
	// Lookup returns the record only if it is completed and younger than the TTL.
	Lookup(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error)
	Store(ctx context.Context, record *types.VerificationRecord) error
}

type verificationRepository struct {
	db     DB
	hot    HotCache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewVerificationRepository: hot может быть nil, тогда читаем только из Postgres
func NewVerificationRepository(db DB, hot HotCache, ttl time.Duration, logger *zap.Logger) VerificationRepository {
	return &verificationRepository{
		db:     db,
		hot:    hot,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

const selectRecordQuery = `
	SELECT id, caller_id, vehicle_number, service, status, payload, error_message, created_at, updated_at
	FROM verification_records
	WHERE caller_id = $1 AND vehicle_number = $2 AND service = $3
`

func (r *verificationRepository) Lookup(ctx context.Context, callerID, vehicleNumber string, service types.Service) (*types.VerificationRecord, error) {
	now := r.now()

	if r.hot != nil {
		if record, ok := r.hot.Get(ctx, callerID, vehicleNumber, service); ok && record.IsFresh(now, r.ttl) {
			metrics.VerificationCacheHitsTotal.WithLabelValues("redis").Inc()
			return record, nil
		}
	}

	var (
		record  types.VerificationRecord
		payload []byte
		svc     string
		status  string
	)
	err := r.db.QueryRow(ctx, selectRecordQuery, callerID, vehicleNumber, string(service)).
		Scan(&record.ID, &record.CallerID, &record.VehicleNumber, &svc, &status, &payload, &record.ErrorMessage, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to lookup verification record", zap.Error(err),
			zap.String("caller_id", callerID), zap.String("vehicle_number", vehicleNumber), zap.String("service", string(service)))
		return nil, fmt.Errorf("failed to lookup verification record: %w", err)
	}
	record.Service = types.Service(svc)
	record.Status = types.VerificationStatus(status)
	record.Payload = payload

	if !record.IsFresh(now, r.ttl) {
		return nil, nil
	}

	metrics.VerificationCacheHitsTotal.WithLabelValues("postgres").Inc()
	if r.hot != nil {
		r.hot.Put(ctx, &record, r.ttl-now.Sub(record.CreatedAt))
	}
	return &record, nil
}

// Store upserts by (caller_id, vehicle_number, service); the last write wins.
func (r *verificationRepository) Store(ctx context.Context, record *types.VerificationRecord) error {
	query := `
		INSERT INTO verification_records (id, caller_id, vehicle_number, service, status, payload, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (caller_id, vehicle_number, service) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			error_message = EXCLUDED.error_message,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	var payload any
	if len(record.Payload) > 0 {
		payload = []byte(record.Payload)
	}

	err := r.db.QueryRow(ctx, query,
		record.ID, record.CallerID, record.VehicleNumber, string(record.Service), string(record.Status),
		payload, record.ErrorMessage, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID)
	if err != nil {
		r.logger.Error("failed to store verification record", zap.Error(err),
			zap.String("vehicle_number", record.VehicleNumber), zap.String("service", string(record.Service)),
			zap.String("status", string(record.Status)))
		return fmt.Errorf("failed to store verification record: %w", err)
	}

	if r.hot != nil {
		if record.Status == types.VerificationStatusCompleted {
			r.hot.Put(ctx, record, r.ttl-r.now().Sub(record.CreatedAt))
		} else {
			r.hot.Invalidate(ctx, record.CallerID, record.VehicleNumber, record.Service)
		}
	}

	r.logger.Debug("verification record stored",
		zap.String("id", record.ID), zap.String("service", string(record.Service)), zap.String("status", string(record.Status)))
	return nil
}
