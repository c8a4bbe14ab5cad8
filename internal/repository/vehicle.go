package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fleet_gateway/types"
)

type VehicleRepository interface {
	Create(ctx context.Context, ownerID string, patch types.VehiclePatch) (*types.VehicleSummary, error)
	Update(ctx context.Context, ownerID, id string, patch types.VehiclePatch) (*types.VehicleSummary, error)
	Delete(ctx context.Context, ownerID, id string) error
	Get(ctx context.Context, ownerID, id string) (*types.VehicleSummary, error)
	List(ctx context.Context, ownerID string) ([]*types.VehicleSummary, error)
	// SetDriver assigns the driver; nil unassigns.
	SetDriver(ctx context.Context, ownerID, id string, driverID *string) (*types.VehicleSummary, error)
	// MirrorVerification upserts the summary row for (owner, number), keeping
	// stored values for every nil field of the patch.
	MirrorVerification(ctx context.Context, ownerID, number string, patch types.VehiclePatch) error
}

type vehicleRepository struct {
	db     DB
	logger *zap.Logger
}

func NewVehicleRepository(db DB, logger *zap.Logger) VehicleRepository {
	return &vehicleRepository{
		db:     db,
		logger: logger,
	}
}

const vehicleColumns = `id, owner_id, number, make, model, year, fuel_type, chassis_number, engine_number,
	fastag_balance, fastag_linked, fastag_tag_id, challan_count, driver_id, created_at, updated_at`

func scanVehicle(row pgx.Row) (*types.VehicleSummary, error) {
	var v types.VehicleSummary
	err := row.Scan(&v.ID, &v.OwnerID, &v.Number, &v.Make, &v.Model, &v.Year, &v.FuelType,
		&v.ChassisNumber, &v.EngineNumber, &v.FastagBalance, &v.FastagLinked, &v.FastagTagID,
		&v.ChallanCount, &v.DriverID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func patchArgs(p types.VehiclePatch) []any {
	return []any{p.Make, p.Model, p.Year, p.FuelType, p.ChassisNumber, p.EngineNumber,
		p.FastagBalance, p.FastagLinked, p.FastagTagID, p.ChallanCount}
}

func (r *vehicleRepository) Create(ctx context.Context, ownerID string, patch types.VehiclePatch) (*types.VehicleSummary, error) {
	if patch.Number == nil || *patch.Number == "" {
		return nil, fmt.Errorf("vehicle number cannot be empty")
	}

	query := `
		INSERT INTO vehicles (id, owner_id, number, make, model, year, fuel_type, chassis_number, engine_number,
			fastag_balance, fastag_linked, fastag_tag_id, challan_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + vehicleColumns

	args := append([]any{uuid.New().String(), ownerID, *patch.Number}, patchArgs(patch)...)
	v, err := scanVehicle(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("vehicle %s: %w", *patch.Number, ErrConflict)
		}
		r.logger.Error("failed to create vehicle", zap.Error(err), zap.String("owner_id", ownerID), zap.String("number", *patch.Number))
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}

	r.logger.Info("vehicle created", zap.String("id", v.ID), zap.String("number", v.Number))
	return v, nil
}

func (r *vehicleRepository) Update(ctx context.Context, ownerID, id string, patch types.VehiclePatch) (*types.VehicleSummary, error) {
	query := `
		UPDATE vehicles SET
			number = COALESCE($3, number),
			make = COALESCE($4, make),
			model = COALESCE($5, model),
			year = COALESCE($6, year),
			fuel_type = COALESCE($7, fuel_type),
			chassis_number = COALESCE($8, chassis_number),
			engine_number = COALESCE($9, engine_number),
			fastag_balance = COALESCE($10, fastag_balance),
			fastag_linked = COALESCE($11, fastag_linked),
			fastag_tag_id = COALESCE($12, fastag_tag_id),
			challan_count = COALESCE($13, challan_count),
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + vehicleColumns

	args := append([]any{id, ownerID, patch.Number}, patchArgs(patch)...)
	v, err := scanVehicle(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("vehicle %s: %w", id, ErrConflict)
		}
		r.logger.Error("failed to update vehicle", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to update vehicle: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vehicles WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		r.logger.Error("failed to delete vehicle", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *vehicleRepository) Get(ctx context.Context, ownerID, id string) (*types.VehicleSummary, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND owner_id = $2`

	v, err := scanVehicle(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to get vehicle", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) List(ctx context.Context, ownerID string) ([]*types.VehicleSummary, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("failed to list vehicles", zap.Error(err), zap.String("owner_id", ownerID))
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := []*types.VehicleSummary{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			r.logger.Error("failed to scan vehicle", zap.Error(err))
			continue
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}

	return vehicles, nil
}

func (r *vehicleRepository) SetDriver(ctx context.Context, ownerID, id string, driverID *string) (*types.VehicleSummary, error) {
	query := `UPDATE vehicles SET driver_id = $3, updated_at = now() WHERE id = $1 AND owner_id = $2 RETURNING ` + vehicleColumns

	v, err := scanVehicle(r.db.QueryRow(ctx, query, id, ownerID, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to set vehicle driver", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to set vehicle driver: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) MirrorVerification(ctx context.Context, ownerID, number string, patch types.VehiclePatch) error {
	if patch.IsEmpty() {
		return nil
	}

	query := `
		INSERT INTO vehicles (id, owner_id, number, make, model, year, fuel_type, chassis_number, engine_number,
			fastag_balance, fastag_linked, fastag_tag_id, challan_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (owner_id, number) DO UPDATE SET
			make = COALESCE(EXCLUDED.make, vehicles.make),
			model = COALESCE(EXCLUDED.model, vehicles.model),
			year = COALESCE(EXCLUDED.year, vehicles.year),
			fuel_type = COALESCE(EXCLUDED.fuel_type, vehicles.fuel_type),
			chassis_number = COALESCE(EXCLUDED.chassis_number, vehicles.chassis_number),
			engine_number = COALESCE(EXCLUDED.engine_number, vehicles.engine_number),
			fastag_balance = COALESCE(EXCLUDED.fastag_balance, vehicles.fastag_balance),
			fastag_linked = COALESCE(EXCLUDED.fastag_linked, vehicles.fastag_linked),
			fastag_tag_id = COALESCE(EXCLUDED.fastag_tag_id, vehicles.fastag_tag_id),
			challan_count = COALESCE(EXCLUDED.challan_count, vehicles.challan_count),
			updated_at = now()
	`

	args := append([]any{uuid.New().String(), ownerID, number}, patchArgs(patch)...)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mirror verification into vehicles: %w", err)
	}

	r.logger.Debug("vehicle summary mirrored", zap.String("owner_id", ownerID), zap.String("number", number))
	return nil
}
