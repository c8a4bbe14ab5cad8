package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fleet_gateway/types"
)

const (
	SubjectVerificationCompleted = "verification.completed"
	SubjectVehicleChanged        = "vehicle.changed"
)

type NATSClient interface {
	PublishVerificationCompleted(ctx context.Context, event *types.VerificationEvent) error
	PublishVehicleChanged(ctx context.Context, event *types.VehicleEvent) error
	SubscribeToVerificationCompleted(ctx context.Context, handler func(*types.VerificationEvent)) error
	Close()
}

// natsConn: подмножество *nats.Conn
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

type natsClient struct {
	conn   natsConn
	logger *zap.Logger
}

func NewNATSClient(url string, logger *zap.Logger) (NATSClient, error) {
	conn, err := nats.Connect(url, nats.Name("fleet-gateway"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &natsClient{
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *natsClient) publish(subject string, v any, id string) error {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal event", zap.Error(err), zap.String("subject", subject))
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.Error("failed to publish event", zap.Error(err), zap.String("subject", subject), zap.String("id", id))
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}

	c.logger.Debug("event published", zap.String("subject", subject), zap.String("id", id))
	return nil
}

func (c *natsClient) PublishVerificationCompleted(ctx context.Context, event *types.VerificationEvent) error {
	return c.publish(SubjectVerificationCompleted, event, event.VerificationID)
}

// PublishVehicleChanged пишет событие аудита по записи vehicles
func (c *natsClient) PublishVehicleChanged(ctx context.Context, event *types.VehicleEvent) error {
	return c.publish(SubjectVehicleChanged, event, event.EventID)
}

func (c *natsClient) SubscribeToVerificationCompleted(ctx context.Context, handler func(*types.VerificationEvent)) error {
	_, err := c.conn.Subscribe(SubjectVerificationCompleted, func(msg *nats.Msg) {
		var event types.VerificationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Error("failed to unmarshal verification completed message", zap.Error(err))
			return
		}

		handler(&event)
		c.logger.Debug("verification completed message processed",
			zap.String("verification_id", event.VerificationID), zap.String("status", string(event.Status)))
	})
	if err != nil {
		c.logger.Error("failed to subscribe to verification completed", zap.Error(err))
		return fmt.Errorf("failed to subscribe to verification completed: %w", err)
	}

	c.logger.Info("subscribed to verification completed messages")
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}

// noopClient используется, когда NATS_URL пуст: события только логируются
type noopClient struct {
	logger *zap.Logger
}

func NewNoopClient(logger *zap.Logger) NATSClient {
	return &noopClient{logger: logger}
}

func (c *noopClient) PublishVerificationCompleted(ctx context.Context, event *types.VerificationEvent) error {
	c.logger.Debug("event dropped, NATS disabled", zap.String("subject", SubjectVerificationCompleted), zap.String("id", event.VerificationID))
	return nil
}

func (c *noopClient) PublishVehicleChanged(ctx context.Context, event *types.VehicleEvent) error {
	c.logger.Debug("event dropped, NATS disabled", zap.String("subject", SubjectVehicleChanged), zap.String("id", event.EventID))
	return nil
}

func (c *noopClient) SubscribeToVerificationCompleted(ctx context.Context, handler func(*types.VerificationEvent)) error {
	return nil
}

func (c *noopClient) Close() {}
