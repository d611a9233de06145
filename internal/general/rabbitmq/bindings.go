package rabbitmq

import (
	"fmt"

	"ride-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declareTopology sets up the tracking fanout exchange plus the audit queue
// that lets out-of-process consumers (audit log, notification workers)
// observe the event stream without holding a WebSocket.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(contracts.ExchangeTrackingFanout, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.ExchangeTrackingFanout, err)
	}

	if _, err := ch.QueueDeclare(contracts.QueueTrackingAudit, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.QueueTrackingAudit, err)
	}

	if err := ch.QueueBind(contracts.QueueTrackingAudit, "", contracts.ExchangeTrackingFanout, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", contracts.QueueTrackingAudit, contracts.ExchangeTrackingFanout, err)
	}

	return nil
}
