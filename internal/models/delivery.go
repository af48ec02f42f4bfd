package models

import (
	"encoding/json"
	"time"
)

// Delivery statuses reported by gateways after a target is sent
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// DeliveryReport is an inbound status callback for a sent message
type DeliveryReport struct {
	ID               string          `json:"id" db:"id"`
	Gateway          string          `json:"gateway" db:"gateway"`
	GatewayMessageID string          `json:"gateway_message_id" db:"gateway_message_id"`
	Status           string          `json:"status" db:"status"`
	ErrorDetail      string          `json:"error_detail,omitempty" db:"error_detail"`
	Payload          json.RawMessage `json:"payload" db:"payload"`
	ReceivedAt       time.Time       `json:"received_at" db:"received_at"`
}
