package repository

import (
	"context"
	"database/sql"
	"fmt"

	"smsdispatch/internal/models"
)

type deliveryReportRepository struct {
	db *sql.DB
}

// NewDeliveryReportRepository creates a new delivery report repository
func NewDeliveryReportRepository(db *sql.DB) DeliveryReportRepository {
	return &deliveryReportRepository{db: db}
}

// Create appends a report
func (r *deliveryReportRepository) Create(ctx context.Context, report *models.DeliveryReport) error {
	payload := []byte(report.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO delivery_reports (id, gateway, gateway_message_id, status, error_detail, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING received_at
	`,
		report.ID,
		report.Gateway,
		report.GatewayMessageID,
		report.Status,
		report.ErrorDetail,
		payload,
	).Scan(&report.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to create delivery report: %w", err)
	}
	return nil
}
