package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smsdispatch/internal/models"
)

// BulkGateName is the registry name of the BulkGate gateway
const BulkGateName = "bulkgate"

// BulkGateConfig holds BulkGate credentials
type BulkGateConfig struct {
	URL              string
	ApplicationID    string
	ApplicationToken string
	DefaultSender    string
	Timeout          time.Duration
}

// BulkGate sends through the BulkGate simple transactional API
type BulkGate struct {
	cfg    BulkGateConfig
	client *http.Client
}

// NewBulkGate creates a BulkGate client
func NewBulkGate(cfg BulkGateConfig) *BulkGate {
	return &BulkGate{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Gateway
func (g *BulkGate) Name() string { return BulkGateName }

type bulkGateRequest struct {
	ApplicationID    string `json:"application_id"`
	ApplicationToken string `json:"application_token"`
	Number           string `json:"number"`
	Text             string `json:"text"`
	Unicode          bool   `json:"unicode"`
	SenderID         string `json:"sender_id"`
	SenderIDValue    string `json:"sender_id_value,omitempty"`
	Tag              string `json:"tag,omitempty"`
}

type bulkGateResponse struct {
	Data *struct {
		Status string `json:"status"`
		SmsID  string `json:"sms_id"`
		Number string `json:"number"`
	} `json:"data"`
	Type  string `json:"type"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Send implements Gateway
func (g *BulkGate) Send(ctx context.Context, msg Message) Result {
	from := msg.From
	if from == "" {
		from = g.cfg.DefaultSender
	}

	req := bulkGateRequest{
		ApplicationID:    g.cfg.ApplicationID,
		ApplicationToken: g.cfg.ApplicationToken,
		Number:           strings.TrimPrefix(msg.To, "+"),
		Text:             msg.Body,
		Unicode:          msg.Encoding == models.EncodingUCS2,
		SenderID:         "gSystem",
		Tag:              msg.Reference,
	}
	if from != "" {
		req.SenderID = "gText"
		req.SenderIDValue = from
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return failed(models.ErrCodeSystem, fmt.Sprintf("failed to encode request: %v", err))
	}

	res, body, err := postJSON(ctx, g.client, g.cfg.URL, payload, nil)
	req.ApplicationToken = "***"
	if redacted, mErr := json.Marshal(req); mErr == nil {
		res.Request = redacted
	}
	if err != nil {
		if detail := bulkGateError(body); detail != "" {
			res.ErrorDetail = detail
		}
		return res
	}

	var parsed bulkGateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = fmt.Sprintf("invalid response: %v", err)
		return res
	}
	if parsed.Data == nil || parsed.Data.SmsID == "" {
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = firstNonEmpty(parsed.Error, parsed.Type, "response missing sms_id")
		return res
	}
	if parsed.Data.Status != "" && parsed.Data.Status != "accepted" && parsed.Data.Status != "scheduled" {
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = "message status " + parsed.Data.Status
		return res
	}

	res.Accepted = true
	res.MessageID = parsed.Data.SmsID
	return res
}

func bulkGateError(body []byte) string {
	var parsed bulkGateResponse
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Error == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s)", parsed.Error, parsed.Type)
}

type bulkGateReport struct {
	ID     string `json:"id"`
	SmsID  string `json:"sms_id"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// ParseDeliveryReports accepts a single report object or an array.
// Status 1 is delivered, every other final code is a failure.
func (g *BulkGate) ParseDeliveryReports(body []byte) ([]models.DeliveryReport, error) {
	var items []json.RawMessage
	if err := decodeOneOrMany(body, &items); err != nil {
		return nil, fmt.Errorf("invalid bulkgate report: %w", err)
	}

	reports := make([]models.DeliveryReport, 0, len(items))
	for _, raw := range items {
		var item bulkGateReport
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("invalid bulkgate report: %w", err)
		}
		id := firstNonEmpty(item.SmsID, item.ID)
		if id == "" {
			return nil, fmt.Errorf("bulkgate report missing id")
		}

		status := models.DeliveryFailed
		if item.Status == 1 {
			status = models.DeliveryDelivered
		}
		reports = append(reports, models.DeliveryReport{
			Gateway:          BulkGateName,
			GatewayMessageID: id,
			Status:           status,
			ErrorDetail:      item.Error,
			Payload:          raw,
		})
	}
	return reports, nil
}

func decodeOneOrMany(body []byte, out *[]json.RawMessage) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal([]byte(trimmed), out)
	}
	if !json.Valid([]byte(trimmed)) {
		return fmt.Errorf("malformed JSON")
	}
	*out = []json.RawMessage{json.RawMessage(trimmed)}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
