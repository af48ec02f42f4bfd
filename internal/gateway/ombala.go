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

// OmbalaName is the registry name of the Ombala gateway
const OmbalaName = "ombala"

// OmbalaConfig holds Ombala credentials
type OmbalaConfig struct {
	URL           string
	Token         string
	DefaultSender string
	Timeout       time.Duration
}

// Ombala sends through the Ombala REST API
type Ombala struct {
	cfg    OmbalaConfig
	client *http.Client
}

// NewOmbala creates an Ombala client
func NewOmbala(cfg OmbalaConfig) *Ombala {
	return &Ombala{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Gateway
func (g *Ombala) Name() string { return OmbalaName }

type ombalaRequest struct {
	Message string `json:"message"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type ombalaResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Send implements Gateway
func (g *Ombala) Send(ctx context.Context, msg Message) Result {
	from := msg.From
	if from == "" {
		from = g.cfg.DefaultSender
	}

	payload, err := json.Marshal(ombalaRequest{
		Message: msg.Body,
		From:    from,
		To:      strings.TrimPrefix(msg.To, "+"),
	})
	if err != nil {
		return failed(models.ErrCodeSystem, fmt.Sprintf("failed to encode request: %v", err))
	}

	headers := map[string]string{"Authorization": "Token " + g.cfg.Token}
	res, body, err := postJSON(ctx, g.client, g.cfg.URL, payload, headers)
	if err != nil {
		var parsed ombalaResponse
		if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
			if detail := firstNonEmpty(parsed.Error, parsed.Message); detail != "" {
				res.ErrorDetail = detail
			}
		}
		return res
	}

	var parsed ombalaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = fmt.Sprintf("invalid response: %v", err)
		return res
	}
	if parsed.ID == "" {
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = firstNonEmpty(parsed.Error, parsed.Message, "response missing id")
		return res
	}

	res.Accepted = true
	res.MessageID = parsed.ID
	return res
}

type ombalaReport struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// ParseDeliveryReports accepts a single report object or an array
func (g *Ombala) ParseDeliveryReports(body []byte) ([]models.DeliveryReport, error) {
	var items []json.RawMessage
	if err := decodeOneOrMany(body, &items); err != nil {
		return nil, fmt.Errorf("invalid ombala report: %w", err)
	}

	reports := make([]models.DeliveryReport, 0, len(items))
	for _, raw := range items {
		var item ombalaReport
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("invalid ombala report: %w", err)
		}
		if item.ID == "" {
			return nil, fmt.Errorf("ombala report missing id")
		}

		status := models.DeliveryFailed
		if strings.EqualFold(item.Status, models.DeliveryDelivered) {
			status = models.DeliveryDelivered
		}
		reports = append(reports, models.DeliveryReport{
			Gateway:          OmbalaName,
			GatewayMessageID: item.ID,
			Status:           status,
			ErrorDetail:      item.Error,
			Payload:          raw,
		})
	}
	return reports, nil
}
