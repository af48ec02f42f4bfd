package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"smsdispatch/internal/models"
)

// MockName is the registry name of the simulated gateway
const MockName = "mock"

// MockGateway simulates a provider with latency and a success rate
type MockGateway struct {
	name        string
	successRate float64
	minLatency  time.Duration
	maxLatency  time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewMockGateway creates a simulated gateway.
// successRate: probability of successful send (0.0 to 1.0)
func NewMockGateway(name string, successRate float64, minLatency, maxLatency time.Duration) *MockGateway {
	if successRate < 0.0 {
		successRate = 0.0
	}
	if successRate > 1.0 {
		successRate = 1.0
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	if name == "" {
		name = MockName
	}

	return &MockGateway{
		name:        name,
		successRate: successRate,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Gateway
func (g *MockGateway) Name() string { return g.name }

// Send implements Gateway
func (g *MockGateway) Send(ctx context.Context, msg Message) Result {
	start := time.Now()

	g.mu.Lock()
	latency := g.minLatency
	if spread := g.maxLatency - g.minLatency; spread > 0 {
		latency += time.Duration(g.rand.Int63n(int64(spread)))
	}
	roll := g.rand.Float64()
	rate := g.successRate
	failure := mockFailures[g.rand.Intn(len(mockFailures))]
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			res := failed(models.ErrCodeNetwork, fmt.Sprintf("request failed: %v", ctx.Err()))
			res.Latency = time.Since(start)
			return res
		case <-time.After(latency):
		}
	}

	var res Result
	if roll < rate {
		res = accepted(ulid.Make().String())
	} else {
		res = failed(failure.code, fmt.Sprintf("failed to send SMS to %s: %s", msg.To, failure.detail))
	}
	res.Latency = time.Since(start)
	return res
}

var mockFailures = []struct{ code, detail string }{
	{models.ErrCodeNetwork, "network timeout"},
	{models.ErrCodeGateway, "invalid phone number"},
	{models.ErrCodeNetwork, "rate limit exceeded"},
	{models.ErrCodeNetwork, "service temporarily unavailable"},
	{models.ErrCodeGateway, "insufficient balance"},
}

type mockReport struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// ParseDeliveryReports accepts {"message_id","status"} objects
func (g *MockGateway) ParseDeliveryReports(body []byte) ([]models.DeliveryReport, error) {
	var items []json.RawMessage
	if err := decodeOneOrMany(body, &items); err != nil {
		return nil, fmt.Errorf("invalid mock report: %w", err)
	}

	reports := make([]models.DeliveryReport, 0, len(items))
	for _, raw := range items {
		var item mockReport
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("invalid mock report: %w", err)
		}
		if item.MessageID == "" {
			return nil, fmt.Errorf("mock report missing message_id")
		}
		status := models.DeliveryFailed
		if item.Status == models.DeliveryDelivered {
			status = models.DeliveryDelivered
		}
		reports = append(reports, models.DeliveryReport{
			Gateway:          g.name,
			GatewayMessageID: item.MessageID,
			Status:           status,
			ErrorDetail:      item.Error,
			Payload:          raw,
		})
	}
	return reports, nil
}

// GetSuccessRate returns the configured success rate
func (g *MockGateway) GetSuccessRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.successRate
}

// SetSuccessRate updates the success rate
func (g *MockGateway) SetSuccessRate(rate float64) {
	if rate < 0.0 {
		rate = 0.0
	}
	if rate > 1.0 {
		rate = 1.0
	}
	g.mu.Lock()
	g.successRate = rate
	g.mu.Unlock()
}
