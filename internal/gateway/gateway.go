// Package gateway holds the outbound SMS gateway clients and the router
// that chooses between them.
package gateway

import (
	"context"
	"sort"
	"time"

	"smsdispatch/internal/models"
)

// Message is one outbound SMS
type Message struct {
	To       string
	Body     string
	From     string
	Encoding models.Encoding
	// Reference is echoed back by gateways that support client references
	Reference string
}

// Result is the uniform outcome of a gateway send. Request and Response
// carry the raw payloads for audit logging.
type Result struct {
	Accepted    bool
	MessageID   string
	ErrorCode   string
	ErrorDetail string
	StatusCode  int
	Request     []byte
	Response    []byte
	Latency     time.Duration
}

// Gateway is implemented once per SMS provider
type Gateway interface {
	Name() string
	Send(ctx context.Context, msg Message) Result
	ParseDeliveryReports(body []byte) ([]models.DeliveryReport, error)
}

func accepted(id string) Result {
	return Result{Accepted: true, MessageID: id}
}

func failed(code, detail string) Result {
	return Result{ErrorCode: code, ErrorDetail: detail}
}

// Registry maps gateway names to implementations
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry creates a registry holding gws
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gws))}
	for _, gw := range gws {
		r.Register(gw)
	}
	return r
}

// Register adds or replaces a gateway
func (r *Registry) Register(gw Gateway) {
	r.gateways[gw.Name()] = gw
}

// Get looks up a gateway by name
func (r *Registry) Get(name string) (Gateway, bool) {
	gw, ok := r.gateways[name]
	return gw, ok
}

// Names returns the registered gateway names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
