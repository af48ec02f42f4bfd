package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smsdispatch/internal/models"
)

func TestBulkGate_Send(t *testing.T) {
	var got bulkGateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"status":"accepted","sms_id":"tmpde1bcd4b1d1","number":"244912345678"}}`))
	}))
	defer srv.Close()

	gw := NewBulkGate(BulkGateConfig{URL: srv.URL, ApplicationID: "app", ApplicationToken: "s3cr3t", Timeout: time.Second})
	res := gw.Send(context.Background(), Message{To: "+244912345678", Body: "Olá", From: "SHOP", Encoding: models.EncodingUCS2})

	if !res.Accepted || res.MessageID != "tmpde1bcd4b1d1" {
		t.Fatalf("Send() = %+v", res)
	}
	if got.Number != "244912345678" || !got.Unicode || got.SenderID != "gText" || got.SenderIDValue != "SHOP" {
		t.Errorf("unexpected request: %+v", got)
	}
	if strings.Contains(string(res.Request), "s3cr3t") {
		t.Error("audit copy of the request must not carry the token")
	}
}

func TestBulkGate_SendErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"rejected", http.StatusBadRequest, `{"type":"invalid_phone_number","code":400,"error":"Invalid phone number"}`, models.ErrCodeGateway},
		{"server error", http.StatusBadGateway, `oops`, models.ErrCodeNetwork},
		{"throttled", http.StatusTooManyRequests, `{}`, models.ErrCodeNetwork},
		{"missing id", http.StatusOK, `{"data":{"status":"accepted"}}`, models.ErrCodeGateway},
		{"garbage", http.StatusOK, `not json`, models.ErrCodeGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			gw := NewBulkGate(BulkGateConfig{URL: srv.URL, Timeout: time.Second})
			res := gw.Send(context.Background(), Message{To: "+244912345678", Body: "hi"})
			if res.Accepted {
				t.Fatal("expected failure")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %s, want %s (%s)", res.ErrorCode, tt.wantCode, res.ErrorDetail)
			}
			if string(res.Response) != tt.body {
				t.Errorf("Response = %q, want verbatim body", res.Response)
			}
		})
	}
}

func TestBulkGate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := NewBulkGate(BulkGateConfig{URL: url, Timeout: time.Second})
	res := gw.Send(context.Background(), Message{To: "+244912345678", Body: "hi"})
	if res.Accepted || res.ErrorCode != models.ErrCodeNetwork {
		t.Errorf("Send() = %+v, want NETWORK failure", res)
	}
}

func TestOmbala_Send(t *testing.T) {
	var auth string
	var got ombalaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"om-123","status":"queued"}`))
	}))
	defer srv.Close()

	gw := NewOmbala(OmbalaConfig{URL: srv.URL, Token: "secret", DefaultSender: "DEFAULT", Timeout: time.Second})
	res := gw.Send(context.Background(), Message{To: "+244912345678", Body: "hello"})

	if !res.Accepted || res.MessageID != "om-123" {
		t.Fatalf("Send() = %+v", res)
	}
	if auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.From != "DEFAULT" || got.To != "244912345678" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestOmbala_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"sender not approved"}`))
	}))
	defer srv.Close()

	gw := NewOmbala(OmbalaConfig{URL: srv.URL, Timeout: time.Second})
	res := gw.Send(context.Background(), Message{To: "+244912345678", Body: "hello"})
	if res.Accepted || res.ErrorCode != models.ErrCodeGateway || res.ErrorDetail != "sender not approved" {
		t.Errorf("Send() = %+v", res)
	}
}

func TestParseDeliveryReports(t *testing.T) {
	bulk := NewBulkGate(BulkGateConfig{})
	reports, err := bulk.ParseDeliveryReports([]byte(`[{"sms_id":"a","status":1},{"sms_id":"b","status":3,"error":"expired"}]`))
	if err != nil {
		t.Fatalf("bulkgate parse error = %v", err)
	}
	if len(reports) != 2 || reports[0].Status != models.DeliveryDelivered || reports[1].Status != models.DeliveryFailed {
		t.Errorf("bulkgate reports = %+v", reports)
	}

	om := NewOmbala(OmbalaConfig{})
	reports, err = om.ParseDeliveryReports([]byte(`{"id":"om-1","status":"DELIVERED"}`))
	if err != nil {
		t.Fatalf("ombala parse error = %v", err)
	}
	if len(reports) != 1 || reports[0].GatewayMessageID != "om-1" || reports[0].Status != models.DeliveryDelivered {
		t.Errorf("ombala reports = %+v", reports)
	}

	if _, err := om.ParseDeliveryReports([]byte(`{"status":"delivered"}`)); err == nil {
		t.Error("expected error for report without id")
	}
	if _, err := bulk.ParseDeliveryReports([]byte(`{oops`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestMockGateway(t *testing.T) {
	ok := NewMockGateway("", 1.0, 0, 0)
	res := ok.Send(context.Background(), Message{To: "+244912345678", Body: "hi"})
	if !res.Accepted || len(res.MessageID) != 26 {
		t.Errorf("Send() = %+v, want accepted with ULID", res)
	}
	if ok.Name() != MockName {
		t.Errorf("Name() = %s", ok.Name())
	}

	bad := NewMockGateway("flaky", 0.0, 0, 0)
	res = bad.Send(context.Background(), Message{To: "+244912345678", Body: "hi"})
	if res.Accepted || res.ErrorCode == "" {
		t.Errorf("Send() = %+v, want failure with code", res)
	}
}

func TestMockGateway_ContextCanceled(t *testing.T) {
	gw := NewMockGateway("slow", 1.0, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := gw.Send(ctx, Message{To: "+244912345678", Body: "hi"})
	if res.Accepted || res.ErrorCode != models.ErrCodeNetwork {
		t.Errorf("Send() = %+v, want NETWORK failure", res)
	}
}
