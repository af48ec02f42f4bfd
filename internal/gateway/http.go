package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"smsdispatch/internal/models"
)

const maxResponseBody = 64 * 1024

// postJSON sends payload and classifies transport and HTTP failures.
// A nil error means a 2xx response whose body is returned for parsing.
func postJSON(ctx context.Context, client *http.Client, url string, payload []byte, headers map[string]string) (Result, []byte, error) {
	start := time.Now()
	res := Result{Request: payload}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		res.ErrorCode = models.ErrCodeSystem
		res.ErrorDetail = fmt.Sprintf("failed to create request: %v", err)
		return res, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "smsdispatch/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.ErrorCode = models.ErrCodeNetwork
		res.ErrorDetail = fmt.Sprintf("request failed: %v", err)
		return res, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res.StatusCode = resp.StatusCode
	res.Response = body

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		res.ErrorCode = models.ErrCodeNetwork
		res.ErrorDetail = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
		return res, body, errors.New(res.ErrorDetail)
	case resp.StatusCode >= 300:
		res.ErrorCode = models.ErrCodeGateway
		res.ErrorDetail = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
		return res, body, errors.New(res.ErrorDetail)
	}

	return res, body, nil
}
