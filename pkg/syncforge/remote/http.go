// Package remote implements the sync endpoint collaborator over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	serrors "github.com/mticknor/syncforge/pkg/syncforge/errors"
	"github.com/mticknor/syncforge/pkg/syncforge/outbox"
)

// HTTPEndpoint delivers records to a remote sync service with one POST per
// record. The Idempotency-Key header carries the record ID so the service
// can deduplicate the at-least-once deliveries this core produces.
type HTTPEndpoint struct {
	baseURL string
	token   string
	client  *http.Client
}

// Compile-time interface check.
var _ outbox.Endpoint = (*HTTPEndpoint)(nil)

// NewHTTPEndpoint creates an endpoint posting to baseURL/sync/<recordType>.
// An empty token disables the Authorization header.
func NewHTTPEndpoint(baseURL, token string, timeout time.Duration) *HTTPEndpoint {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEndpoint{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// deliveryRequest is the wire format for one record.
type deliveryRequest struct {
	ID      string         `json:"id"`
	Type    string         `json:"record_type"`
	Payload map[string]any `json:"payload"`
}

// Deliver implements outbox.Endpoint. Non-2xx responses map to
// errors.HTTPError so the outbox can distinguish transient server trouble
// from permanent rejections.
func (e *HTTPEndpoint) Deliver(ctx context.Context, rec outbox.Record) error {
	body, err := json.Marshal(deliveryRequest{
		ID:      rec.ID,
		Type:    rec.Type,
		Payload: rec.Payload,
	})
	if err != nil {
		return serrors.Permanent(err, "encode record")
	}

	url := fmt.Sprintf("%s/sync/%s", e.baseURL, rec.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return serrors.Permanent(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rec.ID)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return serrors.Transient(err, "post record")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &serrors.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Endpoint:   url,
		}
	}
	return nil
}
