package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/noah-isme/kasir-api/internal/resilience"
)

// WebhookNotifier posts low-stock payloads to an operator-supplied URL. The
// worker retries failed tasks, so the HTTP client sends each POST once.
type WebhookNotifier struct {
	URL  string
	HTTP resilience.HTTPClient
}

// NotifyLowStock implements Notifier.
func (n WebhookNotifier) NotifyLowStock(ctx context.Context, p LowStockPayload) error {
	if n.URL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{"type": TypeLowStock, "data": p})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("low stock webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("low stock webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
