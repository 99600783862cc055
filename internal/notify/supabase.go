package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SupabaseNotifier inserts rows into the Supabase notifications table. One
// attempt per message, bounded by the client timeout; there is no retry
// queue and no delivery guarantee.
type SupabaseNotifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSupabaseNotifier(baseURL, apiKey string, timeout time.Duration) *SupabaseNotifier {
	return &SupabaseNotifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (n *SupabaseNotifier) Send(ctx context.Context, userID, message string) error {
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/rest/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("apikey", n.apiKey)
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification insert returned status %d", resp.StatusCode)
	}
	return nil
}
