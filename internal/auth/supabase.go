package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/satya6366/trust-ledger/internal/domain"
)

// SupabaseResolver queries the Supabase REST endpoint for the users table,
// matching on the user_id column. The client timeout bounds every lookup so
// a stalled identity store turns into a failed lookup instead of a hang.
type SupabaseResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSupabaseResolver(baseURL, apiKey string, timeout time.Duration) *SupabaseResolver {
	return &SupabaseResolver{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *SupabaseResolver) ResolveRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/users?select=role&user_id=eq.%s",
		r.baseURL, url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, fmt.Errorf("building role lookup request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("role lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("role lookup returned status %d", resp.StatusCode)
	}

	var rows []struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", false, fmt.Errorf("decoding role lookup response: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}

	role := domain.Role(rows[0].Role)
	if role == "" {
		role = domain.RoleUser
	}
	return role, true, nil
}
