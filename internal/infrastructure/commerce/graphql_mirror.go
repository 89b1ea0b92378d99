package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront-checkout/internal/domain"
)

const updateOrderMutation = `mutation UpdateOrderStatus($input: UpdateOrderInput!) {
  updateOrder(input: $input) { order { id status } }
}`

// GraphQLMirror copies status changes to the commerce backend's GraphQL API
// so merchants see them in their own admin.
type GraphQLMirror struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewGraphQLMirror(endpoint, token string, timeout time.Duration) *GraphQLMirror {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphQLMirror{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (m *GraphQLMirror) MirrorStatus(ctx context.Context, order *domain.CommerceOrder, note string) error {
	input := map[string]any{
		"clientMutationId": "status-" + order.ID,
		"orderId":          order.OrderNumber,
		"status":           strings.ToUpper(string(order.Status)),
	}
	if note != "" {
		input["customerNote"] = note
	}
	body, err := json.Marshal(gqlRequest{
		Query:     updateOrderMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("commerce mirror: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("commerce mirror: status %d", resp.StatusCode)
	}

	var out gqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("commerce mirror: decode: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("commerce mirror: %s", out.Errors[0].Message)
	}
	return nil
}

// NopMirror is used when no GraphQL endpoint is configured.
type NopMirror struct{}

func (NopMirror) MirrorStatus(context.Context, *domain.CommerceOrder, string) error { return nil }
