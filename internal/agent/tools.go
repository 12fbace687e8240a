// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/activity"
	"github.com/adiadia/feedback-orchestrator/internal/catalog"
)

// Tool is one named function an agent may invoke. The set is closed: tools
// are built here and dispatched by name, never discovered dynamically.
type Tool struct {
	Name        string
	Description string
	Fn          func(ctx context.Context, args json.RawMessage) (string, error)
}

// Tool names.
const (
	ToolGetStoreDetails    = "get_store_details"
	ToolListFlavors        = "list_flavors"
	ToolGetCurrentUTC      = "get_current_utc_datetime"
	ToolGenerateCouponCode = "generate_coupon_code"
	ToolOpenCase           = "open_customer_service_case"
	ToolRedactPII          = "redact_pii"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// NewToolset builds the tool table over the injected catalog. Coupon and
// case generation are not deterministic; that is fine because the engine
// caches the enclosing agent call as one step.
func NewToolset(cat *catalog.Catalog) []Tool {
	return []Tool{
		{
			Name:        ToolGetStoreDetails,
			Description: "Gets details for a specific store by store id: name, address, phone, email, manager, timezone.",
			Fn: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					StoreID string `json:"store_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				store, ok := cat.StoreByID(in.StoreID)
				if !ok {
					return "", fmt.Errorf("store not found: %s", in.StoreID)
				}
				out, err := json.Marshal(store)
				return string(out), err
			},
		},
		{
			Name:        ToolListFlavors,
			Description: "Lists all available frozen yogurt flavors with allergen information.",
			Fn: func(_ context.Context, _ json.RawMessage) (string, error) {
				out, err := json.Marshal(cat.Flavors())
				return string(out), err
			},
		},
		{
			Name:        ToolGetCurrentUTC,
			Description: "Gets the current UTC date and time in RFC 3339 form.",
			Fn: func(_ context.Context, _ json.RawMessage) (string, error) {
				return time.Now().UTC().Format(time.RFC3339), nil
			},
		},
		{
			Name:        ToolGenerateCouponCode,
			Description: "Generates a unique coupon code.",
			Fn: func(_ context.Context, _ json.RawMessage) (string, error) {
				return activity.NewCouponCode(), nil
			},
		},
		{
			Name:        ToolOpenCase,
			Description: "Opens a customer service case for a feedback id and returns the case id.",
			Fn: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					FeedbackID string `json:"feedback_id"`
					Details    string `json:"details"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				if in.FeedbackID == "" {
					return "", fmt.Errorf("feedback_id is required")
				}
				return activity.NewCaseID(), nil
			},
		},
		{
			Name:        ToolRedactPII,
			Description: "Redacts personally identifiable information from the input text.",
			Fn: func(_ context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Input string `json:"input"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
				return emailPattern.ReplaceAllString(in.Input, "[redacted]"), nil
			},
		},
	}
}
