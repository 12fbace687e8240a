// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/catalog"
	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// Activity names used by the workflow definition.
const (
	SendCustomerEmail   = "SendCustomerEmail"
	SendEscalationEmail = "SendEscalationEmail"
	RecordProcessed     = "RecordProcessed"
	OpenCase            = "OpenCase"
	GenerateCoupon      = "GenerateCoupon"
)

// SendCustomerEmailInput is the payload for the SendCustomerEmail activity.
type SendCustomerEmailInput struct {
	FeedbackID     string `json:"feedback_id"`
	CaseID         string `json:"case_id,omitempty"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Body           string `json:"body"`
}

// SendEscalationEmailInput is the payload for the SendEscalationEmail
// activity. The activity resolves the store manager as the recipient.
type SendEscalationEmailInput struct {
	FeedbackID string `json:"feedback_id"`
	StoreID    string `json:"store_id"`
	CaseID     string `json:"case_id,omitempty"`
	Details    string `json:"details"`
}

// OpenCaseInput is the payload for the OpenCase activity.
type OpenCaseInput struct {
	FeedbackID string `json:"feedback_id"`
	Details    string `json:"details"`
}

// GenerateCouponInput is the payload for the GenerateCoupon activity.
type GenerateCouponInput struct {
	DiscountPercent int `json:"discount_percent"`
	ExpirationDays  int `json:"expiration_days"`
}

// RegisterAll wires the concrete activities into the executor. Email and
// case vendors are stubbed: the activities log the side effect and return a
// confirmation string, which is the shape real vendor clients slot into.
func RegisterAll(e *Executor, logger *slog.Logger, cat *catalog.Catalog) {
	if logger == nil {
		logger = slog.Default()
	}

	e.Register(SendCustomerEmail, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in SendCustomerEmailInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, domain.Permanent(fmt.Errorf("decode input: %w", err))
		}
		if strings.TrimSpace(in.RecipientEmail) == "" || !strings.Contains(in.RecipientEmail, "@") {
			return nil, domain.Permanent(fmt.Errorf("invalid recipient email %q", in.RecipientEmail))
		}

		logger.Info("sending follow-up email",
			"feedback_id", in.FeedbackID,
			"case_id", in.CaseID,
			"recipient", in.RecipientEmail,
		)
		return confirmation(fmt.Sprintf("Email sent to %s for case %s", in.RecipientEmail, orNA(in.CaseID)))
	})

	e.Register(SendEscalationEmail, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in SendEscalationEmailInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, domain.Permanent(fmt.Errorf("decode input: %w", err))
		}

		store, ok := cat.StoreByID(in.StoreID)
		if !ok {
			return nil, domain.Permanent(fmt.Errorf("unknown store %q", in.StoreID))
		}

		logger.Warn("sending escalation email",
			"feedback_id", in.FeedbackID,
			"case_id", in.CaseID,
			"store_id", in.StoreID,
			"manager", store.Manager.Email,
		)
		return confirmation(fmt.Sprintf("Escalation sent to %s for case %s", store.Manager.Email, orNA(in.CaseID)))
	})

	e.Register(RecordProcessed, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in domain.FeedbackItem
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, domain.Permanent(fmt.Errorf("decode input: %w", err))
		}

		logger.Info("recording processed feedback",
			"feedback_id", in.FeedbackID,
			"store_id", in.StoreID,
		)
		return confirmation(fmt.Sprintf("Processed feedback '%s' at %s", in.FeedbackID, time.Now().UTC().Format(time.RFC3339)))
	})

	e.Register(OpenCase, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in OpenCaseInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, domain.Permanent(fmt.Errorf("decode input: %w", err))
		}

		caseID := NewCaseID()
		logger.Info("opening customer service case",
			"feedback_id", in.FeedbackID,
			"case_id", caseID,
		)
		return confirmation(caseID)
	})

	e.Register(GenerateCoupon, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in GenerateCouponInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, domain.Permanent(fmt.Errorf("decode input: %w", err))
		}
		if in.DiscountPercent <= 0 || in.DiscountPercent > 100 {
			return nil, domain.Permanent(fmt.Errorf("discount percent %d out of range", in.DiscountPercent))
		}
		days := in.ExpirationDays
		if days <= 0 {
			days = 30
		}

		coupon := domain.CouponDetails{
			Code:            NewCouponCode(),
			DiscountPercent: in.DiscountPercent,
			ExpiresAt:       time.Now().UTC().AddDate(0, 0, days),
		}
		logger.Info("coupon generated", "code", coupon.Code, "discount", coupon.DiscountPercent)
		return json.Marshal(coupon)
	})
}

// NewCaseID mints a case identifier. Non-deterministic: callers must stay
// behind a cached step or the agent-call boundary.
func NewCaseID() string {
	return "CASE-" + shortID()
}

// NewCouponCode mints a coupon code. Same caching caveat as NewCaseID.
func NewCouponCode() string {
	return "FROYO-" + shortID()
}

func shortID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

func confirmation(msg string) (json.RawMessage, error) {
	return json.Marshal(msg)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
