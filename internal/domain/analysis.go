// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"strings"
	"time"
)

// Sentiment detected by the analysis agent.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Action is the recommended follow-up for a piece of feedback.
type Action string

const (
	ActionThankYou    Action = "THANK_YOU"
	ActionIssueCoupon Action = "ISSUE_COUPON"
	ActionOpenCase    Action = "OPEN_CASE"
)

// RiskAssessment flags risk conditions detected in the feedback comment.
type RiskAssessment struct {
	IsHealthOrSafety   bool     `json:"is_health_or_safety"`
	IsFoodQualityIssue bool     `json:"is_food_quality_issue"`
	Keywords           []string `json:"keywords,omitempty"`
}

// CouponDetails describes a coupon issued to a customer.
type CouponDetails struct {
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// FollowUp is the follow-up disposition after analysis.
type FollowUp struct {
	RequiresHuman bool   `json:"requires_human"`
	CaseID        string `json:"case_id,omitempty"`
}

// AnalysisResult is the structured output of the AnalyzeFeedback agent call.
// It is produced exactly once per orchestration instance.
type AnalysisResult struct {
	FeedbackID string         `json:"feedback_id"`
	Sentiment  Sentiment      `json:"sentiment"`
	Risk       RiskAssessment `json:"risk"`
	Action     Action         `json:"action"`
	Coupon     *CouponDetails `json:"coupon,omitempty"`
	FollowUp   FollowUp       `json:"follow_up"`
	Confidence float64        `json:"confidence"`
}

// Validate enforces the analysis schema:
// a coupon is present iff action is ISSUE_COUPON, and
// follow_up.requires_human is true iff action is OPEN_CASE.
func (a AnalysisResult) Validate() error {
	switch a.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return errors.New("sentiment must be positive, neutral or negative")
	}

	switch a.Action {
	case ActionThankYou, ActionIssueCoupon, ActionOpenCase:
	default:
		return errors.New("action must be THANK_YOU, ISSUE_COUPON or OPEN_CASE")
	}

	if (a.Action == ActionIssueCoupon) != (a.Coupon != nil) {
		return errors.New("coupon must be present exactly when action is ISSUE_COUPON")
	}
	if a.Coupon != nil && strings.TrimSpace(a.Coupon.Code) == "" {
		return errors.New("coupon code must not be empty")
	}

	if (a.Action == ActionOpenCase) != a.FollowUp.RequiresHuman {
		return errors.New("follow_up.requires_human must be true exactly when action is OPEN_CASE")
	}

	if a.Confidence < 0 || a.Confidence > 1 {
		return errors.New("confidence must be within [0,1]")
	}

	return nil
}

// EmailDraft is the structured output of the ComposeEmail agent call.
type EmailDraft struct {
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Body           string `json:"body"`
}

// Validate checks the email draft schema.
func (e EmailDraft) Validate() error {
	if strings.TrimSpace(e.RecipientName) == "" {
		return errors.New("recipient_name must not be empty")
	}
	if strings.TrimSpace(e.RecipientEmail) == "" || !strings.Contains(e.RecipientEmail, "@") {
		return errors.New("recipient_email must be a valid address")
	}
	if strings.TrimSpace(e.Body) == "" {
		return errors.New("body must not be empty")
	}
	return nil
}
