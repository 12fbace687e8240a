// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// LocalClient is a deterministic, rule-based ChatClient. It stands in for a
// hosted LLM: same request/response shape, same tool-call protocol, no
// network. Offline runs and tests use it; swapping in a real model client
// is a wiring change only.
type LocalClient struct{}

func NewLocalClient() *LocalClient { return &LocalClient{} }

var healthKeywords = []string{
	"sick", "ill", "nausea", "allergic", "allergy", "hair",
	"contaminat", "food poisoning", "injur", "unsafe", "glass",
}

var qualityKeywords = []string{
	"spoiled", "melted", "stale", "sour", "off taste",
	"wrong flavor", "freezer burn", "bland", "watery",
}

var negativeWords = []string{
	"terrible", "awful", "worst", "disgusting", "rude", "disappoint", "bad", "never again",
}

var positiveWords = []string{
	"love", "great", "amazing", "delicious", "perfect", "awesome", "best", "wonderful",
}

func (c *LocalClient) Complete(_ context.Context, req ChatRequest) (ChatResponse, error) {
	switch req.Agent {
	case AnalyzeFeedback:
		return c.analyze(req)
	case ComposeEmail:
		return c.compose(req)
	default:
		return ChatResponse{}, fmt.Errorf("unknown agent %q", req.Agent)
	}
}

func (c *LocalClient) analyze(req ChatRequest) (ChatResponse, error) {
	var fb domain.FeedbackItem
	if err := json.Unmarshal(req.Input, &fb); err != nil {
		return ChatResponse{}, fmt.Errorf("decode feedback: %w", err)
	}

	risk, keywords := assessRisk(fb.Comment)
	sentiment := assessSentiment(fb, risk)
	action := decideAction(sentiment, risk)

	// First round: gather everything through tools, exactly like a hosted
	// model would before committing to an answer.
	if len(req.ToolResults) == 0 {
		storeArgs, _ := json.Marshal(map[string]string{"store_id": fb.StoreID})
		calls := []ToolCall{
			{Name: ToolGetCurrentUTC},
			{Name: ToolGetStoreDetails, Args: storeArgs},
		}
		switch action {
		case domain.ActionIssueCoupon:
			calls = append(calls, ToolCall{Name: ToolGenerateCouponCode})
		case domain.ActionOpenCase:
			caseArgs, _ := json.Marshal(map[string]string{
				"feedback_id": fb.FeedbackID,
				"details":     fb.Comment,
			})
			calls = append(calls, ToolCall{Name: ToolOpenCase, Args: caseArgs})
		}
		return ChatResponse{ToolCalls: calls}, nil
	}

	now := time.Now().UTC()
	if raw, ok := toolOutput(req.ToolResults, ToolGetCurrentUTC); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			now = t
		}
	}

	result := domain.AnalysisResult{
		FeedbackID: fb.FeedbackID,
		Sentiment:  sentiment,
		Risk:       risk,
		Action:     action,
		FollowUp:   domain.FollowUp{RequiresHuman: action == domain.ActionOpenCase},
		Confidence: confidence(len(keywords)),
	}

	switch action {
	case domain.ActionIssueCoupon:
		code, ok := toolOutput(req.ToolResults, ToolGenerateCouponCode)
		if !ok {
			return ChatResponse{}, fmt.Errorf("coupon code tool result missing")
		}
		result.Coupon = &domain.CouponDetails{
			Code:            code,
			DiscountPercent: 20,
			ExpiresAt:       now.AddDate(0, 0, 30),
		}
	case domain.ActionOpenCase:
		caseID, ok := toolOutput(req.ToolResults, ToolOpenCase)
		if !ok {
			return ChatResponse{}, fmt.Errorf("open case tool result missing")
		}
		result.FollowUp.CaseID = caseID
	}

	content, err := json.Marshal(result)
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{Content: content}, nil
}

func (c *LocalClient) compose(req ChatRequest) (ChatResponse, error) {
	var in ComposeEmailInput
	if err := json.Unmarshal(req.Input, &in); err != nil {
		return ChatResponse{}, fmt.Errorf("decode compose input: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", in.Feedback.Customer.PreferredName)
	fmt.Fprintf(&b, "Thank you for your feedback about your recent order %s.\n", in.Feedback.OrderID)

	switch in.Analysis.Action {
	case domain.ActionThankYou:
		b.WriteString("We're thrilled you enjoyed your visit and hope to see you again soon.\n")
	case domain.ActionIssueCoupon:
		if coupon := in.Analysis.Coupon; coupon != nil {
			fmt.Fprintf(&b, "We'd love another chance to impress you. Please enjoy %d%% off your next order with code %s (valid until %s).\n",
				coupon.DiscountPercent, coupon.Code, coupon.ExpiresAt.Format("January 2, 2006"))
		}
	case domain.ActionOpenCase:
		fmt.Fprintf(&b, "We take your report seriously. A customer care specialist is reviewing case %s and will contact you shortly.\n",
			in.Analysis.FollowUp.CaseID)
	}

	b.WriteString("\nWarm regards,\nThe Froyo Foundry Team")

	draft := domain.EmailDraft{
		RecipientName:  in.Feedback.Customer.PreferredName,
		RecipientEmail: in.Feedback.Customer.Email,
		Body:           b.String(),
	}
	content, err := json.Marshal(draft)
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{Content: content}, nil
}

func assessRisk(comment string) (domain.RiskAssessment, []string) {
	lower := strings.ToLower(comment)

	var risk domain.RiskAssessment
	var keywords []string
	for _, kw := range healthKeywords {
		if strings.Contains(lower, kw) {
			risk.IsHealthOrSafety = true
			keywords = append(keywords, kw)
		}
	}
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			risk.IsFoodQualityIssue = true
			keywords = append(keywords, kw)
		}
	}
	risk.Keywords = keywords
	return risk, keywords
}

func assessSentiment(fb domain.FeedbackItem, risk domain.RiskAssessment) domain.Sentiment {
	lower := strings.ToLower(fb.Comment)

	if risk.IsHealthOrSafety || fb.Rating <= 2 || containsAny(lower, negativeWords) {
		return domain.SentimentNegative
	}
	if fb.Rating >= 4 && !risk.IsFoodQualityIssue && containsAny(lower, positiveWords) {
		return domain.SentimentPositive
	}
	if fb.Rating >= 4 && !risk.IsFoodQualityIssue {
		return domain.SentimentPositive
	}
	return domain.SentimentNeutral
}

func decideAction(sentiment domain.Sentiment, risk domain.RiskAssessment) domain.Action {
	if sentiment == domain.SentimentNegative || risk.IsHealthOrSafety {
		return domain.ActionOpenCase
	}
	if sentiment == domain.SentimentNeutral {
		return domain.ActionIssueCoupon
	}
	return domain.ActionThankYou
}

func confidence(keywordHits int) float64 {
	if keywordHits >= 2 {
		return 0.95
	}
	if keywordHits == 1 {
		return 0.85
	}
	return 0.8
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func toolOutput(results []ToolResult, name string) (string, bool) {
	for _, r := range results {
		if r.Name == name && r.Error == "" {
			return r.Output, true
		}
	}
	return "", false
}
