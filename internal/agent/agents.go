// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"encoding/json"
	"fmt"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
)

// Agent names used by the workflow definition.
const (
	AnalyzeFeedback = "AnalyzeFeedback"
	ComposeEmail    = "ComposeEmail"
)

// ComposeEmailInput is the prompt context for the ComposeEmail agent.
type ComposeEmailInput struct {
	Analysis domain.AnalysisResult `json:"analysis"`
	Feedback domain.FeedbackItem   `json:"feedback"`
}

const analyzeInstructions = `You are the Customer Feedback Agent for Froyo Foundry.
Analyze the submitted feedback: detect overall sentiment (positive, neutral
or negative), flag health/safety and food quality risk with the keywords
that triggered the flags, and decide the action: THANK_YOU when sentiment is
positive with no risk, ISSUE_COUPON when sentiment is neutral with no
health/safety risk, OPEN_CASE when sentiment is negative or any
health/safety condition holds. Open a case and generate a coupon through
your tools when the action calls for them. Respond with the structured
analysis result only.`

const composeInstructions = `You are the Email Agent for Froyo Foundry.
Write a short, warm follow-up email to the customer who submitted the
feedback case: acknowledge their comment, mention the coupon or case id
when present, and sign off as the Froyo Foundry team. Respond with the
structured email draft only.`

// RegisterDefaults registers the two feedback agents on the adapter.
func RegisterDefaults(a *Adapter) {
	a.RegisterAgent(Definition{
		Name:         AnalyzeFeedback,
		Instructions: analyzeInstructions,
		Tools: []string{
			ToolGetStoreDetails,
			ToolListFlavors,
			ToolGetCurrentUTC,
			ToolGenerateCouponCode,
			ToolOpenCase,
			ToolRedactPII,
		},
		Validate: validateAnalysis,
	})

	a.RegisterAgent(Definition{
		Name:         ComposeEmail,
		Instructions: composeInstructions,
		Tools:        []string{ToolGetStoreDetails, ToolRedactPII},
		Validate:     validateDraft,
	})
}

func validateAnalysis(raw json.RawMessage) error {
	var res domain.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("not a valid analysis result: %w", err)
	}
	return res.Validate()
}

func validateDraft(raw json.RawMessage) error {
	var draft domain.EmailDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return fmt.Errorf("not a valid email draft: %w", err)
	}
	return draft.Validate()
}
