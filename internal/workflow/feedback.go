// SPDX-License-Identifier: Apache-2.0

// Package workflow holds the feedback workflow definition: a deterministic
// body executed by the replay engine. Everything that touches the outside
// world goes through the engine context so it lands in history.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/adiadia/feedback-orchestrator/internal/activity"
	"github.com/adiadia/feedback-orchestrator/internal/agent"
	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/engine"
)

// FeedbackWorkflow is the registered workflow name.
const FeedbackWorkflow = "FeedbackOrchestrator"

// HumanReviewCompletedEvent resumes an instance suspended on escalation.
// Payload: boolean review outcome.
const HumanReviewCompletedEvent = "HumanReviewCompleted"

// Register wires the feedback workflow into the runtime.
func Register(rt *engine.Runtime) {
	rt.RegisterWorkflow(FeedbackWorkflow, Feedback)
}

// Feedback processes one feedback item end to end: analyze, optionally
// escalate and wait for human review, compose the follow-up email, send it,
// record the item as processed.
func Feedback(c *engine.Context) (string, error) {
	fb := c.Input()
	logger := c.Logger()
	logger.Info("processing feedback", "feedback_id", fb.FeedbackID)

	rawAnalysis, err := c.CallAgent(agent.AnalyzeFeedback, fb)
	if err != nil {
		return "", err
	}
	var analysis domain.AnalysisResult
	if err := json.Unmarshal(rawAnalysis, &analysis); err != nil {
		return "", domain.Permanent(fmt.Errorf("decode analysis result: %w", err))
	}

	if analysis.FollowUp.RequiresHuman {
		logger.Warn("feedback requires human review, escalating",
			"feedback_id", fb.FeedbackID,
			"case_id", analysis.FollowUp.CaseID,
		)

		if _, err := c.CallActivity(activity.SendEscalationEmail, activity.SendEscalationEmailInput{
			FeedbackID: fb.FeedbackID,
			StoreID:    fb.StoreID,
			CaseID:     analysis.FollowUp.CaseID,
			Details:    fb.Comment,
		}); err != nil {
			return "", err
		}

		payload, err := c.WaitForEvent(HumanReviewCompletedEvent)
		if err != nil {
			return "", err
		}
		var approved bool
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &approved); err != nil {
				return "", domain.Permanent(fmt.Errorf("decode review outcome: %w", err))
			}
		}
		c.Logger().Info("human review completed",
			"feedback_id", fb.FeedbackID,
			"approved", approved,
		)
	}

	rawDraft, err := c.CallAgent(agent.ComposeEmail, agent.ComposeEmailInput{
		Analysis: analysis,
		Feedback: fb,
	})
	if err != nil {
		return "", err
	}
	var draft domain.EmailDraft
	if err := json.Unmarshal(rawDraft, &draft); err != nil {
		return "", domain.Permanent(fmt.Errorf("decode email draft: %w", err))
	}

	if _, err := c.CallActivity(activity.SendCustomerEmail, activity.SendCustomerEmailInput{
		FeedbackID:     fb.FeedbackID,
		CaseID:         analysis.FollowUp.CaseID,
		RecipientName:  draft.RecipientName,
		RecipientEmail: draft.RecipientEmail,
		Body:           draft.Body,
	}); err != nil {
		return "", err
	}

	rawResult, err := c.CallActivity(activity.RecordProcessed, fb)
	if err != nil {
		return "", err
	}
	var result string
	if err := json.Unmarshal(rawResult, &result); err != nil {
		return "", domain.Permanent(fmt.Errorf("decode processing confirmation: %w", err))
	}

	c.Logger().Info("feedback processed", "feedback_id", fb.FeedbackID, "result", result)
	return result, nil
}
