// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"strings"
	"time"
)

// ContactMethod is how the customer prefers to be contacted.
type ContactMethod string

const (
	ContactEmail ContactMethod = "EMAIL"
	ContactPhone ContactMethod = "PHONE"
)

// CustomerInfo holds the customer details attached to a feedback submission.
type CustomerInfo struct {
	PreferredName          string        `json:"preferred_name"`
	FirstName              string        `json:"first_name"`
	LastName               string        `json:"last_name"`
	Email                  string        `json:"email"`
	PhoneNumber            string        `json:"phone_number"`
	PreferredContactMethod ContactMethod `json:"preferred_contact_method"`
}

// FeedbackItem is one customer feedback submission. It is immutable once
// admitted to the workflow; the orchestration core only ever reads it.
type FeedbackItem struct {
	FeedbackID  string       `json:"feedback_id"`
	StoreID     string       `json:"store_id"`
	OrderID     string       `json:"order_id"`
	Channel     string       `json:"channel"`
	Rating      int          `json:"rating"`
	Comment     string       `json:"comment"`
	FlavorID    string       `json:"flavor_id,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Customer    CustomerInfo `json:"customer"`
}

// Validate checks a feedback item at the ingestion boundary. It returns all
// problems found, not just the first one.
func (f FeedbackItem) Validate() []error {
	var errs []error

	if strings.TrimSpace(f.FeedbackID) == "" {
		errs = append(errs, errors.New("feedback_id is required"))
	}
	if strings.TrimSpace(f.StoreID) == "" {
		errs = append(errs, errors.New("store_id is required"))
	}
	if strings.TrimSpace(f.OrderID) == "" {
		errs = append(errs, errors.New("order_id is required"))
	}
	if strings.TrimSpace(f.Channel) == "" {
		errs = append(errs, errors.New("channel is required"))
	}
	if f.Rating < 1 || f.Rating > 5 {
		errs = append(errs, errors.New("rating must be between 1 and 5"))
	}
	if strings.TrimSpace(f.Comment) == "" {
		errs = append(errs, errors.New("comment is required"))
	}
	if strings.TrimSpace(f.Customer.PreferredName) == "" {
		errs = append(errs, errors.New("customer.preferred_name is required"))
	}
	if strings.TrimSpace(f.Customer.Email) == "" {
		errs = append(errs, errors.New("customer.email is required"))
	}
	switch f.Customer.PreferredContactMethod {
	case ContactEmail, ContactPhone:
	default:
		errs = append(errs, errors.New("customer.preferred_contact_method must be EMAIL or PHONE"))
	}

	return errs
}
