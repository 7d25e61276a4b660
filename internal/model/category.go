package model

import "fmt"

// Category is one member of the closed set of dispute categories declared by the lexicon.
type Category string

// Well-known category names used by the default lexicon.
const (
	CategoryDuplicateCharge    Category = "Duplicate Charge"
	CategoryFraud              Category = "Fraud"
	CategoryFailedTransaction  Category = "Failed Transaction"
	CategoryRefundPending      Category = "Refund Pending"
	CategoryServiceNotReceived Category = "Service Not Received"
	CategoryBillingError       Category = "Billing Error"
	CategoryOther              Category = "Other"
)

// Action is the recommended next operational step for a classified dispute.
type Action string

const (
	// ActionAutoRefund refunds the customer without human review.
	ActionAutoRefund Action = "Auto-Refund"
	// ActionManualReview queues the dispute for an analyst.
	ActionManualReview Action = "Manual Review"
	// ActionEscalate hands the dispute to the bank or risk team.
	ActionEscalate Action = "Escalate"
	// ActionNoAction closes the dispute without intervention.
	ActionNoAction Action = "No Action"
)

// Actions returns every valid action in display order.
func Actions() []Action {
	return []Action{ActionAutoRefund, ActionManualReview, ActionEscalate, ActionNoAction}
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}
