package model

// ResolutionResult is the suggested next step for a classified dispute.
type ResolutionResult struct {
	DisputeID     string
	Action        Action
	Justification string
}
