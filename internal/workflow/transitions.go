package workflow

import (
	"slices"
	"strings"
	"time"

	"mediaflow/internal/store"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []store.WorkflowStatus{
	store.WorkflowDraft,
	store.WorkflowReview,
	store.WorkflowApproved,
	store.WorkflowPublished,
	store.WorkflowArchived,
}

// transitions is the complete set of legal moves. Anything absent is rejected.
var transitions = map[store.WorkflowStatus][]store.WorkflowStatus{
	store.WorkflowDraft:     {store.WorkflowReview, store.WorkflowArchived},
	store.WorkflowReview:    {store.WorkflowDraft, store.WorkflowApproved, store.WorkflowArchived},
	store.WorkflowApproved:  {store.WorkflowPublished, store.WorkflowReview, store.WorkflowArchived},
	store.WorkflowPublished: {store.WorkflowArchived},
	store.WorkflowArchived:  {store.WorkflowDraft},
}

// ParseStatus converts a string into a workflow status when recognised.
func ParseStatus(value string) (store.WorkflowStatus, bool) {
	normalized := store.WorkflowStatus(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(Statuses, normalized) {
		return normalized, true
	}
	return "", false
}

// AllowedTransitions returns the states reachable from status.
func AllowedTransitions(status store.WorkflowStatus) []store.WorkflowStatus {
	return slices.Clone(transitions[status])
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to store.WorkflowStatus) bool {
	return slices.Contains(transitions[from], to)
}

// enter moves wf into status and applies that state's side effects.
// Leaving a state has none.
func enter(wf *store.Workflow, status store.WorkflowStatus, now time.Time) {
	wf.Status = status
	switch status {
	case store.WorkflowReview:
		// A reviewer from an earlier round must be reassigned.
		wf.ReviewerID = ""
		wf.ReviewDeadline = nil
	case store.WorkflowPublished:
		wf.PublishedAt = &now
		wf.ReviewerID = ""
		wf.ReviewDeadline = nil
	case store.WorkflowArchived:
		wf.ArchivedAt = &now
		wf.ReviewerID = ""
		wf.ReviewDeadline = nil
	}
}
