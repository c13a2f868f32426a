package service

import (
	"fmt"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
)

type PermitEvent string

const (
	EventMarkForReview PermitEvent = "mark_for_review"
	EventApprove       PermitEvent = "approve"
	EventReject        PermitEvent = "reject"
	EventRevoke        PermitEvent = "revoke"
	EventRenew         PermitEvent = "renew"
	EventCancel        PermitEvent = "cancel"
	EventRecordPayment PermitEvent = "record_payment"
)

var (
	approvalRoles = []model.UserRole{model.RoleAdmin, model.RoleOfficer}
	staffRoles    = []model.UserRole{model.RoleAdmin, model.RoleOfficer, model.RoleStaff}
)

type transitionRule struct {
	from   []model.PermitStatus
	to     model.PermitStatus // empty keeps the current status
	roles  []model.UserRole
	action model.HistoryAction
	// applicant may invoke the event on their own permit
	applicant bool
}

var transitionTable = map[PermitEvent]transitionRule{
	EventMarkForReview: {
		from:   []model.PermitStatus{model.PermitStatusPending},
		to:     model.PermitStatusForReview,
		roles:  staffRoles,
		action: model.HistoryActionMarkedReview,
	},
	EventApprove: {
		from:   []model.PermitStatus{model.PermitStatusPending, model.PermitStatusForReview, model.PermitStatusRejected},
		to:     model.PermitStatusApproved,
		roles:  approvalRoles,
		action: model.HistoryActionApproved,
	},
	EventReject: {
		from:   []model.PermitStatus{model.PermitStatusPending, model.PermitStatusForReview, model.PermitStatusApproved},
		to:     model.PermitStatusRejected,
		roles:  approvalRoles,
		action: model.HistoryActionRejected,
	},
	EventRevoke: {
		from:   []model.PermitStatus{model.PermitStatusApproved},
		to:     model.PermitStatusRevoked,
		roles:  approvalRoles,
		action: model.HistoryActionRevoked,
	},
	EventRenew: {
		from:   []model.PermitStatus{model.PermitStatusApproved},
		to:     model.PermitStatusApproved,
		roles:  staffRoles,
		action: model.HistoryActionRenewed,
	},
	EventCancel: {
		from:      []model.PermitStatus{model.PermitStatusPending, model.PermitStatusForReview},
		to:        model.PermitStatusCancelled,
		roles:     approvalRoles,
		action:    model.HistoryActionCancelled,
		applicant: true,
	},
	EventRecordPayment: {
		from:   []model.PermitStatus{model.PermitStatusApproved},
		roles:  staffRoles,
		action: model.HistoryActionPaymentPosted,
	},
}

// ParseEvent validates an event name.
func ParseEvent(s string) (PermitEvent, error) {
	if _, ok := transitionTable[PermitEvent(s)]; !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrValidation, s)
	}
	return PermitEvent(s), nil
}

// CanTransition reports whether event is legal from status, ignoring roles.
func CanTransition(status model.PermitStatus, event PermitEvent) bool {
	rule, ok := transitionTable[event]
	if !ok {
		return false
	}
	for _, from := range rule.from {
		if from == status {
			return true
		}
	}
	return false
}

// NextStatus is the status a permit in status ends up in after event.
func NextStatus(status model.PermitStatus, event PermitEvent) model.PermitStatus {
	if rule := transitionTable[event]; rule.to != "" {
		return rule.to
	}
	return status
}

// Authorize is the role guard of a transition.
func Authorize(event PermitEvent, actor model.Actor, permit *model.Permit) error {
	rule, ok := transitionTable[event]
	if !ok {
		return fmt.Errorf("%w: unknown event %q", ErrValidation, event)
	}
	if actor.HasRole(rule.roles...) {
		return nil
	}
	if rule.applicant && permit != nil && actor.UserID != 0 && actor.UserID == permit.SubmittedBy {
		return nil
	}
	return fmt.Errorf("%w: role %q may not %s", ErrForbidden, actor.Role, event)
}

// AllowedEvents lists the events actor could apply to permit right now.
func AllowedEvents(permit *model.Permit, actor model.Actor) []PermitEvent {
	order := []PermitEvent{
		EventMarkForReview, EventApprove, EventReject, EventRevoke,
		EventRenew, EventCancel, EventRecordPayment,
	}
	events := make([]PermitEvent, 0, len(order))
	for _, event := range order {
		if CanTransition(permit.Status, event) && Authorize(event, actor, permit) == nil {
			events = append(events, event)
		}
	}
	return events
}

func historyAction(event PermitEvent) model.HistoryAction {
	return transitionTable[event].action
}
