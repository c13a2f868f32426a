package service

import (
	"testing"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		status model.PermitStatus
		event  PermitEvent
		want   bool
	}{
		{model.PermitStatusPending, EventMarkForReview, true},
		{model.PermitStatusForReview, EventMarkForReview, false},
		{model.PermitStatusPending, EventApprove, true},
		{model.PermitStatusForReview, EventApprove, true},
		{model.PermitStatusRejected, EventApprove, true},
		{model.PermitStatusApproved, EventApprove, false},
		{model.PermitStatusApproved, EventReject, true},
		{model.PermitStatusRejected, EventReject, false},
		{model.PermitStatusApproved, EventRevoke, true},
		{model.PermitStatusPending, EventRevoke, false},
		{model.PermitStatusApproved, EventRenew, true},
		{model.PermitStatusRejected, EventRenew, false},
		{model.PermitStatusForReview, EventCancel, true},
		{model.PermitStatusApproved, EventCancel, false},
		{model.PermitStatusApproved, EventRecordPayment, true},
		{model.PermitStatusPending, EventRecordPayment, false},
		{model.PermitStatusRevoked, EventApprove, false},
		{model.PermitStatusCancelled, EventApprove, false},
		{model.PermitStatusPending, PermitEvent("archive"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.status, tt.event))
		})
	}
}

func TestTerminalStatusesAcceptNoEvent(t *testing.T) {
	for _, status := range []model.PermitStatus{model.PermitStatusRevoked, model.PermitStatusCancelled} {
		for event := range transitionTable {
			assert.False(t, CanTransition(status, event), "%s accepted %s", status, event)
		}
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, model.PermitStatusForReview, NextStatus(model.PermitStatusPending, EventMarkForReview))
	assert.Equal(t, model.PermitStatusApproved, NextStatus(model.PermitStatusRejected, EventApprove))
	assert.Equal(t, model.PermitStatusApproved, NextStatus(model.PermitStatusApproved, EventRenew))
	assert.Equal(t, model.PermitStatusApproved, NextStatus(model.PermitStatusApproved, EventRecordPayment))
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent("approve")
	require.NoError(t, err)
	assert.Equal(t, EventApprove, event)

	_, err = ParseEvent("APPROVE")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAllowedEvents(t *testing.T) {
	pending := &model.Permit{Status: model.PermitStatusPending, SubmittedBy: applicantActor.UserID}
	approved := &model.Permit{Status: model.PermitStatusApproved, SubmittedBy: applicantActor.UserID}

	assert.Equal(t,
		[]PermitEvent{EventMarkForReview, EventApprove, EventReject, EventCancel},
		AllowedEvents(pending, officerActor))
	assert.Equal(t, []PermitEvent{EventMarkForReview}, AllowedEvents(pending, staffActor))
	assert.Equal(t, []PermitEvent{EventCancel}, AllowedEvents(pending, applicantActor))
	assert.Empty(t, AllowedEvents(pending, strangerActor))
	assert.Equal(t,
		[]PermitEvent{EventReject, EventRevoke, EventRenew, EventRecordPayment},
		AllowedEvents(approved, adminActor))
	assert.Equal(t, []PermitEvent{EventRenew, EventRecordPayment}, AllowedEvents(approved, staffActor))
}

func TestFormatPermitNumber(t *testing.T) {
	issued := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "BP-2026-000123", FormatPermitNumber("BP", issued, 123))
	assert.Equal(t, "MBP-2026-1234567", FormatPermitNumber("MBP", issued, 1234567))
}
