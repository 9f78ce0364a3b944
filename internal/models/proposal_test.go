package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatusCoupling(t *testing.T) {
	cases := []struct {
		name       string
		processing ProcessingStatus
		customer   CustomerStatus
		ok         bool
	}{
		{"draft pair", ProcessingStatusDraft, CustomerStatusDraft, true},
		{"amendment required", ProcessingStatusDraft, CustomerStatusAmendmentRequired, true},
		{"with assessor", ProcessingStatusWithAssessor, CustomerStatusWithAssessor, true},
		{"referral keeps customer with assessor", ProcessingStatusWithReferral, CustomerStatusWithAssessor, true},
		{"reissue keeps customer approved", ProcessingStatusWithApprover, CustomerStatusApproved, true},
		{"approved requires approved", ProcessingStatusApproved, CustomerStatusWithAssessor, false},
		{"declined requires declined", ProcessingStatusDeclined, CustomerStatusApproved, false},
		{"draft processing with submitted customer", ProcessingStatusDraft, CustomerStatusWithAssessor, false},
		{"editable customer while processing", ProcessingStatusWithAssessor, CustomerStatusDraft, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Proposal{ProcessingStatus: tc.processing, CustomerStatus: tc.customer}
			err := p.CheckStatusCoupling()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInconsistentStatus))
			}
		})
	}
}

func TestProposalHelpers(t *testing.T) {
	p := &Proposal{Region: "Kimberley, Pilbara,,", LodgementNumber: "P12", LodgementSequence: 3}
	assert.Equal(t, []string{"Kimberley", "Pilbara"}, p.RegionsList())
	assert.Equal(t, "P12-3", p.Reference())
	assert.Equal(t, []string{"Title", "Activity"}, p.MissingFields())

	empty := &Proposal{}
	assert.Nil(t, empty.RegionsList())
	assert.Equal(t, []string{"Region/District", "Title", "Activity"}, empty.MissingFields())

	p.ProcessingStatus = ProcessingStatusAwaitingApplicant
	p.CustomerStatus = CustomerStatusWithAssessor
	assert.True(t, p.IsDiscardable())
	assert.True(t, p.CanOfficerProcess())

	p.ProcessingStatus = ProcessingStatusApproved
	assert.False(t, p.IsDiscardable())
	assert.False(t, p.CanOfficerProcess())
}

func TestIssuanceProposalDates(t *testing.T) {
	start, expiry, err := IssuanceProposal{StartDate: "01/01/2024", ExpiryDate: "01/02/2024"}.Dates()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), expiry)

	_, _, err = IssuanceProposal{StartDate: "2024-01-01", ExpiryDate: "01/02/2024"}.Dates()
	assert.Error(t, err)

	_, _, err = IssuanceProposal{StartDate: "01/03/2024", ExpiryDate: "01/02/2024"}.Dates()
	assert.Error(t, err)
}

func TestRequirementScheduleAndText(t *testing.T) {
	zero, three := 0, 3
	assert.Equal(t, 1, (&Requirement{}).Schedule())
	assert.Equal(t, 1, (&Requirement{RecurrenceSchedule: &zero}).Schedule())
	assert.Equal(t, 3, (&Requirement{RecurrenceSchedule: &three}).Schedule())

	std := &Requirement{Standard: true, StandardRequirement: &StandardRequirement{Text: "Submit an annual return"}}
	assert.Equal(t, "Submit an annual return", std.Text())
	free := &Requirement{Standard: false, FreeRequirement: "Fence the site"}
	assert.Equal(t, "Fence the site", free.Text())

	assert.Equal(t, 28, RecurrenceMonthly.StepDays())
	assert.Equal(t, "yearly", RecurrenceYearly.String())
}

func TestApprovalCanReissue(t *testing.T) {
	a := &Approval{Status: ApprovalStatusCurrent, ExpiryDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)}
	assert.True(t, a.CanReissue(time.Date(2025, 6, 30, 15, 0, 0, 0, time.UTC)))
	assert.False(t, a.CanReissue(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))

	a.Status = ApprovalStatusSuperseded
	assert.False(t, a.CanReissue(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
