package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/wildlife-licensing/internal/models"
)

type RequirementServiceTestSuite struct {
	suite.Suite
	w        *workflow
	proposal *models.Proposal
	standard *models.StandardRequirement
	obsolete *models.StandardRequirement
}

func (suite *RequirementServiceTestSuite) SetupTest() {
	w := newWorkflow(suite.T())
	suite.w = w
	suite.proposal = w.swanProposal()

	suite.standard = &models.StandardRequirement{Code: "R1", Text: "Submit an annual return"}
	suite.obsolete = &models.StandardRequirement{Code: "R0", Text: "Fax the district office", Obsolete: true}
	require.NoError(suite.T(), w.db.Create(suite.standard).Error)
	require.NoError(suite.T(), w.db.Create(suite.obsolete).Error)
}

func (suite *RequirementServiceTestSuite) create(text string) *models.Requirement {
	r, err := suite.w.requirements.Create(suite.w.ctx, suite.w.assessor, suite.proposal.ID, &RequirementRequest{FreeRequirement: text})
	require.NoError(suite.T(), err)
	return r
}

func (suite *RequirementServiceTestSuite) texts() []string {
	reqs, err := suite.w.requirements.List(suite.w.ctx, suite.proposal.ID)
	require.NoError(suite.T(), err)
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Text())
	}
	return out
}

func (suite *RequirementServiceTestSuite) TestCreateFreeRequirement() {
	w := suite.w
	r := suite.create("  Keep hives 3km from reserves ")

	assert.False(suite.T(), r.Standard)
	assert.Equal(suite.T(), "Keep hives 3km from reserves", r.FreeRequirement)
	assert.Equal(suite.T(), 1, r.Order)
	assert.Equal(suite.T(), models.RecurrenceWeekly, r.RecurrencePattern)
	assert.Contains(suite.T(), w.auditActions(models.ResourceTypeProposal, suite.proposal.ID), fmt.Sprintf("Create requirement %d", r.ID))

	second := suite.create("Notify before moving hives")
	assert.Equal(suite.T(), 2, second.Order)
}

func (suite *RequirementServiceTestSuite) TestCreateStandardRequirement() {
	w := suite.w
	r, err := w.requirements.Create(w.ctx, w.assessor, suite.proposal.ID, &RequirementRequest{
		StandardRequirementID: &suite.standard.ID,
		DueDate:               "15/01/2024",
	})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), r.Standard)
	assert.Equal(suite.T(), "Submit an annual return", r.Text())
	require.NotNil(suite.T(), r.DueDate)
	assert.Equal(suite.T(), "2024-01-15", r.DueDate.Format("2006-01-02"))

	_, err = w.requirements.Create(w.ctx, w.assessor, suite.proposal.ID, &RequirementRequest{StandardRequirementID: &suite.obsolete.ID})
	assert.ErrorIs(suite.T(), err, ErrValidation)

	missing := uint(9999)
	_, err = w.requirements.Create(w.ctx, w.assessor, suite.proposal.ID, &RequirementRequest{StandardRequirementID: &missing})
	assert.ErrorIs(suite.T(), err, ErrValidation)
}

func (suite *RequirementServiceTestSuite) TestCreateValidation() {
	w := suite.w
	cases := []*RequirementRequest{
		{},
		{FreeRequirement: "Report", Recurrence: true},
		{FreeRequirement: "Report", DueDate: "next tuesday"},
		{FreeRequirement: "Report", DueDate: "2024-01-01", RecurrencePattern: 7},
		{FreeRequirement: "Report", DueDate: "2024-01-01", RecurrenceSchedule: intPtr(-1)},
		{FreeRequirement: "Report", DueDate: "2024-01-01", Recurrence: true, RecurrencePattern: 3, RecurrenceSchedule: intPtr(1001)},
	}
	for i, req := range cases {
		_, err := w.requirements.Create(w.ctx, w.assessor, suite.proposal.ID, req)
		assert.ErrorIs(suite.T(), err, ErrValidation, "case %d", i)
	}
	assert.Empty(suite.T(), suite.texts())
}

func (suite *RequirementServiceTestSuite) TestCreateRequiresAssessorAndStatus() {
	w := suite.w

	_, err := w.requirements.Create(w.ctx, w.outsider, suite.proposal.ID, &RequirementRequest{FreeRequirement: "Report"})
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)

	draft := w.draft(w.applicant, w.org, "Flora", "Swan", "Another")
	_, err = w.requirements.Create(w.ctx, w.assessor, draft.ID, &RequirementRequest{FreeRequirement: "Report"})
	require.ErrorIs(suite.T(), err, ErrInvalidStatus)
	assert.Equal(suite.T(), "Requirements cannot be changed at this time", ErrorMessage(err))
}

func (suite *RequirementServiceTestSuite) TestMoveUpAndDown() {
	w := suite.w
	first := suite.create("first")
	second := suite.create("second")
	third := suite.create("third")

	_, err := w.requirements.MoveUp(w.ctx, w.assessor, third.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"first", "third", "second"}, suite.texts())

	_, err = w.requirements.MoveDown(w.ctx, w.assessor, first.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"third", "first", "second"}, suite.texts())

	// Moving past either end changes nothing.
	_, err = w.requirements.MoveUp(w.ctx, w.assessor, third.ID)
	require.NoError(suite.T(), err)
	_, err = w.requirements.MoveDown(w.ctx, w.assessor, second.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"third", "first", "second"}, suite.texts())
}

func (suite *RequirementServiceTestSuite) TestMoveWithEqualOrder() {
	w := suite.w
	a := suite.create("a")
	b := suite.create("b")
	require.NoError(suite.T(), w.db.Model(b).UpdateColumn("req_order", a.Order).Error)

	_, err := w.requirements.MoveUp(w.ctx, w.assessor, b.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"b", "a"}, suite.texts())
}

func (suite *RequirementServiceTestSuite) TestMoveRejections() {
	w := suite.w
	r := suite.create("only")

	_, err := w.requirements.MoveUp(w.ctx, w.outsider, r.ID)
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)

	_, err = w.requirements.MoveDown(w.ctx, w.assessor, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *RequirementServiceTestSuite) TestListStandardSkipsObsolete() {
	standards, err := suite.w.requirements.ListStandard(suite.w.ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), standards, 1)
	assert.Equal(suite.T(), "R1", standards[0].Code)
}

func TestRequirementServiceSuite(t *testing.T) {
	suite.Run(t, new(RequirementServiceTestSuite))
}
