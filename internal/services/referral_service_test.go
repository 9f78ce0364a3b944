package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/wildlife-licensing/internal/models"
)

type ReferralServiceTestSuite struct {
	suite.Suite
	w        *workflow
	proposal *models.Proposal
}

func (suite *ReferralServiceTestSuite) SetupTest() {
	suite.w = newWorkflow(suite.T())
	suite.proposal = suite.w.swanProposal()
}

func (suite *ReferralServiceTestSuite) send(email string) *models.Referral {
	r, err := suite.w.referrals.SendReferral(suite.w.ctx, suite.w.assessor, suite.proposal.ID, &SendReferralRequest{Email: email, Text: "Please comment on the hive sites"})
	require.NoError(suite.T(), err)
	return r
}

func (suite *ReferralServiceTestSuite) referee() *models.User {
	var u models.User
	require.NoError(suite.T(), suite.w.db.Where("email = ?", "referee@dept.gov").First(&u).Error)
	return &u
}

func (suite *ReferralServiceTestSuite) TestSendReferral() {
	w := suite.w
	r := suite.send("referee@dept.gov")

	assert.Equal(suite.T(), models.SentFromAssessor, r.SentFrom)
	assert.Equal(suite.T(), models.ReferralStatusWithReferral, r.ProcessingStatus)
	assert.Equal(suite.T(), w.assessor.ID, r.SentByID)
	assert.Equal(suite.T(), models.ProcessingStatusWithReferral, w.reload(suite.proposal.ID).ProcessingStatus)

	referee := suite.referee()
	assert.True(suite.T(), referee.IsStaff)
	assert.Equal(suite.T(), "Rita Referee", referee.FullName())
	assert.Equal(suite.T(), referee.ID, r.ReferralID)

	action := fmt.Sprintf("Send referral %d for proposal %d to Rita Referee(referee@dept.gov)", r.ID, suite.proposal.ID)
	assert.Contains(suite.T(), w.auditActions(models.ResourceTypeProposal, suite.proposal.ID), action)
	assert.Contains(suite.T(), w.auditActions(models.ResourceTypeOrganisation, w.org.ID), action)

	sent := w.notifier.byTemplate(TemplateReferralSent)
	require.Len(suite.T(), sent, 1)
	assert.Equal(suite.T(), []string{"referee@dept.gov"}, sent[0].To)
	assert.Equal(suite.T(), "Ada Assessor", sent[0].Data["SenderName"])
}

func (suite *ReferralServiceTestSuite) TestSendSecondReferralWhileWithReferral() {
	w := suite.w
	suite.send("referee@dept.gov")
	suite.send("second@dept.gov")

	referrals, err := w.referrals.ListForProposal(w.ctx, suite.proposal.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), referrals, 2)
}

func (suite *ReferralServiceTestSuite) TestDuplicateReferralRejected() {
	w := suite.w
	suite.send("referee@dept.gov")

	_, err := w.referrals.SendReferral(w.ctx, w.assessor, suite.proposal.ID, &SendReferralRequest{Email: "Referee@Dept.gov"})
	require.ErrorIs(suite.T(), err, ErrDuplicate)
	assert.Equal(suite.T(), "A referral has already been sent to this user", ErrorMessage(err))

	referrals, err := w.referrals.ListForProposal(w.ctx, suite.proposal.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), referrals, 1)
}

func (suite *ReferralServiceTestSuite) TestUnknownEmailRejectedWithoutSideEffects() {
	w := suite.w

	_, err := w.referrals.SendReferral(w.ctx, w.assessor, suite.proposal.ID, &SendReferralRequest{Email: "stranger@example.com"})
	require.ErrorIs(suite.T(), err, ErrValidation)
	assert.Equal(suite.T(), msgNotDepartmentMember, ErrorMessage(err))
	assert.Equal(suite.T(), models.ProcessingStatusWithAssessor, w.reload(suite.proposal.ID).ProcessingStatus)

	var count int64
	w.db.Model(&models.User{}).Where("email = ?", "stranger@example.com").Count(&count)
	assert.Zero(suite.T(), count)
}

func (suite *ReferralServiceTestSuite) TestSendReferralRejectsWrongStatus() {
	w := suite.w
	_, err := w.proposals.MoveToStatus(w.ctx, w.assessor, suite.proposal.ID, models.ProcessingStatusWithAssessorRequirements)
	require.NoError(suite.T(), err)

	_, err = w.referrals.SendReferral(w.ctx, w.assessor, suite.proposal.ID, &SendReferralRequest{Email: "referee@dept.gov"})
	require.ErrorIs(suite.T(), err, ErrReferralCannotSend)
	assert.Empty(suite.T(), w.notifier.byTemplate(TemplateReferralSent))
}

func (suite *ReferralServiceTestSuite) TestSendReferralRejectsOutsider() {
	w := suite.w

	_, err := w.referrals.SendReferral(w.ctx, w.outsider, suite.proposal.ID, &SendReferralRequest{Email: "referee@dept.gov"})
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)
	assert.Equal(suite.T(), models.ProcessingStatusWithAssessor, w.reload(suite.proposal.ID).ProcessingStatus)
}

func (suite *ReferralServiceTestSuite) TestSendReferralValidatesEmail() {
	w := suite.w

	_, err := w.referrals.SendReferral(w.ctx, w.assessor, suite.proposal.ID, &SendReferralRequest{Email: "not-an-email"})
	assert.ErrorIs(suite.T(), err, ErrValidation)
}

func (suite *ReferralServiceTestSuite) TestForwardOnce() {
	w := suite.w
	r := suite.send("referee@dept.gov")
	referee := suite.referee()

	forwarded, err := w.referrals.Forward(w.ctx, referee, r.ID, &SendReferralRequest{Email: "second@dept.gov"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.SentFromReferral, forwarded.SentFrom)
	assert.Equal(suite.T(), referee.ID, forwarded.SentByID)

	var second models.User
	require.NoError(suite.T(), w.db.Where("email = ?", "second@dept.gov").First(&second).Error)

	_, err = w.referrals.Forward(w.ctx, &second, forwarded.ID, &SendReferralRequest{Email: "third@dept.gov"})
	require.ErrorIs(suite.T(), err, ErrReferralCannotSend)

	var count int64
	w.db.Model(&models.User{}).Where("email = ?", "third@dept.gov").Count(&count)
	assert.Zero(suite.T(), count)
}

func (suite *ReferralServiceTestSuite) TestForwardRequiresRecipient() {
	w := suite.w
	r := suite.send("referee@dept.gov")

	_, err := w.referrals.Forward(w.ctx, w.assessor, r.ID, &SendReferralRequest{Email: "second@dept.gov"})
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)
}

func (suite *ReferralServiceTestSuite) TestComplete() {
	w := suite.w
	r := suite.send("referee@dept.gov")

	_, err := w.referrals.Complete(w.ctx, w.assessor, r.ID)
	require.ErrorIs(suite.T(), err, ErrNotAuthorized)

	completed, err := w.referrals.Complete(w.ctx, suite.referee(), r.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ReferralStatusCompleted, completed.ProcessingStatus)

	action := fmt.Sprintf("Referral %d for proposal %d has been concluded by Rita Referee(referee@dept.gov)", r.ID, suite.proposal.ID)
	assert.Contains(suite.T(), w.auditActions(models.ResourceTypeProposal, suite.proposal.ID), action)

	done := w.notifier.byTemplate(TemplateReferralComplete)
	require.Len(suite.T(), done, 1)
	assert.Equal(suite.T(), []string{"assessor@dept.gov"}, done[0].To)
	assert.Equal(suite.T(), "Rita Referee", done[0].Data["ReferralName"])

	_, err = w.referrals.Complete(w.ctx, suite.referee(), r.ID)
	assert.ErrorIs(suite.T(), err, ErrInvalidStatus)
}

func (suite *ReferralServiceTestSuite) TestRecallRemindResend() {
	w := suite.w
	r := suite.send("referee@dept.gov")

	_, err := w.referrals.Remind(w.ctx, w.assessor, r.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), w.notifier.byTemplate(TemplateReferralReminder), 1)

	recalled, err := w.referrals.Recall(w.ctx, w.assessor, r.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ReferralStatusRecalled, recalled.ProcessingStatus)
	require.Len(suite.T(), w.notifier.byTemplate(TemplateReferralRecalled), 1)

	resent, err := w.referrals.Resend(w.ctx, w.assessor, r.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.ReferralStatusWithReferral, resent.ProcessingStatus)
	assert.Equal(suite.T(), models.SentFromAssessor, resent.SentFrom)
	assert.Len(suite.T(), w.notifier.byTemplate(TemplateReferralSent), 2)

	actions := w.auditActions(models.ResourceTypeProposal, suite.proposal.ID)
	assert.Contains(suite.T(), actions, fmt.Sprintf("Send reminder for referral %d for proposal %d to Rita Referee(referee@dept.gov)", r.ID, suite.proposal.ID))
	assert.Contains(suite.T(), actions, fmt.Sprintf("Referral %d for proposal %d has been recalled", r.ID, suite.proposal.ID))
	assert.Contains(suite.T(), actions, fmt.Sprintf("Resend referral %d for proposal %d to Rita Referee(referee@dept.gov)", r.ID, suite.proposal.ID))
}

func (suite *ReferralServiceTestSuite) TestAssessorActionsRejectOutsider() {
	w := suite.w
	r := suite.send("referee@dept.gov")

	_, err := w.referrals.Recall(w.ctx, w.outsider, r.ID)
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)
	_, err = w.referrals.Remind(w.ctx, w.outsider, r.ID)
	assert.ErrorIs(suite.T(), err, ErrNotAuthorized)

	_, err = w.referrals.Recall(w.ctx, w.assessor, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func TestReferralServiceSuite(t *testing.T) {
	suite.Run(t, new(ReferralServiceTestSuite))
}
