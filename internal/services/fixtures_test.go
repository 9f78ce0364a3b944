package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/testutil"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

// recordingNotifier keeps every message instead of sending it.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []*Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg *Message) (*models.EmailLog, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	status := models.DeliveryStatusSent
	if n.err != nil {
		status = models.DeliveryStatusFailed
	}
	return &models.EmailLog{Template: msg.Template, Status: status}, n.err
}

func (n *recordingNotifier) byTemplate(template string) []*Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*Message
	for _, m := range n.messages {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

// staticDirectory resolves only the emails it knows about.
type staticDirectory struct {
	users map[string]DepartmentUser
}

func (d *staticDirectory) ResolveOrCreate(tx *gorm.DB, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := tx.Where("email = ?", email).First(&user).Error; err == nil {
		return &user, nil
	}
	found, ok := d.users[email]
	if !ok {
		return nil, validationError(msgNotDepartmentMember)
	}
	user = models.User{Email: found.Email, FirstName: found.GivenName, LastName: found.Surname, IsStaff: true}
	return &user, tx.Create(&user).Error
}

type fixture struct {
	t            testing.TB
	ctx          context.Context
	db           *gorm.DB
	today        time.Time
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	notifier     *recordingNotifier
	audit        *AuditService
	auth         *AuthorizationService
	groups       *GroupService
	compliances  *ComplianceService
	proposals    *ProposalService
	referrals    *ReferralService
	requirements *RequirementService
	documents    *DocumentService
	storage      *StorageService
	approvals    *ApprovalService
}

func newFixture(t testing.TB) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		Email:    config.EmailConfig{FromEmail: "licensing@example.gov", FromName: "Wildlife Licensing"},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	storage, err := NewStorageService(context.Background(), config.StorageConfig{Driver: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		today:    time.Date(2023, 12, 1, 9, 30, 0, 0, time.UTC),
		registry: registry,
		metrics:  m,
		notifier: &recordingNotifier{},
	}
	f.audit = NewAuditService(db)
	f.auth = NewAuthorizationService(nil, m)
	f.groups = NewGroupService(db, f.auth, f.audit)
	f.compliances = NewComplianceService(db, f.auth, f.audit, m)
	f.compliances.SetClock(f.now)
	f.storage = storage
	f.documents = NewDocumentService(storage)
	f.approvals = NewApprovalService(db, storage)
	f.proposals = NewProposalService(db, cfg, f.auth, f.audit, f.notifier, f.documents, f.compliances, m)
	f.proposals.SetClock(f.now)
	f.referrals = NewReferralService(db, f.auth, f.audit, &staticDirectory{users: map[string]DepartmentUser{
		"referee@dept.gov": {Email: "referee@dept.gov", GivenName: "Rita", Surname: "Referee"},
		"second@dept.gov":  {Email: "second@dept.gov", GivenName: "Sam", Surname: "Second"},
		"third@dept.gov":   {Email: "third@dept.gov", GivenName: "Theo", Surname: "Third"},
	}}, f.notifier, m)
	f.requirements = NewRequirementService(db, f.auth, f.audit)
	return f
}

func (f *fixture) now() time.Time {
	return f.today
}

func (f *fixture) user(email, first, last string) *models.User {
	f.t.Helper()
	u := &models.User{Email: email, FirstName: first, LastName: last, IsStaff: true}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) organisation(name, postal string, members ...*models.User) *models.Organisation {
	f.t.Helper()
	org := &models.Organisation{Name: name, PostalAddress: postal}
	require.NoError(f.t, f.db.Create(org).Error)
	for _, m := range members {
		require.NoError(f.t, f.db.Model(org).Association("Members").Append(m))
	}
	return org
}

func (f *fixture) group(kind models.GroupKind, name string, isDefault bool, activities, regions []string, members ...*models.User) *models.Group {
	f.t.Helper()
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	g, err := f.groups.CreateGroup(f.ctx, nil, &GroupRequest{
		Name:       name,
		Kind:       kind,
		Regions:    regions,
		Activities: activities,
		IsDefault:  isDefault,
		MemberIDs:  ids,
	})
	require.NoError(f.t, err)
	return g
}

// draft creates a draft proposal owned by org and submitted by submitter.
func (f *fixture) draft(submitter *models.User, org *models.Organisation, activity, region, title string) *models.Proposal {
	f.t.Helper()
	req := &CreateProposalRequest{Activity: activity, Region: region, Title: title}
	if org != nil {
		req.ApplicantID = &org.ID
	}
	p, err := f.proposals.Create(f.ctx, submitter, req)
	require.NoError(f.t, err)
	return p
}

// submitted creates and submits a proposal so it sits with the assessors.
func (f *fixture) submitted(submitter *models.User, org *models.Organisation, activity, region, title string) *models.Proposal {
	f.t.Helper()
	p := f.draft(submitter, org, activity, region, title)
	p, err := f.proposals.Submit(f.ctx, submitter, p.ID, nil)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) reload(id uint) *models.Proposal {
	f.t.Helper()
	var p models.Proposal
	require.NoError(f.t, f.db.First(&p, id).Error)
	return &p
}

func (f *fixture) auditActions(resourceType models.ResourceType, id uint) []string {
	f.t.Helper()
	var logs []models.AuditLog
	require.NoError(f.t, f.db.Where("resource_type = ? AND resource_id = ?", resourceType, id).Order("id").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

// workflow is the cast shared by the proposal and referral tests: a Swan/Flora assessor group,
// a default assessor group, an approver group and an applicant organisation.
type workflow struct {
	*fixture
	assessor      *models.User
	otherAssessor *models.User
	approver      *models.User
	outsider      *models.User
	applicant     *models.User
	org           *models.Organisation
	swanGroup     *models.Group
	defaultGroup  *models.Group
	approverGroup *models.Group
}

func newWorkflow(t testing.TB) *workflow {
	f := newFixture(t)
	w := &workflow{fixture: f}
	w.assessor = f.user("assessor@dept.gov", "Ada", "Assessor")
	w.otherAssessor = f.user("other@dept.gov", "Otto", "Other")
	w.approver = f.user("approver@dept.gov", "Abe", "Approver")
	w.outsider = f.user("outsider@dept.gov", "Oscar", "Outsider")
	w.applicant = f.user("Applicant@Example.com", "Pat", "Applicant")
	w.org = f.organisation("Swan Bees Pty Ltd", "1 Hive Rd, Perth WA", w.applicant)

	w.swanGroup = f.group(models.GroupKindAssessor, "Swan Flora", false, []string{"Flora"}, []string{"Swan"}, w.assessor, w.otherAssessor)
	w.defaultGroup = f.group(models.GroupKindAssessor, "Default assessors", true, nil, nil, w.outsider)
	w.approverGroup = f.group(models.GroupKindApprover, "Default approvers", true, nil, nil, w.approver)
	return w
}

func (w *workflow) swanProposal() *models.Proposal {
	return w.submitted(w.applicant, w.org, "Flora", "Swan", "Orchid survey")
}

func (w *workflow) withApproverForApproval(id uint) *models.Proposal {
	w.t.Helper()
	_, err := w.proposals.MoveToStatus(w.ctx, w.assessor, id, models.ProcessingStatusWithAssessorRequirements)
	require.NoError(w.t, err)
	p, err := w.proposals.ProposedApproval(w.ctx, w.assessor, id, &IssuanceRequest{
		StartDate:  "01/12/2023",
		ExpiryDate: "01/02/2024",
		Details:    "Subject to conditions",
	})
	require.NoError(w.t, err)
	return p
}

func intPtr(v int) *int {
	return &v
}

func defaultPage() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}
