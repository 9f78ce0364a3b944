package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-mail/mail/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/i18n"
	"github.com/javajoker/wildlife-licensing/internal/models"
	"github.com/javajoker/wildlife-licensing/internal/router"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/testutil"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Error   *utils.APIError        `json:"error"`
	Meta    map[string]interface{} `json:"meta"`
}

type WorkflowTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	cancel context.CancelFunc

	mu   sync.Mutex
	sent []*mail.Message

	admin     *models.User
	assessor  *models.User
	approver  *models.User
	applicant *models.User
	org       *models.Organisation
}

func (suite *WorkflowTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	require.NoError(suite.T(), i18n.Initialize("", "en"))
}

func (suite *WorkflowTestSuite) SetupTest() {
	t := suite.T()
	suite.db = testutil.NewDB(t)
	suite.sent = nil

	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "referee@dept.gov" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"email": "referee@dept.gov", "given_name": "Rita", "surname": "Referee"}]`)
	}))
	t.Cleanup(directory.Close)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RateLimit: 1000, RateBurst: 1000},
		JWT:         config.JWTConfig{SecretKey: "test-secret", Issuer: "wildlife-licensing"},
		Redis:       config.RedisConfig{TTL: 60},
		Email:       config.EmailConfig{FromEmail: "licensing@dept.gov", FromName: "Wildlife Licensing"},
		Directory:   config.DirectoryConfig{BaseURL: directory.URL, Timeout: 5},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Frontend:    config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}

	storage, err := services.NewStorageService(context.Background(), config.StorageConfig{Driver: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.router = router.Initialize(ctx, suite.db, cfg, router.Infrastructure{
		Storage:  storage,
		Registry: prometheus.NewRegistry(),
		Transport: func(msgs ...*mail.Message) error {
			suite.mu.Lock()
			defer suite.mu.Unlock()
			suite.sent = append(suite.sent, msgs...)
			return nil
		},
		Clock: func() time.Time { return time.Date(2023, 12, 1, 9, 30, 0, 0, time.UTC) },
	})

	suite.admin = suite.user("admin@dept.gov", "Ann", true)
	suite.assessor = suite.user("assessor@dept.gov", "Ada", true)
	suite.approver = suite.user("approver@dept.gov", "Abe", true)
	suite.applicant = suite.user("pat@example.com", "Pat", false)
	suite.org = &models.Organisation{Name: "Swan Bees Pty Ltd", PostalAddress: "1 Hive Rd, Perth WA"}
	require.NoError(t, suite.db.Create(suite.org).Error)
	require.NoError(t, suite.db.Model(suite.org).Association("Members").Append(suite.applicant))

	for _, g := range []map[string]interface{}{
		{"name": "Swan Flora", "kind": "assessor", "activities": []string{"Flora"}, "regions": []string{"Swan"}, "member_ids": []uint{suite.assessor.ID}},
		{"name": "Default assessors", "kind": "assessor", "is_default": true, "member_ids": []uint{suite.admin.ID}},
		{"name": "Approvers", "kind": "approver", "is_default": true, "member_ids": []uint{suite.approver.ID}},
	} {
		w, body := suite.do(http.MethodPost, "/v1/groups", suite.admin, g)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.True(t, body.Success)
	}
}

func (suite *WorkflowTestSuite) TearDownTest() {
	suite.cancel()
}

func (suite *WorkflowTestSuite) user(email, name string, isStaff bool) *models.User {
	u := &models.User{Email: email, FirstName: name, LastName: "Tester", IsStaff: isStaff}
	require.NoError(suite.T(), suite.db.Create(u).Error)
	return u
}

func (suite *WorkflowTestSuite) do(method, path string, user *models.User, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := utils.GenerateJWT(user.ID, user.Email, user.IsStaff, time.Hour)
		require.NoError(suite.T(), err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func fields(env envelope) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(env.Data, &out)
	return out
}

// object returns data[key] as a JSON object.
func object(env envelope, key string) map[string]interface{} {
	v, _ := fields(env)[key].(map[string]interface{})
	return v
}

func idOf(obj map[string]interface{}) uint {
	f, _ := obj["id"].(float64)
	return uint(f)
}

func (suite *WorkflowTestSuite) submittedProposal() uint {
	t := suite.T()
	w, env := suite.do(http.MethodPost, "/v1/proposals", suite.applicant, map[string]interface{}{
		"applicant_id": suite.org.ID,
		"activity":     "Flora",
		"region":       "Swan",
		"title":        "Orchid survey",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := idOf(object(env, "proposal"))

	w, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/proposals/%d/submit", id), suite.applicant, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "with_assessor", object(env, "proposal")["processing_status"])
	return id
}

func (suite *WorkflowTestSuite) templatesSent() []string {
	var logs []models.EmailLog
	require.NoError(suite.T(), suite.db.Order("id").Find(&logs).Error)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Template)
	}
	return out
}

func (suite *WorkflowTestSuite) TestApprovalJourney() {
	t := suite.T()
	id := suite.submittedProposal()
	base := fmt.Sprintf("/v1/proposals/%d", id)

	// Proponents cannot drive the assessment.
	w, _ := suite.do(http.MethodPost, base+"/switch_status", suite.applicant, map[string]string{"status": "with_assessor_requirements"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Staff outside the resolved group are rejected by the service.
	w, env := suite.do(http.MethodPost, base+"/switch_status", suite.admin, map[string]string{"status": "with_assessor_requirements"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.Success)

	w, env = suite.do(http.MethodPost, base+"/switch_status", suite.assessor, map[string]string{"status": "with_assessor_requirements"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "with_assessor_requirements", object(env, "proposal")["processing_status"])

	w, _ = suite.do(http.MethodPost, base+"/requirements", suite.assessor, map[string]interface{}{
		"free_requirement":    "Report hive losses",
		"due_date":            "2024-01-01",
		"recurrence":          true,
		"recurrence_pattern":  1,
		"recurrence_schedule": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	issuance := map[string]string{"start_date": "01/12/2023", "expiry_date": "01/02/2024", "details": "Subject to conditions"}
	w, env = suite.do(http.MethodPost, base+"/proposed_approval", suite.assessor, issuance)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "with_approver", object(env, "proposal")["processing_status"])

	w, env = suite.do(http.MethodPost, base+"/final_approval", suite.approver, issuance)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	proposal := object(env, "proposal")
	assert.Equal(t, "approved", proposal["processing_status"])
	approvalID := uint(proposal["approval_id"].(float64))

	w, env = suite.do(http.MethodGet, fmt.Sprintf("/v1/approvals/%d/compliances", approvalID), suite.applicant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	compliances, _ := fields(env)["compliances"].([]interface{})
	require.Len(t, compliances, 2)
	first := compliances[0].(map[string]interface{})
	assert.True(t, strings.HasPrefix(first["due_date"].(string), "2024-01-15"))

	nosy := suite.user("nosy@example.com", "Nia", false)
	w, _ = suite.do(http.MethodGet, fmt.Sprintf("/v1/approvals/%d/compliances", approvalID), nosy, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	complianceID := idOf(first)
	w, _ = suite.do(http.MethodPost, fmt.Sprintf("/v1/compliances/%d/accept", complianceID), suite.assessor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = suite.do(http.MethodPost, fmt.Sprintf("/v1/compliances/%d/submit", complianceID), suite.applicant, map[string]string{"text": "No losses"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/compliances/%d/accept", complianceID), suite.assessor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", object(env, "compliance")["processing_status"])

	w, _ = suite.do(http.MethodGet, fmt.Sprintf("/v1/approvals/%d/licence", approvalID), suite.assessor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w, env = suite.do(http.MethodGet, base+"/action_log", suite.assessor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, env.Meta["pagination"].(map[string]interface{})["total"])

	assert.Equal(t, []string{
		services.TemplateProposalSubmitted,
		services.TemplateApproverReview,
		services.TemplateProposalApproved,
	}, suite.templatesSent())
	assert.Len(t, suite.sent, 3)
}

func (suite *WorkflowTestSuite) TestReferralJourney() {
	t := suite.T()
	id := suite.submittedProposal()
	base := fmt.Sprintf("/v1/proposals/%d", id)

	w, env := suite.do(http.MethodPost, base+"/referrals", suite.assessor, map[string]string{"email": "stranger@dept.gov"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, env = suite.do(http.MethodPost, base+"/referrals", suite.assessor, map[string]string{"email": "Referee@Dept.gov", "text": "Please comment"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	referralID := idOf(object(env, "referral"))

	w, env = suite.do(http.MethodPost, base+"/referrals", suite.assessor, map[string]string{"email": "referee@dept.gov"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	w, env = suite.do(http.MethodGet, base, suite.assessor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "with_referral", object(env, "proposal")["processing_status"])

	var referee models.User
	require.NoError(t, suite.db.Where("email = ?", "referee@dept.gov").First(&referee).Error)

	// Only the referee may complete.
	w, _ = suite.do(http.MethodPost, fmt.Sprintf("/v1/referrals/%d/complete", referralID), suite.assessor, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/referrals/%d/complete", referralID), &referee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", object(env, "referral")["processing_status"])

	w, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/referrals/%d/complete", referralID), &referee, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATUS", env.Error.Code)

	w, env = suite.do(http.MethodGet, base+"/referrals", suite.assessor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fields(env)["referrals"], 1)

	assert.Contains(t, suite.templatesSent(), services.TemplateReferralSent)
	assert.Contains(t, suite.templatesSent(), services.TemplateReferralComplete)
}

func (suite *WorkflowTestSuite) TestErrorResponses() {
	t := suite.T()

	w, env := suite.do(http.MethodGet, "/v1/proposals/1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, env = suite.do(http.MethodGet, "/v1/proposals/9999", suite.assessor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Proposal not found", env.Error.Message)

	w, env = suite.do(http.MethodGet, "/v1/proposals/abc", suite.assessor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid proposal ID", env.Error.Message)

	w, env = suite.do(http.MethodPost, "/v1/proposals", suite.applicant, map[string]interface{}{"activity": "Flora"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := idOf(object(env, "proposal"))

	w, env = suite.do(http.MethodPost, fmt.Sprintf("/v1/proposals/%d/submit", id), suite.applicant, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FIELDS", env.Error.Code)
	assert.Equal(t, "The proposal has these missing fields, Region/District, Title", env.Error.Message)

	// Another proponent cannot see the draft.
	stranger := suite.user("someone@example.com", "Sam", false)
	w, _ = suite.do(http.MethodGet, fmt.Sprintf("/v1/proposals/%d", id), stranger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = suite.do(http.MethodGet, "/v1/proposals", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), env.Meta["pagination"].(map[string]interface{})["total"])

	w, env = suite.do(http.MethodPost, "/v1/groups", suite.admin, map[string]interface{}{"name": "Second default", "kind": "assessor", "is_default": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, _ = suite.do(http.MethodGet, "/v1/groups", suite.applicant, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func (suite *WorkflowTestSuite) TestProfile() {
	t := suite.T()

	w, env := suite.do(http.MethodGet, "/v1/users/me", suite.applicant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := object(env, "user")
	assert.Equal(t, "pat@example.com", me["email"])
	assert.Equal(t, false, me["is_staff"])
	orgs, _ := me["organisations"].([]interface{})
	require.Len(t, orgs, 1)
	assert.Equal(t, "Swan Bees Pty Ltd", orgs[0].(map[string]interface{})["name"])

	w, env = suite.do(http.MethodPut, "/v1/users/me", suite.applicant, map[string]string{"first_name": " Patricia ", "last_name": "Tester"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Patricia", object(env, "user")["first_name"])

	w, env = suite.do(http.MethodPut, "/v1/users/me", suite.applicant, map[string]string{"first_name": "Pat"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func (suite *WorkflowTestSuite) TestHealthAndMetrics() {
	t := suite.T()
	suite.submittedProposal()

	w, _ := suite.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w, _ = suite.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `licensing_transitions_total{operation="submit",outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), `licensing_notifications_total{status="sent",template="proposal_submitted"} 1`)
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}
