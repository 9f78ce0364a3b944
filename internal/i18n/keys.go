// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeyInternalError     = "internal_error"
	KeyRateLimited       = "rate_limited"
	KeyAccessDenied      = "access_denied"
	KeyValidationInvalid = "validation.invalid"
	KeyInvalidID         = "validation.invalid_id"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAuthUserNotFound  = "auth.user_not_found"
	KeyAuthStaffRequired = "auth.staff_required"

	// Proposals
	KeyProposalNotFound           = "proposal.not_found"
	KeyProposalCreated            = "proposal.created"
	KeyProposalSaved              = "proposal.saved"
	KeyProposalSubmitted          = "proposal.submitted"
	KeyProposalAssigned           = "proposal.assigned"
	KeyProposalUnassigned         = "proposal.unassigned"
	KeyProposalStatusChanged      = "proposal.status_changed"
	KeyProposalDeclineProposed    = "proposal.decline_proposed"
	KeyProposalDeclined           = "proposal.declined"
	KeyProposalApprovalProposed   = "proposal.approval_proposed"
	KeyProposalApproved           = "proposal.approved"
	KeyProposalReissued           = "proposal.reissued"
	KeyProposalAmendmentRequested = "proposal.amendment_requested"
	KeyProposalDiscarded          = "proposal.discarded"

	// Referrals
	KeyReferralNotFound  = "referral.not_found"
	KeyReferralSent      = "referral.sent"
	KeyReferralCompleted = "referral.completed"
	KeyReferralRecalled  = "referral.recalled"
	KeyReferralReminded  = "referral.reminded"
	KeyReferralResent    = "referral.resent"

	// Requirements
	KeyRequirementNotFound = "requirement.not_found"
	KeyRequirementCreated  = "requirement.created"
	KeyRequirementMoved    = "requirement.moved"

	// Groups
	KeyGroupNotFound = "group.not_found"
	KeyGroupCreated  = "group.created"
	KeyGroupUpdated  = "group.updated"

	KeyGroupsMisconfigured = "group.misconfigured"

	// Approvals and compliances
	KeyApprovalNotFound    = "approval.not_found"
	KeyComplianceNotFound  = "compliance.not_found"
	KeyComplianceSubmitted = "compliance.submitted"
	KeyComplianceAccepted  = "compliance.accepted"

	// Users
	KeyUserNotFound       = "user.not_found"
	KeyUserProfileUpdated = "user.profile_updated"

	KeyResourceNotFound = "resource.not_found"
)
