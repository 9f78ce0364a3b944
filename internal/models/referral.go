// internal/models/referral.go
package models

import (
	"time"
)

type Referral struct {
	BaseModel
	ProposalID       uint           `json:"proposal_id" gorm:"not null;index"`
	SentByID         uint           `json:"sent_by_id" gorm:"not null"`
	ReferralID       uint           `json:"referral_id" gorm:"not null;index"`
	Linked           bool           `json:"linked" gorm:"default:false"`
	SentFrom         SentFrom       `json:"sent_from" gorm:"type:smallint;default:1"`
	ProcessingStatus ReferralStatus `json:"processing_status" gorm:"type:varchar(30);default:'with_referral';index"`
	LodgedOn         time.Time      `json:"lodged_on"`
	Text             string         `json:"text" gorm:"type:text"`

	// Relationships
	Proposal *Proposal `json:"proposal,omitempty" gorm:"foreignKey:ProposalID"`
	SentBy   *User     `json:"sent_by,omitempty" gorm:"foreignKey:SentByID"`
	Referral *User     `json:"referral,omitempty" gorm:"foreignKey:ReferralID"`
}
