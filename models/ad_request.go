package models

import "time"

type RequestStatus string

const (
	StatusPending     RequestStatus = "pending"
	StatusNegotiation RequestStatus = "negotiation"
	StatusAccepted    RequestStatus = "accepted"
	StatusRejected    RequestStatus = "rejected"
)

// OpenStatuses are the states a request can still leave.
var OpenStatuses = []RequestStatus{StatusPending, StatusNegotiation}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusNegotiation, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransition reports whether the workflow allows moving from s to next.
//
//	pending     -> negotiation | accepted | rejected
//	negotiation -> negotiation | accepted | rejected
//
// Nothing returns to pending and terminal states have no exits.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusNegotiation, StatusAccepted, StatusRejected:
		return s == StatusPending || s == StatusNegotiation
	}
	return false
}

// AdRequest is a proposal between a sponsor and an influencer for one
// campaign. At most one exists per (campaign, receiver).
type AdRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SentBy     Role `gorm:"not null;size:20" json:"sent_by"`
	SenderID   uint `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint `gorm:"not null;uniqueIndex:idx_ad_requests_campaign_receiver,priority:2;index" json:"receiver_id"`
	CampaignID uint `gorm:"not null;uniqueIndex:idx_ad_requests_campaign_receiver,priority:1" json:"campaign_id"`

	Message          string        `gorm:"not null" json:"message"`
	Requirements     string        `gorm:"not null" json:"requirements"`
	PaymentAmount    float64       `gorm:"not null" json:"payment_amount"`
	NegotiatedAmount float64       `gorm:"not null;default:0" json:"negotiated_amount"`
	Status           RequestStatus `gorm:"not null;default:'pending';index;size:20" json:"status"`
}

// EffectiveAmount is the amount that is paid out on acceptance: the
// negotiated amount once a counter-offer exists, the proposed amount before.
func (r *AdRequest) EffectiveAmount() float64 {
	if r.NegotiatedAmount != 0 {
		return r.NegotiatedAmount
	}
	return r.PaymentAmount
}

// IsParty reports whether userID is the sender or the receiver.
func (r *AdRequest) IsParty(userID uint) bool {
	return userID != 0 && (userID == r.SenderID || userID == r.ReceiverID)
}

// InfluencerID is whichever party holds the influencer role.
func (r *AdRequest) InfluencerID() uint {
	if r.SentBy == RoleInfluencer {
		return r.SenderID
	}
	return r.ReceiverID
}

// SponsorID is whichever party holds the sponsor role.
func (r *AdRequest) SponsorID() uint {
	if r.SentBy == RoleSponsor {
		return r.SenderID
	}
	return r.ReceiverID
}

// Counterparty returns the other party's id.
func (r *AdRequest) Counterparty(userID uint) uint {
	if userID == r.SenderID {
		return r.ReceiverID
	}
	return r.SenderID
}

// JoinedInfluencer records a finalized collaboration. Exactly one exists
// per accepted request.
type JoinedInfluencer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	RequestID     uint      `gorm:"not null;uniqueIndex" json:"request_id"`
	CampaignID    uint      `gorm:"not null;index" json:"campaign_id"`
	PaymentAmount float64   `gorm:"not null" json:"payment_amount"`
}

// ItemType names what a Flagged row points at.
type ItemType string

const (
	ItemUser     ItemType = "user"
	ItemCampaign ItemType = "campaign"
)

// Flagged is the moderation ledger. One row per flagged item.
type Flagged struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ItemType  ItemType  `gorm:"not null;size:20;uniqueIndex:idx_flagged_item,priority:1" json:"item_type"`
	ItemID    uint      `gorm:"not null;uniqueIndex:idx_flagged_item,priority:2" json:"item_id"`
	Reason    string    `json:"reason"`
}

func (Flagged) TableName() string {
	return "flagged"
}

// All lists every model for auto-migration, parents first.
func All() []interface{} {
	return []interface{}{
		&User{},
		&SponsorProfile{},
		&InfluencerProfile{},
		&InfluencerPlatform{},
		&Campaign{},
		&AdRequest{},
		&JoinedInfluencer{},
		&Flagged{},
	}
}
