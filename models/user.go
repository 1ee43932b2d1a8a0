package models

import (
	"time"
)

// Role is the discriminator for the account variants.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSponsor    Role = "sponsor"
	RoleInfluencer Role = "influencer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSponsor, RoleInfluencer:
		return true
	}
	return false
}

// Counterpart returns the role an ad request from r must be addressed to.
// Admins have no counterpart.
func (r Role) Counterpart() (Role, bool) {
	switch r {
	case RoleSponsor:
		return RoleInfluencer, true
	case RoleInfluencer:
		return RoleSponsor, true
	}
	return "", false
}

// User is the base account record. The role-specific payload lives in
// SponsorProfile or InfluencerProfile; use Profile to get the variant that
// matches Role.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Authentication fields
	Username     string `gorm:"uniqueIndex;not null;size:80" json:"username"`
	Email        string `gorm:"uniqueIndex;not null;size:120" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Account status
	Role        Role      `gorm:"not null;index;size:20" json:"role"`
	Approved    bool      `gorm:"default:false;not null" json:"approved"`
	IsFlagged   bool      `gorm:"default:false;not null" json:"is_flagged"`
	LastLoginAt time.Time `gorm:"index" json:"last_login_at"`

	// Relations
	Sponsor    *SponsorProfile    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"sponsor,omitempty"`
	Influencer *InfluencerProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"influencer,omitempty"`
}

// SponsorProfile holds the sponsor-only fields.
type SponsorProfile struct {
	UserID     uint    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	EntityName string  `gorm:"uniqueIndex;not null" json:"entity_name"`
	Industry   string  `gorm:"not null;index" json:"industry"`
	Budget     float64 `gorm:"not null;default:0" json:"budget"`
}

// InfluencerProfile holds the influencer-only fields, including the
// earnings ledger credited when ad requests are accepted.
type InfluencerProfile struct {
	UserID    uint                 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	FirstName string               `gorm:"not null;size:25" json:"first_name"`
	LastName  string               `gorm:"not null;size:25" json:"last_name"`
	Niche     string               `gorm:"not null;index" json:"niche"`
	Industry  string               `gorm:"not null;index" json:"industry"`
	Earnings  float64              `gorm:"not null;default:0" json:"earnings"`
	Platforms []InfluencerPlatform `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE" json:"platforms"`
}

// Name is the display name used in listings and emails.
func (p *InfluencerProfile) Name() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// TotalReach sums the audience over all platforms.
func (p *InfluencerProfile) TotalReach() int {
	total := 0
	for _, pl := range p.Platforms {
		total += pl.Reach
	}
	return total
}

// InfluencerPlatform is one audience entry (e.g. instagram, 12000).
type InfluencerPlatform struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Platform string `gorm:"not null" json:"platform"`
	Reach    int    `gorm:"not null;default:0" json:"reach"`
}

func (InfluencerPlatform) TableName() string {
	return "inf_platforms"
}

// RoleProfile is the role-specific payload of a user.
type RoleProfile interface {
	Role() Role
}

// AdminProfile is the empty payload carried by admins.
type AdminProfile struct{}

func (AdminProfile) Role() Role       { return RoleAdmin }
func (*SponsorProfile) Role() Role    { return RoleSponsor }
func (*InfluencerProfile) Role() Role { return RoleInfluencer }

// Profile returns the payload selected by the role tag. It is nil when the
// matching relation was not loaded.
func (u *User) Profile() RoleProfile {
	switch u.Role {
	case RoleAdmin:
		return AdminProfile{}
	case RoleSponsor:
		if u.Sponsor != nil {
			return u.Sponsor
		}
	case RoleInfluencer:
		if u.Influencer != nil {
			return u.Influencer
		}
	}
	return nil
}

// CanSignIn reports whether the account may log in and be contacted.
// Only sponsors need approval.
func (u *User) CanSignIn() bool {
	return u.Role != RoleSponsor || u.Approved
}
