package models

import (
	"math"
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Campaign is a sponsor-owned advertising campaign.
type Campaign struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SponsorID uint      `gorm:"not null;index" json:"sponsor_id"`

	// Campaign details
	Name        string     `gorm:"uniqueIndex;not null" json:"name"`
	Description string     `gorm:"not null" json:"description"`
	StartDate   time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate     time.Time  `gorm:"not null" json:"end_date"`
	Budget      float64    `gorm:"not null" json:"budget"`
	Visibility  Visibility `gorm:"not null;default:'public';size:10" json:"visibility"`

	// Goals (reach is cumulative over accepted requests)
	Goals     int  `gorm:"not null" json:"goals"`
	Reach     int  `gorm:"not null;default:0" json:"campaign_reach"`
	GoalsMet  bool `gorm:"not null;default:false" json:"goals_met"`
	IsFlagged bool `gorm:"not null;default:false" json:"is_flagged"`

	// Relations
	AdRequests        []AdRequest        `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
	JoinedInfluencers []JoinedInfluencer `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
}

// RecomputeGoals refreshes GoalsMet from Reach and Goals.
func (c *Campaign) RecomputeGoals() {
	c.GoalsMet = c.Reach >= c.Goals
}

// Progress is the elapsed share of the campaign window in percent, clamped
// to [0, 100].
func (c *Campaign) Progress(now time.Time) float64 {
	total := c.EndDate.Sub(c.StartDate)
	if total <= 0 {
		if now.Before(c.StartDate) {
			return 0
		}
		return 100
	}
	elapsed := now.Sub(c.StartDate)
	pct := float64(elapsed) / float64(total) * 100
	return math.Max(0, math.Min(100, math.Round(pct*100)/100))
}

// IsDiscoverable reports whether influencers may browse and apply to it.
func (c *Campaign) IsDiscoverable() bool {
	return c.Visibility == VisibilityPublic && !c.IsFlagged
}
