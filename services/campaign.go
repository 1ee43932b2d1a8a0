package services

import (
	"context"
	"strings"
	"time"

	"adveri/apperr"
	"adveri/models"
	"adveri/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreateCampaignInput struct {
	Name        string            `json:"name" validate:"required,max=120"`
	Description string            `json:"description" validate:"required,max=2000"`
	StartDate   string            `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string            `json:"end_date" validate:"required,datetime=2006-01-02"`
	Budget      float64           `json:"budget" validate:"required,gt=0"`
	Goals       int               `json:"goals" validate:"required,gt=0"`
	Visibility  models.Visibility `json:"visibility" validate:"omitempty,oneof=public private"`
}

// UpdateCampaignInput is a partial replacement; nil fields keep their value.
type UpdateCampaignInput struct {
	Name        *string            `json:"name" validate:"omitempty,min=1,max=120"`
	Description *string            `json:"description" validate:"omitempty,min=1,max=2000"`
	StartDate   *string            `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string            `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Budget      *float64           `json:"budget" validate:"omitempty,gt=0"`
	Goals       *int               `json:"goals" validate:"omitempty,gt=0"`
	Visibility  *models.Visibility `json:"visibility" validate:"omitempty,oneof=public private"`
}

type CampaignFilter struct {
	SponsorID      uint
	PublicOnly     bool
	IncludeFlagged bool
	FlaggedOnly    bool
	Search         string
}

// JoinedSummary is one confirmed collaboration on a campaign.
type JoinedSummary struct {
	UserID        uint      `json:"user_id"`
	Name          string    `json:"name"`
	RequestID     uint      `json:"request_id"`
	PaymentAmount float64   `json:"payment_amount"`
	JoinedAt      time.Time `json:"joined_at"`
}

type CampaignDetails struct {
	Campaign    models.Campaign  `json:"campaign"`
	Progress    float64          `json:"progress"`
	Expenditure float64          `json:"expenditure"`
	Joined      []JoinedSummary  `json:"joined_influencers"`
	Requests    map[string]int64 `json:"requests"`
}

type CampaignService struct {
	db  *gorm.DB
	log *logrus.Entry
	now func() time.Time
}

func NewCampaignService(db *gorm.DB, logger *logrus.Logger) *CampaignService {
	return &CampaignService{
		db:  db,
		log: componentLogger(logger, "campaigns"),
		now: time.Now,
	}
}

func (s *CampaignService) Create(ctx context.Context, caller *models.User, in CreateCampaignInput) (*models.Campaign, error) {
	if err := CanCreateCampaign(caller); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}

	campaign := &models.Campaign{
		SponsorID:   caller.ID,
		Name:        in.Name,
		Description: in.Description,
		StartDate:   start,
		EndDate:     end,
		Budget:      in.Budget,
		Goals:       in.Goals,
		Visibility:  in.Visibility,
	}
	campaign.RecomputeGoals()

	if err := s.db.WithContext(ctx).Create(campaign).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Duplicate("campaign name already exists")
		}
		return nil, apperr.Internal("create campaign", err)
	}

	s.log.WithFields(logrus.Fields{"campaign_id": campaign.ID, "sponsor_id": caller.ID}).Info("Campaign created")
	return campaign, nil
}

func (s *CampaignService) Update(ctx context.Context, caller *models.User, id uint, in UpdateCampaignInput) (*models.Campaign, error) {
	in.Name = trimmed(in.Name)
	in.Description = trimmed(in.Description)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	var campaign models.Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&campaign, id).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		if err := CanManageCampaign(caller, &campaign); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		start, end := campaign.StartDate, campaign.EndDate
		if in.Name != nil {
			updates["name"] = *in.Name
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.StartDate != nil {
			t, err := parseDate("start_date", *in.StartDate)
			if err != nil {
				return err
			}
			start = t
			updates["start_date"] = t
		}
		if in.EndDate != nil {
			t, err := parseDate("end_date", *in.EndDate)
			if err != nil {
				return err
			}
			end = t
			updates["end_date"] = t
		}
		if end.Before(start) {
			return apperr.Validation("end_date must not be before start_date")
		}
		if in.Budget != nil {
			updates["budget"] = *in.Budget
		}
		if in.Goals != nil {
			updates["goals"] = *in.Goals
			updates["goals_met"] = gorm.Expr("reach >= ?", *in.Goals)
		}
		if in.Visibility != nil {
			updates["visibility"] = *in.Visibility
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&models.Campaign{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isDuplicateKey(err) {
				return apperr.Duplicate("campaign name already exists")
			}
			return apperr.Internal("update campaign", err)
		}
		return tx.First(&campaign, id).Error
	})
	if err != nil {
		return nil, passThrough("update campaign", err)
	}
	return &campaign, nil
}

// Delete removes the campaign together with its requests, collaborations
// and flag entry.
func (s *CampaignService) Delete(ctx context.Context, caller *models.User, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, id).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		if err := CanManageCampaign(caller, &campaign); err != nil {
			return err
		}
		return deleteCampaignTx(tx, id)
	})
	if err != nil {
		return passThrough("delete campaign", err)
	}
	s.log.WithField("campaign_id", id).Info("Campaign deleted")
	return nil
}

func deleteCampaignTx(tx *gorm.DB, id uint) error {
	steps := []struct {
		model interface{}
		query string
		args  []interface{}
	}{
		{&models.JoinedInfluencer{}, "campaign_id = ?", []interface{}{id}},
		{&models.AdRequest{}, "campaign_id = ?", []interface{}{id}},
		{&models.Flagged{}, "item_type = ? AND item_id = ?", []interface{}{models.ItemCampaign, id}},
		{&models.Campaign{}, "id = ?", []interface{}{id}},
	}
	for _, step := range steps {
		if err := tx.Where(step.query, step.args...).Delete(step.model).Error; err != nil {
			return apperr.Internal("delete campaign rows", err)
		}
	}
	return nil
}

func (s *CampaignService) Get(ctx context.Context, caller *models.User, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, lookupError("load campaign", "campaign", err)
	}
	if err := CanViewCampaign(caller, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// List returns campaigns matching filter, newest first. Search is a
// case-insensitive substring match over name and description.
func (s *CampaignService) List(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error) {
	return listCampaigns(s.db.WithContext(ctx), filter)
}

func listCampaigns(db *gorm.DB, filter CampaignFilter) ([]models.Campaign, error) {
	q := db.Model(&models.Campaign{})
	if filter.SponsorID != 0 {
		q = q.Where("sponsor_id = ?", filter.SponsorID)
	}
	if filter.PublicOnly {
		q = q.Where("visibility = ?", models.VisibilityPublic)
	}
	switch {
	case filter.FlaggedOnly:
		q = q.Where("is_flagged = ?", true)
	case !filter.IncludeFlagged:
		q = q.Where("is_flagged = ?", false)
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	campaigns := make([]models.Campaign, 0)
	if err := q.Order("created_at DESC, id DESC").Find(&campaigns).Error; err != nil {
		return nil, apperr.Internal("list campaigns", err)
	}
	return campaigns, nil
}

// Details adds progress, spend and the joined influencers to a campaign.
func (s *CampaignService) Details(ctx context.Context, caller *models.User, id uint) (*CampaignDetails, error) {
	campaign, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	details := &CampaignDetails{
		Campaign: *campaign,
		Progress: campaign.Progress(s.now()),
		Joined:   make([]JoinedSummary, 0),
		Requests: map[string]int64{},
	}

	var joins []models.JoinedInfluencer
	if err := db.Where("campaign_id = ?", id).Order("created_at").Find(&joins).Error; err != nil {
		return nil, apperr.Internal("load joined influencers", err)
	}
	if len(joins) > 0 {
		ids := make([]uint, 0, len(joins))
		for _, j := range joins {
			ids = append(ids, j.UserID)
		}
		var profiles []models.InfluencerProfile
		if err := db.Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
			return nil, apperr.Internal("load influencer profiles", err)
		}
		names := make(map[uint]string, len(profiles))
		for i := range profiles {
			names[profiles[i].UserID] = profiles[i].Name()
		}
		for _, j := range joins {
			details.Joined = append(details.Joined, JoinedSummary{
				UserID:        j.UserID,
				Name:          names[j.UserID],
				RequestID:     j.RequestID,
				PaymentAmount: j.PaymentAmount,
				JoinedAt:      j.CreatedAt,
			})
			details.Expenditure += j.PaymentAmount
		}
	}

	// Only the owner and admins see the request breakdown.
	if caller.ID == campaign.SponsorID || caller.Role == models.RoleAdmin {
		var rows []struct {
			Status models.RequestStatus
			Count  int64
		}
		if err := db.Model(&models.AdRequest{}).
			Select("status, COUNT(*) AS count").
			Where("campaign_id = ?", id).
			Group("status").
			Scan(&rows).Error; err != nil {
			return nil, apperr.Internal("count campaign requests", err)
		}
		for _, r := range rows {
			details.Requests[string(r.Status)] = r.Count
		}
	}
	return details, nil
}
