package services

import (
	"context"
	"strings"

	"adveri/apperr"
	"adveri/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserFilter struct {
	Role        models.Role
	FlaggedOnly bool
	Search      string
}

// FlaggedItems is the moderation ledger joined to what it points at.
type FlaggedItems struct {
	Entries   []models.Flagged  `json:"entries"`
	Users     []models.User     `json:"users"`
	Campaigns []models.Campaign `json:"campaigns"`
}

type DashboardStats struct {
	Sponsors            int64            `json:"sponsors"`
	Influencers         int64            `json:"influencers"`
	Campaigns           int64            `json:"campaigns"`
	PublicCampaigns     int64            `json:"public_campaigns"`
	FlaggedUsers        int64            `json:"flagged_users"`
	FlaggedCampaigns    int64            `json:"flagged_campaigns"`
	PendingApplications int64            `json:"pending_sponsor_applications"`
	Requests            map[string]int64 `json:"ad_requests"`
	TotalPayouts        float64          `json:"total_payouts"`
}

type ModerationService struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewModerationService(db *gorm.DB, logger *logrus.Logger) *ModerationService {
	return &ModerationService{
		db:  db,
		log: componentLogger(logger, "moderation"),
	}
}

// SponsorApplications lists sponsors waiting for approval.
func (s *ModerationService) SponsorApplications(ctx context.Context, caller *models.User) ([]models.User, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	users := make([]models.User, 0)
	err := s.db.WithContext(ctx).
		Preload("Sponsor").
		Where("role = ? AND approved = ?", models.RoleSponsor, false).
		Order("created_at").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Internal("list sponsor applications", err)
	}
	return users, nil
}

func (s *ModerationService) ApproveSponsor(ctx context.Context, caller *models.User, id uint) (*models.User, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	user, err := loadSponsor(db, id)
	if err != nil {
		return nil, err
	}
	if !user.Approved {
		if err := db.Model(user).UpdateColumn("approved", true).Error; err != nil {
			return nil, apperr.Internal("approve sponsor", err)
		}
		user.Approved = true
		s.log.WithFields(logrus.Fields{"user_id": id, "admin_id": caller.ID}).Info("Sponsor approved")
	}
	return user, nil
}

// RejectSponsor discards a pending application together with the account.
func (s *ModerationService) RejectSponsor(ctx context.Context, caller *models.User, id uint) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadSponsor(tx, id)
		if err != nil {
			return err
		}
		if user.Approved {
			return apperr.Conflict("sponsor is already approved")
		}
		return deleteUserTx(tx, user)
	})
	if err != nil {
		return passThrough("reject sponsor", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "admin_id": caller.ID}).Info("Sponsor application rejected")
	return nil
}

func loadSponsor(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.Preload("Sponsor").Where("role = ?", models.RoleSponsor).First(&user, id).Error; err != nil {
		return nil, lookupError("load sponsor", "sponsor", err)
	}
	return &user, nil
}

func (s *ModerationService) FlagUser(ctx context.Context, caller *models.User, id uint, reason string) error {
	return s.setUserFlag(ctx, caller, id, reason, true)
}

func (s *ModerationService) UnflagUser(ctx context.Context, caller *models.User, id uint) error {
	return s.setUserFlag(ctx, caller, id, "", false)
}

func (s *ModerationService) setUserFlag(ctx context.Context, caller *models.User, id uint, reason string, flagged bool) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return lookupError("load user", "user", err)
		}
		if user.Role == models.RoleAdmin {
			return apperr.Forbidden("admins cannot be flagged")
		}
		if err := setFlagTx(tx, models.ItemUser, id, reason, flagged); err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", id).UpdateColumn("is_flagged", flagged).Error
	})
	if err != nil {
		return passThrough("flag user", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "flagged": flagged, "admin_id": caller.ID}).Info("User flag changed")
	return nil
}

func (s *ModerationService) FlagCampaign(ctx context.Context, caller *models.User, id uint, reason string) error {
	return s.setCampaignFlag(ctx, caller, id, reason, true)
}

func (s *ModerationService) UnflagCampaign(ctx context.Context, caller *models.User, id uint) error {
	return s.setCampaignFlag(ctx, caller, id, "", false)
}

func (s *ModerationService) setCampaignFlag(ctx context.Context, caller *models.User, id uint, reason string, flagged bool) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, id).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		if err := setFlagTx(tx, models.ItemCampaign, id, reason, flagged); err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", id).UpdateColumn("is_flagged", flagged).Error
	})
	if err != nil {
		return passThrough("flag campaign", err)
	}
	s.log.WithFields(logrus.Fields{"campaign_id": id, "flagged": flagged, "admin_id": caller.ID}).Info("Campaign flag changed")
	return nil
}

// setFlagTx makes sure a ledger row exists (flagged) or is gone (unflagged).
// Repeating either call changes nothing.
func setFlagTx(tx *gorm.DB, itemType models.ItemType, id uint, reason string, flagged bool) error {
	if !flagged {
		if err := tx.Where("item_type = ? AND item_id = ?", itemType, id).Delete(&models.Flagged{}).Error; err != nil {
			return apperr.Internal("remove flag", err)
		}
		return nil
	}

	entry := models.Flagged{ItemType: itemType, ItemID: id, Reason: strings.TrimSpace(reason)}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_type"}, {Name: "item_id"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil {
		return apperr.Internal("record flag", err)
	}
	return nil
}

// DeleteUser removes an account and everything that hangs off it.
func (s *ModerationService) DeleteUser(ctx context.Context, caller *models.User, id uint) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return lookupError("load user", "user", err)
		}
		if user.Role == models.RoleAdmin {
			return apperr.Forbidden("admins cannot be deleted")
		}
		return deleteUserTx(tx, &user)
	})
	if err != nil {
		return passThrough("delete user", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "admin_id": caller.ID}).Info("User deleted")
	return nil
}

func deleteUserTx(tx *gorm.DB, user *models.User) error {
	if user.Role == models.RoleSponsor {
		var campaignIDs []uint
		if err := tx.Model(&models.Campaign{}).Where("sponsor_id = ?", user.ID).Pluck("id", &campaignIDs).Error; err != nil {
			return apperr.Internal("list sponsor campaigns", err)
		}
		for _, cid := range campaignIDs {
			if err := deleteCampaignTx(tx, cid); err != nil {
				return err
			}
		}
	}

	steps := []struct {
		model interface{}
		query string
		args  []interface{}
	}{
		{&models.JoinedInfluencer{}, "user_id = ?", []interface{}{user.ID}},
		{&models.AdRequest{}, "sender_id = ? OR receiver_id = ?", []interface{}{user.ID, user.ID}},
		{&models.InfluencerPlatform{}, "user_id = ?", []interface{}{user.ID}},
		{&models.InfluencerProfile{}, "user_id = ?", []interface{}{user.ID}},
		{&models.SponsorProfile{}, "user_id = ?", []interface{}{user.ID}},
		{&models.Flagged{}, "item_type = ? AND item_id = ?", []interface{}{models.ItemUser, user.ID}},
		{&models.User{}, "id = ?", []interface{}{user.ID}},
	}
	for _, step := range steps {
		if err := tx.Where(step.query, step.args...).Delete(step.model).Error; err != nil {
			return apperr.Internal("delete user rows", err)
		}
	}
	return nil
}

func (s *ModerationService) DeleteCampaign(ctx context.Context, caller *models.User, id uint) error {
	if err := RequireAdmin(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, id).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		return deleteCampaignTx(tx, id)
	})
	if err != nil {
		return passThrough("delete campaign", err)
	}
	s.log.WithFields(logrus.Fields{"campaign_id": id, "admin_id": caller.ID}).Info("Campaign deleted by admin")
	return nil
}

func (s *ModerationService) ListUsers(ctx context.Context, caller *models.User, filter UserFilter) ([]models.User, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.User{}).Preload("Sponsor").Preload("Influencer.Platforms")
	if filter.Role != "" {
		if !filter.Role.Valid() {
			return nil, apperr.Validation("role must be one of: admin, sponsor, influencer")
		}
		q = q.Where("role = ?", filter.Role)
	}
	if filter.FlaggedOnly {
		q = q.Where("is_flagged = ?", true)
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		q = q.Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	users := make([]models.User, 0)
	if err := q.Order("id").Find(&users).Error; err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return users, nil
}

// ListCampaigns shows every campaign, flagged and private ones included.
func (s *ModerationService) ListCampaigns(ctx context.Context, caller *models.User, search string, flaggedOnly bool) ([]models.Campaign, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	return listCampaigns(s.db.WithContext(ctx), CampaignFilter{
		IncludeFlagged: true,
		FlaggedOnly:    flaggedOnly,
		Search:         search,
	})
}

func (s *ModerationService) ListFlagged(ctx context.Context, caller *models.User) (*FlaggedItems, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	out := &FlaggedItems{
		Entries:   make([]models.Flagged, 0),
		Users:     make([]models.User, 0),
		Campaigns: make([]models.Campaign, 0),
	}
	if err := db.Order("created_at DESC, id DESC").Find(&out.Entries).Error; err != nil {
		return nil, apperr.Internal("list flagged entries", err)
	}
	if err := db.Where("is_flagged = ?", true).Order("id").Find(&out.Users).Error; err != nil {
		return nil, apperr.Internal("list flagged users", err)
	}
	if err := db.Where("is_flagged = ?", true).Order("id").Find(&out.Campaigns).Error; err != nil {
		return nil, apperr.Internal("list flagged campaigns", err)
	}
	return out, nil
}

// DashboardStats aggregates the admin overview counters.
func (s *ModerationService) DashboardStats(ctx context.Context, caller *models.User) (*DashboardStats, error) {
	if err := RequireAdmin(caller); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{Requests: map[string]int64{}}

	counts := []struct {
		dst   *int64
		model interface{}
		query string
		args  []interface{}
	}{
		{&stats.Sponsors, &models.User{}, "role = ? AND approved = ?", []interface{}{models.RoleSponsor, true}},
		{&stats.Influencers, &models.User{}, "role = ?", []interface{}{models.RoleInfluencer}},
		{&stats.PendingApplications, &models.User{}, "role = ? AND approved = ?", []interface{}{models.RoleSponsor, false}},
		{&stats.FlaggedUsers, &models.User{}, "is_flagged = ?", []interface{}{true}},
		{&stats.Campaigns, &models.Campaign{}, "1 = 1", nil},
		{&stats.PublicCampaigns, &models.Campaign{}, "visibility = ?", []interface{}{models.VisibilityPublic}},
		{&stats.FlaggedCampaigns, &models.Campaign{}, "is_flagged = ?", []interface{}{true}},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Where(c.query, c.args...).Count(c.dst).Error; err != nil {
			return nil, apperr.Internal("dashboard count", err)
		}
	}

	var rows []struct {
		Status models.RequestStatus
		Count  int64
	}
	if err := db.Model(&models.AdRequest{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, apperr.Internal("dashboard request counts", err)
	}
	for _, r := range rows {
		stats.Requests[string(r.Status)] = r.Count
	}

	if err := db.Model(&models.JoinedInfluencer{}).Select("COALESCE(SUM(payment_amount), 0)").Scan(&stats.TotalPayouts).Error; err != nil {
		return nil, apperr.Internal("dashboard payouts", err)
	}
	return stats, nil
}
