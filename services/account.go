package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"adveri/apperr"
	"adveri/config"
	"adveri/models"
	"adveri/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PlatformInput struct {
	Platform string `json:"platform" validate:"required,max=40"`
	Reach    int    `json:"reach" validate:"gte=0"`
}

type RegisterInput struct {
	Username string      `json:"username" validate:"required,min=3,max=80"`
	Email    string      `json:"email" validate:"required,email,max=120"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Role     models.Role `json:"role" validate:"required,oneof=sponsor influencer"`

	// Sponsor fields
	EntityName string  `json:"entity_name" validate:"required_if=Role sponsor,max=120"`
	Budget     float64 `json:"budget" validate:"gte=0"`

	// Influencer fields
	FirstName string          `json:"first_name" validate:"required_if=Role influencer,max=25"`
	LastName  string          `json:"last_name" validate:"max=25"`
	Niche     string          `json:"niche" validate:"required_if=Role influencer,max=80"`
	Platforms []PlatformInput `json:"platforms" validate:"dive"`

	Industry string `json:"industry" validate:"required,max=80"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"access_token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type InfluencerFilter struct {
	Industry string
	Niche    string
	Search   string
}

type AccountService struct {
	db       *gorm.DB
	log      *logrus.Entry
	now      func() time.Time
	hashCost int
}

func NewAccountService(db *gorm.DB, logger *logrus.Logger) *AccountService {
	return &AccountService{
		db:       db,
		log:      componentLogger(logger, "accounts"),
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// Register creates a sponsor or influencer account. Sponsors start
// unapproved and cannot sign in until an admin approves them.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = models.Role(strings.ToLower(string(in.Role)))
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := utils.ValidateEmail(in.Email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Approved:     in.Role != models.RoleSponsor,
		LastLoginAt:  s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).
			Where("LOWER(username) = ? OR email = ?", strings.ToLower(in.Username), in.Email).
			Count(&taken).Error; err != nil {
			return apperr.Internal("check user uniqueness", err)
		}
		if taken > 0 {
			return apperr.Duplicate("username or email already registered")
		}

		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			if isDuplicateKey(err) {
				return apperr.Duplicate("username or email already registered")
			}
			return apperr.Internal("create user", err)
		}

		switch in.Role {
		case models.RoleSponsor:
			user.Sponsor = &models.SponsorProfile{
				UserID:     user.ID,
				EntityName: strings.TrimSpace(in.EntityName),
				Industry:   strings.TrimSpace(in.Industry),
				Budget:     in.Budget,
			}
			if err := tx.Create(user.Sponsor).Error; err != nil {
				if isDuplicateKey(err) {
					return apperr.Duplicate("entity name already registered")
				}
				return apperr.Internal("create sponsor profile", err)
			}
		case models.RoleInfluencer:
			user.Influencer = &models.InfluencerProfile{
				UserID:    user.ID,
				FirstName: strings.TrimSpace(in.FirstName),
				LastName:  strings.TrimSpace(in.LastName),
				Niche:     strings.TrimSpace(in.Niche),
				Industry:  strings.TrimSpace(in.Industry),
			}
			if err := tx.Omit("Platforms").Create(user.Influencer).Error; err != nil {
				return apperr.Internal("create influencer profile", err)
			}
			platforms, err := replacePlatforms(tx, user.ID, in.Platforms)
			if err != nil {
				return err
			}
			user.Influencer.Platforms = platforms
		}
		return nil
	})
	if err != nil {
		return nil, passThrough("register", err)
	}

	utils.LogEvent("user_registered", map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	})
	return user, nil
}

// Login checks the credentials and issues an access token.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("username = ?", strings.TrimSpace(in.Username)).First(&user).Error; err != nil {
		return nil, lookupError("load user", "user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.log.WithField("user_id", user.ID).Warn("Failed login attempt")
		return nil, apperr.Unauthorized("invalid username or password")
	}
	if !user.CanSignIn() {
		return nil, apperr.Unauthorized("sponsor application is not yet approved")
	}

	now := s.now()
	if err := db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, apperr.Internal("record login", err)
	}
	user.LastLoginAt = now

	if err := loadProfile(db, &user); err != nil {
		return nil, err
	}

	token, expiresAt, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return nil, apperr.Internal("sign token", err)
	}
	return &LoginResult{User: &user, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes every token issued to the caller so far.
func (s *AccountService) Logout(ctx context.Context, caller *models.User) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", caller.ID).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
	if err != nil {
		return apperr.Internal("revoke tokens", err)
	}
	caller.TokenVersion++
	return nil
}

// Me returns the caller's account with its role payload.
func (s *AccountService) Me(ctx context.Context, userID uint) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, lookupError("load user", "user", err)
	}
	if err := loadProfile(db, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureAdmin creates the configured admin account if no account with that
// username exists yet.
func (s *AccountService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var existing models.User
	err := db.Where("username = ?", cfg.Username).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			return nil, apperr.Conflict("admin username is taken by a non-admin account")
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("load admin", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("hash admin password", err)
	}
	admin := &models.User{
		Username:     cfg.Username,
		Email:        strings.ToLower(cfg.Email),
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Approved:     true,
		LastLoginAt:  s.now(),
	}
	if err := db.Omit(clause.Associations).Create(admin).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Duplicate("admin email already registered")
		}
		return nil, apperr.Internal("create admin", err)
	}
	s.log.WithField("username", admin.Username).Info("Default admin account created")
	return admin, nil
}

// UpdatePlatforms replaces the caller's platform list.
func (s *AccountService) UpdatePlatforms(ctx context.Context, caller *models.User, platforms []PlatformInput) (*models.InfluencerProfile, error) {
	if err := RequireRole(caller, models.RoleInfluencer); err != nil {
		return nil, err
	}
	for _, p := range platforms {
		if err := utils.ValidateStruct(p); err != nil {
			return nil, err
		}
	}

	var profile models.InfluencerProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&profile, "user_id = ?", caller.ID).Error; err != nil {
			return lookupError("load influencer profile", "influencer profile", err)
		}
		saved, err := replacePlatforms(tx, caller.ID, platforms)
		if err != nil {
			return err
		}
		profile.Platforms = saved
		return nil
	})
	if err != nil {
		return nil, passThrough("update platforms", err)
	}
	return &profile, nil
}

func replacePlatforms(tx *gorm.DB, userID uint, in []PlatformInput) ([]models.InfluencerPlatform, error) {
	if err := tx.Where("user_id = ?", userID).Delete(&models.InfluencerPlatform{}).Error; err != nil {
		return nil, apperr.Internal("clear platforms", err)
	}
	platforms := make([]models.InfluencerPlatform, 0, len(in))
	for _, p := range in {
		platforms = append(platforms, models.InfluencerPlatform{
			UserID:   userID,
			Platform: strings.ToLower(strings.TrimSpace(p.Platform)),
			Reach:    p.Reach,
		})
	}
	if len(platforms) == 0 {
		return platforms, nil
	}
	if err := tx.Create(&platforms).Error; err != nil {
		return nil, apperr.Internal("save platforms", err)
	}
	return platforms, nil
}

// ListInfluencers returns unflagged influencers for sponsors to browse.
func (s *AccountService) ListInfluencers(ctx context.Context, filter InfluencerFilter) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN influencer_profiles ON influencer_profiles.user_id = users.id").
		Where("users.role = ? AND users.is_flagged = ?", models.RoleInfluencer, false)
	if filter.Industry != "" {
		q = q.Where("LOWER(influencer_profiles.industry) = ?", strings.ToLower(strings.TrimSpace(filter.Industry)))
	}
	if filter.Niche != "" {
		q = q.Where("LOWER(influencer_profiles.niche) = ?", strings.ToLower(strings.TrimSpace(filter.Niche)))
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		q = q.Where(`LOWER(users.username) LIKE ? ESCAPE '\' OR LOWER(influencer_profiles.first_name) LIKE ? ESCAPE '\' OR LOWER(influencer_profiles.last_name) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern)
	}

	users := make([]models.User, 0)
	if err := q.Preload("Influencer.Platforms").Order("users.id").Find(&users).Error; err != nil {
		return nil, apperr.Internal("list influencers", err)
	}
	return users, nil
}

// loadProfile fills the relation that matches the user's role.
func loadProfile(db *gorm.DB, user *models.User) error {
	switch user.Role {
	case models.RoleSponsor:
		var p models.SponsorProfile
		if err := db.First(&p, "user_id = ?", user.ID).Error; err != nil {
			return lookupError("load sponsor profile", "sponsor profile", err)
		}
		user.Sponsor = &p
	case models.RoleInfluencer:
		var p models.InfluencerProfile
		if err := db.Preload("Platforms").First(&p, "user_id = ?", user.ID).Error; err != nil {
			return lookupError("load influencer profile", "influencer profile", err)
		}
		user.Influencer = &p
	}
	return nil
}
