package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"adveri/config"
	"adveri/models"
	"adveri/utils"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	t          *testing.T
	db         *gorm.DB
	hub        *utils.EventHub
	accounts   *AccountService
	campaigns  *CampaignService
	requests   *AdRequestService
	moderation *ModerationService
	ctx        context.Context
	seq        int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	hub := utils.NewEventHub()

	accounts := NewAccountService(db, log)
	accounts.hashCost = bcrypt.MinCost

	return &fixture{
		t:          t,
		db:         db,
		hub:        hub,
		accounts:   accounts,
		campaigns:  NewCampaignService(db, log),
		requests:   NewAdRequestService(db, hub, log),
		moderation: NewModerationService(db, log),
		ctx:        context.Background(),
	}
}

func (f *fixture) next() int {
	f.seq++
	return f.seq
}

func (f *fixture) admin() *models.User {
	f.t.Helper()
	u := &models.User{
		Username:     fmt.Sprintf("admin%d", f.next()),
		Email:        fmt.Sprintf("admin%d@adveri.test", f.seq),
		PasswordHash: "x",
		Role:         models.RoleAdmin,
		Approved:     true,
	}
	if err := f.db.Create(u).Error; err != nil {
		f.t.Fatalf("create admin: %v", err)
	}
	return u
}

func (f *fixture) sponsor(approved bool) *models.User {
	f.t.Helper()
	n := f.next()
	u := &models.User{
		Username:     fmt.Sprintf("sponsor%d", n),
		Email:        fmt.Sprintf("sponsor%d@adveri.test", n),
		PasswordHash: "x",
		Role:         models.RoleSponsor,
		Approved:     approved,
		Sponsor: &models.SponsorProfile{
			EntityName: fmt.Sprintf("Entity %d", n),
			Industry:   "tech",
			Budget:     5000,
		},
	}
	if err := f.db.Create(u).Error; err != nil {
		f.t.Fatalf("create sponsor: %v", err)
	}
	return u
}

func (f *fixture) influencer(reach ...int) *models.User {
	f.t.Helper()
	n := f.next()
	var platforms []models.InfluencerPlatform
	for i, r := range reach {
		platforms = append(platforms, models.InfluencerPlatform{Platform: fmt.Sprintf("p%d", i), Reach: r})
	}
	u := &models.User{
		Username:     fmt.Sprintf("influencer%d", n),
		Email:        fmt.Sprintf("influencer%d@adveri.test", n),
		PasswordHash: "x",
		Role:         models.RoleInfluencer,
		Approved:     true,
		Influencer: &models.InfluencerProfile{
			FirstName: "Inf",
			LastName:  fmt.Sprint(n),
			Niche:     "fitness",
			Industry:  "health",
			Platforms: platforms,
		},
	}
	if err := f.db.Create(u).Error; err != nil {
		f.t.Fatalf("create influencer: %v", err)
	}
	return u
}

func (f *fixture) campaign(owner *models.User, visibility models.Visibility, goals int) *models.Campaign {
	f.t.Helper()
	n := f.next()
	start := time.Now().AddDate(0, 0, -1)
	c := &models.Campaign{
		SponsorID:   owner.ID,
		Name:        fmt.Sprintf("Campaign %d", n),
		Description: "Spring launch",
		StartDate:   start,
		EndDate:     start.AddDate(0, 1, 0),
		Budget:      1000,
		Goals:       goals,
		Visibility:  visibility,
	}
	if err := f.db.Create(c).Error; err != nil {
		f.t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (f *fixture) propose(sender, receiver *models.User, c *models.Campaign, amount float64) *models.AdRequest {
	f.t.Helper()
	req, err := f.requests.Create(f.ctx, sender, CreateAdRequestInput{
		CampaignID:    c.ID,
		ReceiverID:    receiver.ID,
		Message:       "Work with us",
		Requirements:  "Two posts",
		PaymentAmount: amount,
	})
	if err != nil {
		f.t.Fatalf("create request: %v", err)
	}
	return req
}

func (f *fixture) earnings(userID uint) float64 {
	f.t.Helper()
	var p models.InfluencerProfile
	if err := f.db.First(&p, "user_id = ?", userID).Error; err != nil {
		f.t.Fatalf("load profile: %v", err)
	}
	return p.Earnings
}

func (f *fixture) count(model interface{}, query string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	if err := f.db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		f.t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) reload(c *models.Campaign) *models.Campaign {
	f.t.Helper()
	var out models.Campaign
	if err := f.db.First(&out, c.ID).Error; err != nil {
		f.t.Fatalf("reload campaign: %v", err)
	}
	return &out
}
