package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"adveri/config"
	"adveri/services"
	"adveri/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	t   *testing.T
	app *fiber.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	config.AppConfig.JWTSecretKey = "routes-secret"
	config.AppConfig.JWTExpiry = time.Hour

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, _ := test.NewNullLogger()
	hub := utils.NewEventHub()
	accounts := services.NewAccountService(db, log)
	if _, err := accounts.EnsureAdmin(context.Background(), config.AdminConfig{Username: "admin", Email: "admin@adveri.test", Password: "root"}); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	SetupRoutes(app, Deps{
		DB:             db,
		Accounts:       accounts,
		Campaigns:      services.NewCampaignService(db, log),
		Requests:       services.NewAdRequestService(db, hub, log),
		Moderation:     services.NewModerationService(db, log),
		Hub:            hub,
		LoginRateLimit: 1000,
	})
	return &testServer{t: t, app: app}
}

// do sends a JSON request and decodes the JSON response into a map.
func (s *testServer) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	status, body := s.do("POST", "/login", "", fiber.Map{"username": username, "password": password})
	if status != fiber.StatusOK {
		s.t.Fatalf("login %s: %d %v", username, status, body)
	}
	return body["access_token"].(string)
}

func id(m map[string]interface{}, keys ...string) uint {
	for _, k := range keys[:len(keys)-1] {
		m = m[k].(map[string]interface{})
	}
	return uint(m[keys[len(keys)-1]].(float64))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if status, body := s.do("GET", "/health", "", nil); status != fiber.StatusOK || body["status"] != "running" {
		t.Errorf("health = %d %v", status, body)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do("POST", "/register", "", fiber.Map{
		"username": "ada", "email": "ada@example.com", "password": "s3cret!",
		"role": "influencer", "first_name": "Ada", "niche": "tech", "industry": "software",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register = %d", status)
	}
	influencer := s.login("ada", "s3cret!")
	admin := s.login("admin", "root")

	paths := []string{"/admin/dashboard", "/admin/users", "/admin/flagged", "/admin/sponsor_applications"}
	for _, p := range paths {
		if status, _ := s.do("GET", p, "", nil); status != fiber.StatusUnauthorized {
			t.Errorf("anonymous %s = %d, want 401", p, status)
		}
		if status, _ := s.do("GET", p, influencer, nil); status != fiber.StatusForbidden {
			t.Errorf("influencer %s = %d, want 403", p, status)
		}
		if status, body := s.do("GET", p, admin, nil); status != fiber.StatusOK {
			t.Errorf("admin %s = %d %v", p, status, body)
		}
	}

	if status, _ := s.do("GET", "/sponsor/campaigns", influencer, nil); status != fiber.StatusForbidden {
		t.Errorf("influencer on sponsor route = %d", status)
	}
	if status, _ := s.do("GET", "/influencer/campaigns", admin, nil); status != fiber.StatusForbidden {
		t.Errorf("admin on influencer route = %d", status)
	}
}

func TestRegisterAndLoginErrors(t *testing.T) {
	s := newTestServer(t)
	sponsor := fiber.Map{
		"username": "acme", "email": "ops@acme.test", "password": "s3cret!",
		"role": "sponsor", "entity_name": "Acme", "industry": "retail",
	}
	if status, body := s.do("POST", "/register", "", sponsor); status != fiber.StatusCreated {
		t.Fatalf("register = %d %v", status, body)
	}
	status, body := s.do("POST", "/register", "", sponsor)
	if status != fiber.StatusConflict || body["error"] == "" {
		t.Errorf("duplicate register = %d %v", status, body)
	}
	if status, _ := s.do("POST", "/register", "", fiber.Map{"username": "x"}); status != fiber.StatusBadRequest {
		t.Errorf("invalid register = %d", status)
	}

	status, body = s.do("POST", "/login", "", fiber.Map{"username": "acme", "password": "s3cret!"})
	if status != fiber.StatusUnauthorized || body["error"] != "sponsor application is not yet approved" {
		t.Errorf("unapproved login = %d %v", status, body)
	}
	if status, _ := s.do("POST", "/login", "", fiber.Map{"username": "ghost", "password": "x"}); status != fiber.StatusNotFound {
		t.Errorf("unknown login = %d", status)
	}
}

func TestAdRequestFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "root")

	status, body := s.do("POST", "/register", "", fiber.Map{
		"username": "acme", "email": "ops@acme.test", "password": "s3cret!",
		"role": "sponsor", "entity_name": "Acme", "industry": "retail", "budget": 5000,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register sponsor = %d %v", status, body)
	}
	sponsorID := id(body, "user", "id")
	if status, _ := s.do("PUT", fmt.Sprintf("/admin/approve_sponsor/%d", sponsorID), admin, nil); status != fiber.StatusOK {
		t.Fatalf("approve = %d", status)
	}
	sponsor := s.login("acme", "s3cret!")

	status, body = s.do("POST", "/register", "", fiber.Map{
		"username": "ada", "email": "ada@example.com", "password": "s3cret!",
		"role": "influencer", "first_name": "Ada", "niche": "tech", "industry": "software",
		"platforms": []fiber.Map{{"platform": "youtube", "reach": 700}, {"platform": "tiktok", "reach": 300}},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register influencer = %d %v", status, body)
	}
	influencerID := id(body, "user", "id")
	influencer := s.login("ada", "s3cret!")

	status, body = s.do("POST", "/sponsor/create_campaign", sponsor, fiber.Map{
		"name": "Launch", "description": "Gadget launch", "start_date": "2026-01-01",
		"end_date": "2026-12-31", "budget": 1000, "goals": 800,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create campaign = %d %v", status, body)
	}
	campaignID := id(body, "id")

	status, body = s.do("GET", "/influencer/campaigns?search=GADGET", influencer, nil)
	if status != fiber.StatusOK || len(body["campaigns"].([]interface{})) != 1 {
		t.Fatalf("discovery = %d %v", status, body)
	}

	status, body = s.do("POST", fmt.Sprintf("/%d/send_request", campaignID), sponsor, fiber.Map{
		"receiver_id": influencerID, "message": "Join us", "requirements": "2 videos", "payment_amount": 200,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("send request = %d %v", status, body)
	}
	requestID := id(body, "ad_request", "id")

	if status, _ := s.do("POST", fmt.Sprintf("/%d/send_request", campaignID), sponsor, fiber.Map{
		"receiver_id": influencerID, "message": "Again", "requirements": "x", "payment_amount": 50,
	}); status != fiber.StatusConflict {
		t.Errorf("duplicate request = %d", status)
	}

	status, body = s.do("GET", "/requests", influencer, nil)
	if status != fiber.StatusOK || len(body["received_requests"].([]interface{})) != 1 || len(body["sent_requests"].([]interface{})) != 0 {
		t.Fatalf("list = %d %v", status, body)
	}

	status, body = s.do("PUT", fmt.Sprintf("/negotiate_payment_amount/%d", requestID), influencer, fiber.Map{"negotiated_amount": 250})
	if status != fiber.StatusOK || body["ad_request"].(map[string]interface{})["status"] != "negotiation" {
		t.Fatalf("negotiate = %d %v", status, body)
	}

	if status, _ := s.do("PUT", fmt.Sprintf("/edit_request/%d", requestID), sponsor, fiber.Map{"message": "late edit"}); status != fiber.StatusConflict {
		t.Errorf("edit during negotiation = %d, want 409", status)
	}

	status, body = s.do("PUT", fmt.Sprintf("/edit_request/%d", requestID), sponsor, fiber.Map{"status": "accepted"})
	if status != fiber.StatusOK {
		t.Fatalf("accept = %d %v", status, body)
	}
	if status, _ := s.do("PUT", fmt.Sprintf("/edit_request/%d", requestID), influencer, fiber.Map{"status": "rejected"}); status != fiber.StatusConflict {
		t.Errorf("resolve twice = %d, want 409", status)
	}

	status, body = s.do("GET", "/influencer/profile", influencer, nil)
	if status != fiber.StatusOK || body["earnings"] != float64(250) {
		t.Errorf("profile = %d %v", status, body)
	}

	status, body = s.do("GET", fmt.Sprintf("/sponsor/edit_campaign/%d", campaignID), sponsor, nil)
	if status != fiber.StatusOK {
		t.Fatalf("details = %d %v", status, body)
	}
	campaign := body["campaign"].(map[string]interface{})
	if campaign["campaign_reach"] != float64(1000) || campaign["goals_met"] != true {
		t.Errorf("campaign = %v", campaign)
	}
	if len(body["joined_influencers"].([]interface{})) != 1 {
		t.Errorf("joined = %v", body["joined_influencers"])
	}

	if status, _ := s.do("DELETE", fmt.Sprintf("/edit_request/%d", requestID), sponsor, nil); status != fiber.StatusConflict {
		t.Errorf("delete resolved request = %d, want 409", status)
	}
	if status, _ := s.do("POST", "/logout", influencer, nil); status != fiber.StatusOK {
		t.Errorf("logout = %d", status)
	}
	if status, _ := s.do("GET", "/me", influencer, nil); status != fiber.StatusUnauthorized {
		t.Errorf("revoked token = %d, want 401", status)
	}
}

func TestSponsorBatchIsAllOrNothing(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "root")

	_, body := s.do("POST", "/register", "", fiber.Map{
		"username": "acme", "email": "ops@acme.test", "password": "s3cret!",
		"role": "sponsor", "entity_name": "Acme", "industry": "retail",
	})
	s.do("PUT", fmt.Sprintf("/admin/approve_sponsor/%d", id(body, "user", "id")), admin, nil)
	sponsor := s.login("acme", "s3cret!")

	var influencers []uint
	for _, name := range []string{"ada", "bob"} {
		_, body := s.do("POST", "/register", "", fiber.Map{
			"username": name, "email": name + "@example.com", "password": "s3cret!",
			"role": "influencer", "first_name": name, "niche": "tech", "industry": "software",
		})
		influencers = append(influencers, id(body, "user", "id"))
	}

	_, body = s.do("POST", "/sponsor/create_campaign", sponsor, fiber.Map{
		"name": "Batch", "description": "d", "start_date": "2026-01-01",
		"end_date": "2026-02-01", "budget": 100, "goals": 10,
	})
	campaignID := id(body, "id")

	item := func(id uint) fiber.Map {
		return fiber.Map{"influencer_id": id, "message": "hi", "requirements": "post", "payment_amount": 10}
	}
	status, body := s.do("POST", "/sponsor/send_request", sponsor, fiber.Map{
		"campaign_id": campaignID,
		"influencers": []fiber.Map{item(influencers[0]), item(9999)},
	})
	if status != fiber.StatusBadRequest || len(body["errors"].([]interface{})) != 1 {
		t.Fatalf("bad batch = %d %v", status, body)
	}
	_, lists := s.do("GET", "/requests", sponsor, nil)
	if n := len(lists["sent_requests"].([]interface{})); n != 0 {
		t.Fatalf("partial batch written: %d requests", n)
	}

	status, body = s.do("POST", "/sponsor/send_request", sponsor, fiber.Map{
		"campaign_id": campaignID,
		"influencers": []fiber.Map{item(influencers[0]), item(influencers[1])},
	})
	if status != fiber.StatusCreated || len(body["ad_requests"].([]interface{})) != 2 {
		t.Errorf("batch = %d %v", status, body)
	}
}

func TestRequestEventsNeedUpgrade(t *testing.T) {
	s := newTestServer(t)
	if status, _ := s.do("GET", "/ws/requests", "", nil); status != fiber.StatusUnauthorized {
		t.Errorf("anonymous ws = %d, want 401", status)
	}
	if status, _ := s.do("GET", "/ws/requests", s.login("admin", "root"), nil); status != fiber.StatusUpgradeRequired {
		t.Errorf("plain GET on ws = %d, want 426", status)
	}
}
