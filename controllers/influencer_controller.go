package controller

import (
	"adveri/middleware"
	"adveri/services"

	"github.com/gofiber/fiber/v2"
)

type InfluencerController struct {
	Accounts *services.AccountService
}

func NewInfluencerController(accounts *services.AccountService) *InfluencerController {
	return &InfluencerController{Accounts: accounts}
}

func (ic *InfluencerController) Profile(c *fiber.Ctx) error {
	me, err := ic.Accounts.Me(c.UserContext(), middleware.CurrentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(me.Influencer)
}

// UpdatePlatforms replaces the caller's platform list. Total reach is
// derived from it.
func (ic *InfluencerController) UpdatePlatforms(c *fiber.Ctx) error {
	var input struct {
		Platforms []services.PlatformInput `json:"platforms"`
	}
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	profile, err := ic.Accounts.UpdatePlatforms(c.UserContext(), middleware.CurrentUser(c), input.Platforms)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"profile":     profile,
		"total_reach": profile.TotalReach(),
	})
}

// BrowseInfluencers lists non-flagged influencers for sponsors, filtered by
// ?industry=, ?niche= and ?search=.
func (ic *InfluencerController) BrowseInfluencers(c *fiber.Ctx) error {
	influencers, err := ic.Accounts.ListInfluencers(c.UserContext(), services.InfluencerFilter{
		Industry: c.Query("industry"),
		Niche:    c.Query("niche"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"influencers": influencers})
}
