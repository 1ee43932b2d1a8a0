package controller

import (
	"adveri/middleware"
	"adveri/services"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
)

type CampaignController struct {
	Campaigns *services.CampaignService
}

func NewCampaignController(campaigns *services.CampaignService) *CampaignController {
	return &CampaignController{Campaigns: campaigns}
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input services.CreateCampaignInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	campaign, err := cc.Campaigns.Create(c.UserContext(), middleware.CurrentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

// GetCampaigns lists the calling sponsor's own campaigns.
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	campaigns, err := cc.Campaigns.List(c.UserContext(), services.CampaignFilter{
		SponsorID:      user.ID,
		IncludeFlagged: true,
		Search:         c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"campaigns": campaigns})
}

// GetCampaign returns the campaign with its progress, joined influencers
// and, for the owner, the request breakdown.
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	details, err := cc.Campaigns.Details(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(details)
}

func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var input services.UpdateCampaignInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	campaign, err := cc.Campaigns.Update(c.UserContext(), middleware.CurrentUser(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(campaign)
}

func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := cc.Campaigns.Delete(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Campaign deleted successfully"})
}

// BrowseCampaigns is the influencer discovery list: public, non-flagged
// campaigns matching ?search=.
func (cc *CampaignController) BrowseCampaigns(c *fiber.Ctx) error {
	campaigns, err := cc.Campaigns.List(c.UserContext(), services.CampaignFilter{
		PublicOnly: true,
		Search:     c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"campaigns": campaigns})
}
