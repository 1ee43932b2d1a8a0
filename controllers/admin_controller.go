package controller

import (
	"adveri/middleware"
	"adveri/models"
	"adveri/services"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
)

type AdminController struct {
	Moderation *services.ModerationService
}

func NewAdminController(moderation *services.ModerationService) *AdminController {
	return &AdminController{Moderation: moderation}
}

type flagInput struct {
	Reason string `json:"reason"`
}

func (ac *AdminController) Dashboard(c *fiber.Ctx) error {
	stats, err := ac.Moderation.DashboardStats(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (ac *AdminController) SponsorApplications(c *fiber.Ctx) error {
	apps, err := ac.Moderation.SponsorApplications(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"applications": apps})
}

func (ac *AdminController) ApproveSponsor(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	user, err := ac.Moderation.ApproveSponsor(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Sponsor approved",
		"user":    user,
	})
}

func (ac *AdminController) RejectSponsor(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Moderation.RejectSponsor(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Sponsor application rejected"})
}

// ListUsers supports ?role=, ?flagged=true and ?search=.
func (ac *AdminController) ListUsers(c *fiber.Ctx) error {
	users, err := ac.Moderation.ListUsers(c.UserContext(), middleware.CurrentUser(c), services.UserFilter{
		Role:        models.Role(c.Query("role")),
		FlaggedOnly: c.QueryBool("flagged"),
		Search:      c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": users})
}

func (ac *AdminController) FlagUser(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var input flagInput
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &input); err != nil {
			return err
		}
	}
	if err := ac.Moderation.FlagUser(c.UserContext(), middleware.CurrentUser(c), id, input.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "User flagged"})
}

func (ac *AdminController) UnflagUser(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Moderation.UnflagUser(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "User unflagged"})
}

func (ac *AdminController) DeleteUser(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Moderation.DeleteUser(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "User deleted"})
}

// ListCampaigns supports ?search= and ?flagged=true.
func (ac *AdminController) ListCampaigns(c *fiber.Ctx) error {
	campaigns, err := ac.Moderation.ListCampaigns(c.UserContext(), middleware.CurrentUser(c), c.Query("search"), c.QueryBool("flagged"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"campaigns": campaigns})
}

func (ac *AdminController) FlagCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var input flagInput
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &input); err != nil {
			return err
		}
	}
	if err := ac.Moderation.FlagCampaign(c.UserContext(), middleware.CurrentUser(c), id, input.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Campaign flagged"})
}

func (ac *AdminController) UnflagCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Moderation.UnflagCampaign(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Campaign unflagged"})
}

func (ac *AdminController) DeleteCampaign(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Moderation.DeleteCampaign(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Campaign deleted"})
}

func (ac *AdminController) Flagged(c *fiber.Ctx) error {
	items, err := ac.Moderation.ListFlagged(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(items)
}
