package controller

import (
	"adveri/apperr"
	"adveri/middleware"
	"adveri/services"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
)

type RequestController struct {
	Requests *services.AdRequestService
}

func NewRequestController(requests *services.AdRequestService) *RequestController {
	return &RequestController{Requests: requests}
}

// SendRequest handles POST /:campaign_id/send_request for both sponsors and
// influencers.
func (rc *RequestController) SendRequest(c *fiber.Ctx) error {
	campaignID, err := utils.ParseID(c, "campaign_id")
	if err != nil {
		return err
	}
	var input services.CreateAdRequestInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}
	input.CampaignID = campaignID

	req, err := rc.Requests.Create(c.UserContext(), middleware.CurrentUser(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Ad request sent successfully",
		"ad_request": req,
	})
}

// SendBatch lets a sponsor propose one campaign to several influencers.
// Either every item is created or none is.
func (rc *RequestController) SendBatch(c *fiber.Ctx) error {
	var input struct {
		CampaignID  uint                 `json:"campaign_id"`
		Influencers []services.BatchItem `json:"influencers"`
	}
	if err := bindJSON(c, &input); err != nil {
		return err
	}
	if input.CampaignID == 0 {
		return apperr.Validation("campaign_id is required")
	}

	created, itemErrs, err := rc.Requests.CreateBatch(c.UserContext(), middleware.CurrentUser(c), input.CampaignID, input.Influencers)
	if err != nil {
		if len(itemErrs) > 0 {
			return c.Status(apperr.KindOf(err).Status()).JSON(fiber.Map{
				"error":  apperr.PublicMessage(err),
				"errors": itemErrs,
			})
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Ad requests sent successfully",
		"ad_requests": created,
	})
}

// ListRequests returns the caller's sent and received requests, optionally
// narrowed by ?status=.
func (rc *RequestController) ListRequests(c *fiber.Ctx) error {
	lists, err := rc.Requests.List(c.UserContext(), middleware.CurrentUser(c), c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(lists)
}

func (rc *RequestController) GetRequest(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	req, err := rc.Requests.Get(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(req)
}

func (rc *RequestController) EditRequest(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var input services.EditAdRequestInput
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	req, err := rc.Requests.Edit(c.UserContext(), middleware.CurrentUser(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "Ad request updated successfully",
		"ad_request": req,
	})
}

func (rc *RequestController) DeleteRequest(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	if err := rc.Requests.Delete(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Ad request deleted successfully"})
}

func (rc *RequestController) NegotiateRequest(c *fiber.Ctx) error {
	id, err := utils.ParseID(c, "id")
	if err != nil {
		return err
	}
	var input struct {
		NegotiatedAmount float64 `json:"negotiated_amount"`
	}
	if err := bindJSON(c, &input); err != nil {
		return err
	}

	req, err := rc.Requests.Negotiate(c.UserContext(), middleware.CurrentUser(c), id, input.NegotiatedAmount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":    "Negotiation submitted",
		"ad_request": req,
	})
}
