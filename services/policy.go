package services

import (
	"adveri/apperr"
	"adveri/models"
)

// Authorization rules, one per operation. Each returns nil to allow or an
// Unauthorized/Forbidden error to deny.

func requireCaller(caller *models.User) error {
	if caller == nil || caller.ID == 0 {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

func RequireRole(caller *models.User, roles ...models.Role) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	for _, r := range roles {
		if caller.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("insufficient permissions")
}

func RequireAdmin(caller *models.User) error {
	return RequireRole(caller, models.RoleAdmin)
}

// CanCreateCampaign allows approved sponsors.
func CanCreateCampaign(caller *models.User) error {
	if err := RequireRole(caller, models.RoleSponsor); err != nil {
		return err
	}
	if !caller.Approved {
		return apperr.Forbidden("sponsor account is not approved")
	}
	return nil
}

// CanManageCampaign allows only the owning sponsor.
func CanManageCampaign(caller *models.User, c *models.Campaign) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.Role != models.RoleSponsor || c.SponsorID != caller.ID {
		return apperr.Forbidden("you do not own this campaign")
	}
	return nil
}

// CanViewCampaign allows the owner, admins, and anyone for a discoverable
// campaign.
func CanViewCampaign(caller *models.User, c *models.Campaign) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.Role == models.RoleAdmin || c.SponsorID == caller.ID || c.IsDiscoverable() {
		return nil
	}
	return apperr.Forbidden("campaign is not available")
}

// CanPropose checks that caller may send an ad request about campaign to
// receiver. A sponsor proposes on its own campaigns. An influencer applies
// to the owner of a discoverable campaign.
func CanPropose(caller *models.User, campaign *models.Campaign, receiver *models.User) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	want, ok := caller.Role.Counterpart()
	if !ok {
		return apperr.Forbidden("only sponsors and influencers can send ad requests")
	}
	if receiver.Role != want {
		return apperr.Validation("receiver must be a %s", want)
	}
	if receiver.ID == caller.ID {
		return apperr.Validation("cannot send an ad request to yourself")
	}

	switch caller.Role {
	case models.RoleSponsor:
		if !caller.Approved {
			return apperr.Forbidden("sponsor account is not approved")
		}
		if campaign.SponsorID != caller.ID {
			return apperr.Forbidden("you do not own this campaign")
		}
	case models.RoleInfluencer:
		if !campaign.IsDiscoverable() {
			return apperr.Forbidden("campaign is not open for applications")
		}
		if campaign.SponsorID != receiver.ID {
			return apperr.Validation("receiver must be the campaign's sponsor")
		}
		if !receiver.CanSignIn() {
			return apperr.Forbidden("sponsor is not approved")
		}
	}
	return nil
}

func requireParty(caller *models.User, r *models.AdRequest) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !r.IsParty(caller.ID) {
		return apperr.Forbidden("you are not a party to this ad request")
	}
	return nil
}

func requireSender(caller *models.User, r *models.AdRequest) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if r.SenderID != caller.ID {
		return apperr.Forbidden("only the sender can change this ad request")
	}
	return nil
}

func CanViewRequest(caller *models.User, r *models.AdRequest) error { return requireParty(caller, r) }
func CanNegotiate(caller *models.User, r *models.AdRequest) error { return requireParty(caller, r) }
func CanResolve(caller *models.User, r *models.AdRequest) error { return requireParty(caller, r) }
func CanEditRequest(caller *models.User, r *models.AdRequest) error { return requireSender(caller, r) }
func CanDeleteRequest(caller *models.User, r *models.AdRequest) error { return requireSender(caller, r) }
