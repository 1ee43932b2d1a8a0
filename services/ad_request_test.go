package services

import (
	"sync"
	"testing"

	"adveri/apperr"
	"adveri/models"
	"adveri/utils"
)

func TestNegotiatedAcceptanceSettlesPayment(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(200, 100)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 500)

	events, cancel := f.hub.Subscribe(inf.ID)
	defer cancel()

	req := f.propose(sponsor, inf, campaign, 100)
	if req.Status != models.StatusPending || req.SentBy != models.RoleSponsor {
		t.Fatalf("new request = %+v", req)
	}

	negotiated, err := f.requests.Negotiate(f.ctx, inf, req.ID, 150)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if negotiated.Status != models.StatusNegotiation || negotiated.NegotiatedAmount != 150 {
		t.Fatalf("negotiated = %+v", negotiated)
	}

	accepted, err := f.requests.Resolve(f.ctx, sponsor, req.ID, models.StatusAccepted)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if accepted.Status != models.StatusAccepted {
		t.Errorf("status = %s", accepted.Status)
	}

	if got := f.earnings(inf.ID); got != 150 {
		t.Errorf("earnings = %v, want 150", got)
	}

	var joins []models.JoinedInfluencer
	f.db.Where("campaign_id = ?", campaign.ID).Find(&joins)
	if len(joins) != 1 {
		t.Fatalf("joined rows = %d, want 1", len(joins))
	}
	if joins[0].RequestID != req.ID || joins[0].UserID != inf.ID || joins[0].PaymentAmount != 150 {
		t.Errorf("join = %+v", joins[0])
	}

	c := f.reload(campaign)
	if c.Reach != 300 || c.GoalsMet {
		t.Errorf("campaign reach=%d goals_met=%v, want 300/false", c.Reach, c.GoalsMet)
	}

	second := f.influencer(250)
	r2 := f.propose(sponsor, second, campaign, 80)
	if _, err := f.requests.Resolve(f.ctx, second, r2.ID, models.StatusAccepted); err != nil {
		t.Fatalf("Resolve second: %v", err)
	}
	c = f.reload(campaign)
	if c.Reach != 550 || !c.GoalsMet {
		t.Errorf("campaign reach=%d goals_met=%v, want 550/true", c.Reach, c.GoalsMet)
	}
	if got := f.earnings(second.ID); got != 80 {
		t.Errorf("payment without negotiation: earnings = %v, want 80", got)
	}

	var types []utils.RequestEventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []utils.RequestEventType{utils.EventRequestCreated, utils.EventRequestNegotiated, utils.EventRequestResolved}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestDuplicateRequestRejected(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)

	first := f.propose(sponsor, inf, campaign, 100)

	for _, status := range []models.RequestStatus{models.StatusPending, models.StatusRejected} {
		if status == models.StatusRejected {
			if _, err := f.requests.Resolve(f.ctx, inf, first.ID, status); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
		}
		_, err := f.requests.Create(f.ctx, sponsor, CreateAdRequestInput{
			CampaignID:    campaign.ID,
			ReceiverID:    inf.ID,
			Message:       "again",
			Requirements:  "again",
			PaymentAmount: 50,
		})
		if !apperr.Is(err, apperr.KindDuplicate) {
			t.Errorf("with first request %s: err = %v, want duplicate", status, err)
		}
	}
	if n := f.count(&models.AdRequest{}, "campaign_id = ?", campaign.ID); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestConcurrentAcceptCreditsOnce(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, caller := range []*models.User{sponsor, inf, sponsor, inf} {
		wg.Add(1)
		go func(caller *models.User) {
			defer wg.Done()
			_, err := f.requests.Resolve(f.ctx, caller, req.ID, models.StatusAccepted)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(caller)
	}
	wg.Wait()

	if ok != 1 || conflicts != 3 {
		t.Errorf("ok=%d conflicts=%d, want 1/3", ok, conflicts)
	}
	if got := f.earnings(inf.ID); got != 100 {
		t.Errorf("earnings = %v, want 100", got)
	}
	if n := f.count(&models.JoinedInfluencer{}, "request_id = ?", req.ID); n != 1 {
		t.Errorf("joined rows = %d, want 1", n)
	}
}

func TestRejectHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(400)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	if _, err := f.requests.Negotiate(f.ctx, sponsor, req.ID, 120); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	rejected, err := f.requests.Resolve(f.ctx, inf, req.ID, models.StatusRejected)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rejected.Status != models.StatusRejected {
		t.Errorf("status = %s", rejected.Status)
	}
	if got := f.earnings(inf.ID); got != 0 {
		t.Errorf("earnings = %v, want 0", got)
	}
	if n := f.count(&models.JoinedInfluencer{}, "1 = 1"); n != 0 {
		t.Errorf("joined rows = %d, want 0", n)
	}
	if c := f.reload(campaign); c.Reach != 0 {
		t.Errorf("reach = %d, want 0", c.Reach)
	}
}

func TestOnlyPartiesMayActOnRequest(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	outsiders := map[string]*models.User{
		"other sponsor":    f.sponsor(true),
		"other influencer": f.influencer(5),
		"admin":            f.admin(),
	}
	for name, caller := range outsiders {
		if _, err := f.requests.Negotiate(f.ctx, caller, req.ID, 200); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("%s negotiate: %v", name, err)
		}
		if _, err := f.requests.Resolve(f.ctx, caller, req.ID, models.StatusAccepted); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("%s resolve: %v", name, err)
		}
		if _, err := f.requests.Get(f.ctx, caller, req.ID); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("%s get: %v", name, err)
		}
		if err := f.requests.Delete(f.ctx, caller, req.ID); !apperr.Is(err, apperr.KindForbidden) {
			t.Errorf("%s delete: %v", name, err)
		}
	}

	if _, err := f.requests.Resolve(f.ctx, nil, req.ID, models.StatusAccepted); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("anonymous resolve: %v", err)
	}

	got, err := f.requests.Get(f.ctx, sponsor, req.ID)
	if err != nil || got.Status != models.StatusPending || got.NegotiatedAmount != 0 {
		t.Errorf("request changed by outsiders: %+v, %v", got, err)
	}
	if _, err := f.requests.Get(f.ctx, inf, 9999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing request: %v", err)
	}
}

func TestNegotiationStateRules(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	if _, err := f.requests.Negotiate(f.ctx, inf, req.ID, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("zero amount: %v", err)
	}
	if _, err := f.requests.Negotiate(f.ctx, inf, req.ID, 130); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	// A fresh counter-offer stays in negotiation.
	again, err := f.requests.Negotiate(f.ctx, sponsor, req.ID, 110)
	if err != nil || again.Status != models.StatusNegotiation || again.NegotiatedAmount != 110 {
		t.Fatalf("re-negotiate = %+v, %v", again, err)
	}

	pending := models.StatusPending
	if _, err := f.requests.Edit(f.ctx, sponsor, req.ID, EditAdRequestInput{Status: &pending}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("back to pending: %v", err)
	}
	msg := "new message"
	if _, err := f.requests.Edit(f.ctx, sponsor, req.ID, EditAdRequestInput{Message: &msg}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("edit during negotiation: %v", err)
	}

	accepted := models.StatusAccepted
	if _, err := f.requests.Edit(f.ctx, inf, req.ID, EditAdRequestInput{Status: &accepted}); err != nil {
		t.Fatalf("accept via edit: %v", err)
	}
	if got := f.earnings(inf.ID); got != 110 {
		t.Errorf("earnings = %v, want 110", got)
	}

	if _, err := f.requests.Negotiate(f.ctx, inf, req.ID, 500); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("negotiate after accept: %v", err)
	}
	if _, err := f.requests.Resolve(f.ctx, inf, req.ID, models.StatusRejected); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("reject after accept: %v", err)
	}
	if err := f.requests.Delete(f.ctx, sponsor, req.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("delete after accept: %v", err)
	}
}

func TestEditPendingRequest(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	if _, err := f.requests.Edit(f.ctx, sponsor, req.ID, EditAdRequestInput{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("empty edit: %v", err)
	}
	amount := -5.0
	if _, err := f.requests.Edit(f.ctx, sponsor, req.ID, EditAdRequestInput{PaymentAmount: &amount}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("negative amount: %v", err)
	}

	for name, in := range map[string]EditAdRequestInput{
		"blank message":      {Message: strPtr("  ")},
		"blank requirements": {Requirements: strPtr("\t")},
	} {
		if _, err := f.requests.Edit(f.ctx, sponsor, req.ID, in); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%s: %v", name, err)
		}
	}

	reqs := "Three posts and a story"
	amount = 175
	if _, err := f.requests.Edit(f.ctx, inf, req.ID, EditAdRequestInput{Requirements: &reqs}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("receiver edit: %v", err)
	}
	edited, err := f.requests.Edit(f.ctx, sponsor, req.ID, EditAdRequestInput{Requirements: strPtr("  " + reqs + "\n"), PaymentAmount: &amount})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Requirements != reqs || edited.PaymentAmount != 175 || edited.Message != "Work with us" {
		t.Errorf("edited = %+v", edited)
	}
	if edited.Status != models.StatusPending {
		t.Errorf("status = %s", edited.Status)
	}
}

func TestDeleteOpenRequest(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	req := f.propose(sponsor, inf, campaign, 100)

	if err := f.requests.Delete(f.ctx, inf, req.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("receiver delete: %v", err)
	}
	if _, err := f.requests.Negotiate(f.ctx, inf, req.ID, 90); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if err := f.requests.Delete(f.ctx, sponsor, req.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.requests.Get(f.ctx, sponsor, req.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("deleted request still readable: %v", err)
	}
	// The pair is free again once the request is gone.
	f.propose(sponsor, inf, campaign, 100)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	pendingSponsor := f.sponsor(false)
	otherSponsor := f.sponsor(true)
	inf := f.influencer(10)
	campaign := f.campaign(sponsor, models.VisibilityPublic, 100)
	private := f.campaign(sponsor, models.VisibilityPrivate, 100)
	pendingCampaign := f.campaign(pendingSponsor, models.VisibilityPublic, 100)

	valid := func(campaignID, receiverID uint) CreateAdRequestInput {
		return CreateAdRequestInput{CampaignID: campaignID, ReceiverID: receiverID, Message: "m", Requirements: "r", PaymentAmount: 10}
	}

	tests := []struct {
		name   string
		caller *models.User
		in     CreateAdRequestInput
		kind   apperr.Kind
	}{
		{"missing message", sponsor, CreateAdRequestInput{CampaignID: campaign.ID, ReceiverID: inf.ID, Requirements: "r", PaymentAmount: 10}, apperr.KindValidation},
		{"blank message", sponsor, CreateAdRequestInput{CampaignID: campaign.ID, ReceiverID: inf.ID, Message: "   ", Requirements: "r", PaymentAmount: 10}, apperr.KindValidation},
		{"blank requirements", sponsor, CreateAdRequestInput{CampaignID: campaign.ID, ReceiverID: inf.ID, Message: "m", Requirements: "\t\n", PaymentAmount: 10}, apperr.KindValidation},
		{"zero payment", sponsor, CreateAdRequestInput{CampaignID: campaign.ID, ReceiverID: inf.ID, Message: "m", Requirements: "r"}, apperr.KindValidation},
		{"unknown campaign", sponsor, valid(9999, inf.ID), apperr.KindNotFound},
		{"unknown receiver", sponsor, valid(campaign.ID, 9999), apperr.KindNotFound},
		{"same role receiver", sponsor, valid(campaign.ID, otherSponsor.ID), apperr.KindValidation},
		{"not campaign owner", otherSponsor, valid(campaign.ID, inf.ID), apperr.KindForbidden},
		{"admin sender", f.admin(), valid(campaign.ID, inf.ID), apperr.KindForbidden},
		{"influencer to private campaign", inf, valid(private.ID, sponsor.ID), apperr.KindForbidden},
		{"influencer to wrong sponsor", inf, valid(campaign.ID, otherSponsor.ID), apperr.KindValidation},
		{"influencer to unapproved sponsor", inf, valid(pendingCampaign.ID, pendingSponsor.ID), apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.requests.Create(f.ctx, tt.caller, tt.in)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
	if n := f.count(&models.AdRequest{}, "1 = 1"); n != 0 {
		t.Errorf("requests written = %d", n)
	}

	applied, err := f.requests.Create(f.ctx, inf, valid(campaign.ID, sponsor.ID))
	if err != nil {
		t.Fatalf("influencer application: %v", err)
	}
	if applied.SentBy != models.RoleInfluencer || applied.InfluencerID() != inf.ID || applied.SponsorID() != sponsor.ID {
		t.Errorf("application = %+v", applied)
	}
	if _, err := f.requests.Resolve(f.ctx, sponsor, applied.ID, models.StatusAccepted); err != nil {
		t.Fatalf("accept application: %v", err)
	}
	if got := f.earnings(inf.ID); got != 10 {
		t.Errorf("earnings = %v, want 10", got)
	}
}

func TestCreateBatch(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	a, b := f.influencer(10), f.influencer(20)
	campaign := f.campaign(sponsor, models.VisibilityPrivate, 100)
	item := func(id uint, amount float64) BatchItem {
		return BatchItem{InfluencerID: id, Message: "m", Requirements: "r", PaymentAmount: amount}
	}

	_, itemErrs, err := f.requests.CreateBatch(f.ctx, sponsor, campaign.ID, []BatchItem{
		item(a.ID, 10),
		item(b.ID, 0),
		item(a.ID, 10),
		item(sponsor.ID, 10),
		{InfluencerID: b.ID, Message: " ", Requirements: "r", PaymentAmount: 10},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(itemErrs) != 4 {
		t.Fatalf("item errors = %+v, want 4", itemErrs)
	}
	for i, wantIdx := range []int{1, 2, 3, 4} {
		if itemErrs[i].Index != wantIdx {
			t.Errorf("item error %d index = %d, want %d", i, itemErrs[i].Index, wantIdx)
		}
	}
	if n := f.count(&models.AdRequest{}, "1 = 1"); n != 0 {
		t.Errorf("partial batch written: %d rows", n)
	}

	created, itemErrs, err := f.requests.CreateBatch(f.ctx, sponsor, campaign.ID, []BatchItem{item(a.ID, 10), item(b.ID, 20)})
	if err != nil || len(itemErrs) != 0 {
		t.Fatalf("CreateBatch: %v %+v", err, itemErrs)
	}
	if len(created) != 2 || created[0].ID == 0 || created[1].ReceiverID != b.ID {
		t.Errorf("created = %+v", created)
	}

	_, itemErrs, err = f.requests.CreateBatch(f.ctx, sponsor, campaign.ID, []BatchItem{item(b.ID, 20)})
	if !apperr.Is(err, apperr.KindValidation) || len(itemErrs) != 1 {
		t.Errorf("existing pair: %v %+v", err, itemErrs)
	}

	if _, _, err := f.requests.CreateBatch(f.ctx, f.sponsor(true), campaign.ID, []BatchItem{item(a.ID, 1)}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign campaign: %v", err)
	}
	if _, _, err := f.requests.CreateBatch(f.ctx, a, campaign.ID, []BatchItem{item(b.ID, 1)}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("influencer batch: %v", err)
	}
}

func TestListPartitionsRequests(t *testing.T) {
	f := newFixture(t)
	sponsor := f.sponsor(true)
	inf := f.influencer(10)
	lonely := f.influencer(10)
	c1 := f.campaign(sponsor, models.VisibilityPublic, 100)
	c2 := f.campaign(sponsor, models.VisibilityPublic, 100)

	sent := f.propose(sponsor, inf, c1, 100)
	if _, err := f.requests.Create(f.ctx, inf, CreateAdRequestInput{
		CampaignID: c2.ID, ReceiverID: sponsor.ID, Message: "m", Requirements: "r", PaymentAmount: 40,
	}); err != nil {
		t.Fatalf("application: %v", err)
	}
	if _, err := f.requests.Resolve(f.ctx, inf, sent.ID, models.StatusRejected); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	lists, err := f.requests.List(f.ctx, sponsor, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(lists.Sent) != 1 || len(lists.Received) != 1 {
		t.Errorf("sponsor lists = %d sent / %d received", len(lists.Sent), len(lists.Received))
	}

	lists, err = f.requests.List(f.ctx, sponsor, "Rejected")
	if err != nil || len(lists.Sent) != 1 || len(lists.Received) != 0 {
		t.Errorf("filtered = %+v, %v", lists, err)
	}

	lists, err = f.requests.List(f.ctx, lonely, "")
	if err != nil || lists.Sent == nil || lists.Received == nil || len(lists.Sent)+len(lists.Received) != 0 {
		t.Errorf("empty lists = %+v, %v", lists, err)
	}

	if _, err := f.requests.List(f.ctx, sponsor, "archived"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("bad filter: %v", err)
	}
}
