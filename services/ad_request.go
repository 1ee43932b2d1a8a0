package services

import (
	"context"
	"fmt"
	"strings"

	"adveri/apperr"
	"adveri/models"
	"adveri/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreateAdRequestInput struct {
	CampaignID    uint    `json:"-"`
	ReceiverID    uint    `json:"receiver_id" validate:"required"`
	Message       string  `json:"message" validate:"required,max=1000"`
	Requirements  string  `json:"requirements" validate:"required,max=1000"`
	PaymentAmount float64 `json:"payment_amount" validate:"required,gt=0"`
}

// BatchItem is one proposal inside CreateBatch.
type BatchItem struct {
	InfluencerID  uint    `json:"influencer_id" validate:"required"`
	Message       string  `json:"message" validate:"required,max=1000"`
	Requirements  string  `json:"requirements" validate:"required,max=1000"`
	PaymentAmount float64 `json:"payment_amount" validate:"required,gt=0"`
}

// BatchItemError reports why one batch item was refused.
type BatchItemError struct {
	Index        int    `json:"index"`
	InfluencerID uint   `json:"influencer_id"`
	Error        string `json:"error"`
}

// EditAdRequestInput carries a partial replacement. Nil fields are left
// untouched. A status routes the request to Resolve.
type EditAdRequestInput struct {
	Message       *string               `json:"message" validate:"omitempty,min=1,max=1000"`
	Requirements  *string               `json:"requirements" validate:"omitempty,min=1,max=1000"`
	PaymentAmount *float64              `json:"payment_amount" validate:"omitempty,gt=0"`
	Status        *models.RequestStatus `json:"status"`
}

func (in EditAdRequestInput) hasFields() bool {
	return in.Message != nil || in.Requirements != nil || in.PaymentAmount != nil
}

// RequestLists partitions a caller's requests.
type RequestLists struct {
	Sent     []models.AdRequest `json:"sent_requests"`
	Received []models.AdRequest `json:"received_requests"`
}

type AdRequestService struct {
	db  *gorm.DB
	hub *utils.EventHub
	log *logrus.Entry
}

func NewAdRequestService(db *gorm.DB, hub *utils.EventHub, logger *logrus.Logger) *AdRequestService {
	return &AdRequestService{
		db:  db,
		hub: hub,
		log: componentLogger(logger, "ad_requests"),
	}
}

// Create sends a new proposal. The (campaign, receiver) unique index turns a
// second proposal into a Duplicate error whatever the first one's status.
func (s *AdRequestService) Create(ctx context.Context, caller *models.User, in CreateAdRequestInput) (*models.AdRequest, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	in.Message = strings.TrimSpace(in.Message)
	in.Requirements = strings.TrimSpace(in.Requirements)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	var req *models.AdRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, in.CampaignID).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		var receiver models.User
		if err := tx.First(&receiver, in.ReceiverID).Error; err != nil {
			return lookupError("load receiver", "receiver", err)
		}
		if err := CanPropose(caller, &campaign, &receiver); err != nil {
			return err
		}

		req = &models.AdRequest{
			SentBy:        caller.Role,
			SenderID:      caller.ID,
			ReceiverID:    receiver.ID,
			CampaignID:    campaign.ID,
			Message:       in.Message,
			Requirements:  in.Requirements,
			PaymentAmount: in.PaymentAmount,
			Status:        models.StatusPending,
		}
		return insertRequest(tx, req)
	})
	if err != nil {
		return nil, passThrough("create ad request", err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"campaign_id": req.CampaignID,
		"sender_id":   req.SenderID,
		"receiver_id": req.ReceiverID,
	}).Info("Ad request created")
	s.publish(utils.EventRequestCreated, req)
	return req, nil
}

func insertRequest(tx *gorm.DB, req *models.AdRequest) error {
	if err := tx.Create(req).Error; err != nil {
		if isDuplicateKey(err) {
			return apperr.Duplicate("an ad request for this campaign and receiver already exists")
		}
		return apperr.Internal("insert ad request", err)
	}
	return nil
}

// CreateBatch sends one proposal per item on a campaign the sponsor owns.
// Every item is checked first; if any is refused nothing is written and the
// per-item errors are returned alongside a validation error.
func (s *AdRequestService) CreateBatch(ctx context.Context, caller *models.User, campaignID uint, items []BatchItem) ([]models.AdRequest, []BatchItemError, error) {
	if err := RequireRole(caller, models.RoleSponsor); err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, apperr.Validation("at least one influencer is required")
	}

	var (
		created  []models.AdRequest
		itemErrs []BatchItemError
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, campaignID).Error; err != nil {
			return lookupError("load campaign", "campaign", err)
		}
		if err := CanManageCampaign(caller, &campaign); err != nil {
			return err
		}

		seen := make(map[uint]bool, len(items))
		refuse := func(i int, item BatchItem, err error) {
			itemErrs = append(itemErrs, BatchItemError{Index: i, InfluencerID: item.InfluencerID, Error: apperr.PublicMessage(err)})
		}

		for i, item := range items {
			item.Message = strings.TrimSpace(item.Message)
			item.Requirements = strings.TrimSpace(item.Requirements)
			if err := utils.ValidateStruct(item); err != nil {
				refuse(i, item, err)
				continue
			}
			if seen[item.InfluencerID] {
				refuse(i, item, apperr.Duplicate("influencer listed twice"))
				continue
			}
			seen[item.InfluencerID] = true

			var receiver models.User
			if err := tx.First(&receiver, item.InfluencerID).Error; err != nil {
				refuse(i, item, lookupError("load receiver", "influencer", err))
				continue
			}
			if err := CanPropose(caller, &campaign, &receiver); err != nil {
				refuse(i, item, err)
				continue
			}
			var existing int64
			if err := tx.Model(&models.AdRequest{}).
				Where("campaign_id = ? AND receiver_id = ?", campaign.ID, receiver.ID).
				Count(&existing).Error; err != nil {
				return apperr.Internal("check existing request", err)
			}
			if existing > 0 {
				refuse(i, item, apperr.Duplicate("an ad request for this campaign and receiver already exists"))
				continue
			}

			created = append(created, models.AdRequest{
				SentBy:        models.RoleSponsor,
				SenderID:      caller.ID,
				ReceiverID:    receiver.ID,
				CampaignID:    campaign.ID,
				Message:       item.Message,
				Requirements:  item.Requirements,
				PaymentAmount: item.PaymentAmount,
				Status:        models.StatusPending,
			})
		}

		if len(itemErrs) > 0 {
			return apperr.Validation("%d of %d ad requests were refused", len(itemErrs), len(items))
		}
		for i := range created {
			if err := insertRequest(tx, &created[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, itemErrs, passThrough("create ad request batch", err)
	}

	for i := range created {
		s.publish(utils.EventRequestCreated, &created[i])
	}
	s.log.WithFields(logrus.Fields{"campaign_id": campaignID, "count": len(created)}).Info("Ad request batch created")
	return created, nil, nil
}

// Negotiate records a counter-offer and moves the request to negotiation.
func (s *AdRequestService) Negotiate(ctx context.Context, caller *models.User, id uint, amount float64) (*models.AdRequest, error) {
	if amount <= 0 {
		return nil, apperr.Validation("negotiated_amount must be greater than 0")
	}

	var req models.AdRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if err := CanNegotiate(caller, &req); err != nil {
			return err
		}
		if !req.Status.CanTransition(models.StatusNegotiation) {
			return apperr.Conflict(fmt.Sprintf("ad request is already %s", req.Status))
		}

		res := tx.Model(&models.AdRequest{}).
			Where("id = ? AND status IN ?", id, models.OpenStatuses).
			Updates(map[string]interface{}{
				"negotiated_amount": amount,
				"status":            models.StatusNegotiation,
			})
		if res.Error != nil {
			return apperr.Internal("negotiate ad request", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("ad request has already been resolved")
		}
		req.NegotiatedAmount = amount
		req.Status = models.StatusNegotiation
		return nil
	})
	if err != nil {
		return nil, passThrough("negotiate ad request", err)
	}

	s.publish(utils.EventRequestNegotiated, &req)
	return &req, nil
}

// Resolve accepts or rejects a request. Acceptance settles the payment.
func (s *AdRequestService) Resolve(ctx context.Context, caller *models.User, id uint, status models.RequestStatus) (*models.AdRequest, error) {
	var req models.AdRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return resolveTx(tx, caller, id, status, &req)
	})
	if err != nil {
		return nil, passThrough("resolve ad request", err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"status":     req.Status,
		"amount":     req.EffectiveAmount(),
	}).Info("Ad request resolved")
	s.publish(utils.EventRequestResolved, &req)
	return &req, nil
}

func resolveTx(tx *gorm.DB, caller *models.User, id uint, status models.RequestStatus, req *models.AdRequest) error {
	if status != models.StatusAccepted && status != models.StatusRejected {
		return apperr.Validation("status must be accepted or rejected")
	}
	if err := loadRequest(tx, id, req); err != nil {
		return err
	}
	if err := CanResolve(caller, req); err != nil {
		return err
	}
	if !req.Status.CanTransition(status) {
		return apperr.Conflict(fmt.Sprintf("ad request is already %s", req.Status))
	}

	// Only one resolver can move the row out of the open states.
	res := tx.Model(&models.AdRequest{}).
		Where("id = ? AND status IN ?", id, models.OpenStatuses).
		Update("status", status)
	if res.Error != nil {
		return apperr.Internal("update ad request status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("ad request has already been resolved")
	}
	req.Status = status

	if status == models.StatusAccepted {
		return settle(tx, req)
	}
	return nil
}

// settle credits the influencer, records the collaboration and adds the
// influencer's audience to the campaign reach.
func settle(tx *gorm.DB, req *models.AdRequest) error {
	amount := req.EffectiveAmount()
	influencerID := req.InfluencerID()

	var profile models.InfluencerProfile
	if err := tx.Preload("Platforms").First(&profile, "user_id = ?", influencerID).Error; err != nil {
		return lookupError("load influencer profile", "influencer profile", err)
	}

	if err := tx.Model(&models.InfluencerProfile{}).
		Where("user_id = ?", influencerID).
		UpdateColumn("earnings", gorm.Expr("earnings + ?", amount)).Error; err != nil {
		return apperr.Internal("credit earnings", err)
	}

	join := models.JoinedInfluencer{
		UserID:        influencerID,
		RequestID:     req.ID,
		CampaignID:    req.CampaignID,
		PaymentAmount: amount,
	}
	if err := tx.Create(&join).Error; err != nil {
		if isDuplicateKey(err) {
			return apperr.Conflict("ad request has already been settled")
		}
		return apperr.Internal("record joined influencer", err)
	}

	if err := tx.Model(&models.Campaign{}).
		Where("id = ?", req.CampaignID).
		Update("reach", gorm.Expr("reach + ?", profile.TotalReach())).Error; err != nil {
		return apperr.Internal("update campaign reach", err)
	}
	if err := tx.Model(&models.Campaign{}).
		Where("id = ?", req.CampaignID).
		UpdateColumn("goals_met", gorm.Expr("reach >= goals")).Error; err != nil {
		return apperr.Internal("update campaign goals", err)
	}
	return nil
}

// Edit lets the sender rework a pending proposal. A status in the body is
// handed to Resolve inside the same transaction.
func (s *AdRequestService) Edit(ctx context.Context, caller *models.User, id uint, in EditAdRequestInput) (*models.AdRequest, error) {
	if !in.hasFields() && in.Status == nil {
		return nil, apperr.Validation("nothing to update")
	}
	in.Message = trimmed(in.Message)
	in.Requirements = trimmed(in.Requirements)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	var req models.AdRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.hasFields() {
			if err := editTx(tx, caller, id, in, &req); err != nil {
				return err
			}
		}
		if in.Status != nil {
			return resolveTx(tx, caller, id, *in.Status, &req)
		}
		return nil
	})
	if err != nil {
		return nil, passThrough("edit ad request", err)
	}

	evt := utils.EventRequestUpdated
	if in.Status != nil {
		evt = utils.EventRequestResolved
	}
	s.publish(evt, &req)
	return &req, nil
}

func editTx(tx *gorm.DB, caller *models.User, id uint, in EditAdRequestInput, req *models.AdRequest) error {
	if err := loadRequest(tx, id, req); err != nil {
		return err
	}
	if err := CanEditRequest(caller, req); err != nil {
		return err
	}
	if req.Status != models.StatusPending {
		return apperr.Conflict(fmt.Sprintf("only pending ad requests can be edited, this one is %s", req.Status))
	}

	updates := map[string]interface{}{}
	if in.Message != nil {
		req.Message = *in.Message
		updates["message"] = req.Message
	}
	if in.Requirements != nil {
		req.Requirements = *in.Requirements
		updates["requirements"] = req.Requirements
	}
	if in.PaymentAmount != nil {
		req.PaymentAmount = *in.PaymentAmount
		updates["payment_amount"] = req.PaymentAmount
	}

	res := tx.Model(&models.AdRequest{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return apperr.Internal("edit ad request", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("ad request is no longer pending")
	}
	return nil
}

func (s *AdRequestService) Get(ctx context.Context, caller *models.User, id uint) (*models.AdRequest, error) {
	var req models.AdRequest
	if err := loadRequest(s.db.WithContext(ctx), id, &req); err != nil {
		return nil, err
	}
	if err := CanViewRequest(caller, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns the caller's sent and received requests, newest first.
func (s *AdRequestService) List(ctx context.Context, caller *models.User, status string) (*RequestLists, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	filter := models.RequestStatus(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return nil, apperr.Validation("status must be one of: pending, negotiation, accepted, rejected")
	}

	query := func(column string) ([]models.AdRequest, error) {
		out := make([]models.AdRequest, 0)
		q := s.db.WithContext(ctx).Where(column+" = ?", caller.ID)
		if filter != "" {
			q = q.Where("status = ?", filter)
		}
		err := q.Order("created_at DESC, id DESC").Find(&out).Error
		return out, err
	}

	sent, err := query("sender_id")
	if err != nil {
		return nil, apperr.Internal("list sent requests", err)
	}
	received, err := query("receiver_id")
	if err != nil {
		return nil, apperr.Internal("list received requests", err)
	}
	return &RequestLists{Sent: sent, Received: received}, nil
}

// Delete withdraws a request. Only the sender may do so, and only while it
// is still open.
func (s *AdRequestService) Delete(ctx context.Context, caller *models.User, id uint) error {
	var req models.AdRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadRequest(tx, id, &req); err != nil {
			return err
		}
		if err := CanDeleteRequest(caller, &req); err != nil {
			return err
		}
		if req.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("ad request is already %s", req.Status))
		}
		res := tx.Where("id = ? AND status IN ?", id, models.OpenStatuses).Delete(&models.AdRequest{})
		if res.Error != nil {
			return apperr.Internal("delete ad request", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("ad request has already been resolved")
		}
		return nil
	})
	if err != nil {
		return passThrough("delete ad request", err)
	}

	s.publish(utils.EventRequestDeleted, &req)
	return nil
}

func loadRequest(db *gorm.DB, id uint, req *models.AdRequest) error {
	if err := db.First(req, id).Error; err != nil {
		return lookupError("load ad request", "ad request", err)
	}
	return nil
}

func (s *AdRequestService) publish(t utils.RequestEventType, req *models.AdRequest) {
	s.hub.Publish(utils.RequestEvent{
		Type:       t,
		RequestID:  req.ID,
		CampaignID: req.CampaignID,
		Status:     string(req.Status),
		Amount:     req.EffectiveAmount(),
	}, req.SenderID, req.ReceiverID)
}
