package claims

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/domain/shop"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const autoRejectNote = "Another ownership claim for this shop was approved."

// RolePromoter upgrades an approved claimant to shop owner.
type RolePromoter interface {
	Promote(ctx context.Context, userID string) (profile.Profile, error)
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string)
}

// Input describes an ownership claim.
type Input struct {
	BusinessEmail string `json:"business_email"`
	BusinessPhone string `json:"business_phone"`
	ProofURL      string `json:"proof_url"`
	Message       string `json:"message"`
}

// Service handles shop ownership claims.
type Service struct {
	store    storage.ClaimStore
	shops    storage.ShopStore
	promoter RolePromoter
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a claim service.
func New(store storage.ClaimStore, shops storage.ShopStore, promoter RolePromoter, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("claims")
	}
	return &Service{
		store:    store,
		shops:    shops,
		promoter: promoter,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit files a claim on an unowned shop.
func (s *Service) Submit(ctx context.Context, userID, shopID string, in Input) (shop.Claim, error) {
	email := strings.TrimSpace(in.BusinessEmail)
	if !validEmail(email) {
		return shop.Claim{}, svcerrors.Validation("business_email must be a valid email address")
	}
	proof := strings.TrimSpace(in.ProofURL)
	if proof != "" && !strings.HasPrefix(proof, "https://") && !strings.HasPrefix(proof, "http://") {
		return shop.Claim{}, svcerrors.Validation("proof_url must be an http(s) URL")
	}
	if len(in.Message) > 2000 {
		return shop.Claim{}, svcerrors.Validation("message must be at most 2000 characters")
	}

	sh, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return shop.Claim{}, err
	}
	if sh.Status != shop.StatusActive && sh.Status != shop.StatusPending {
		return shop.Claim{}, svcerrors.Validation("shop %s is %s and cannot be claimed", shopID, sh.Status)
	}
	if sh.OwnerID != "" {
		return shop.Claim{}, svcerrors.Conflict("shop %s already has an owner", shopID)
	}

	pending, err := s.store.ListClaims(ctx, shop.ClaimFilter{ShopID: shopID, UserID: userID, Status: shop.ClaimPending})
	if err != nil {
		return shop.Claim{}, err
	}
	if len(pending) > 0 {
		return shop.Claim{}, svcerrors.Conflict("you already have a pending claim on this shop").WithDetails("claim_id", pending[0].ID)
	}

	c, err := s.store.CreateClaim(ctx, shop.Claim{
		ShopID:        shopID,
		UserID:        userID,
		BusinessEmail: strings.ToLower(email),
		BusinessPhone: strings.TrimSpace(in.BusinessPhone),
		ProofURL:      proof,
		Message:       strings.TrimSpace(in.Message),
		Status:        shop.ClaimPending,
	})
	if errors.Is(err, storage.ErrConflict) {
		return shop.Claim{}, svcerrors.Conflict("you already have a pending claim on this shop")
	}
	if err != nil {
		return shop.Claim{}, err
	}
	s.log.WithField("claim_id", c.ID).WithField("shop_id", shopID).WithField("user_id", userID).Info("claim submitted")
	return c, nil
}

// ListMine returns the user's claims.
func (s *Service) ListMine(ctx context.Context, userID string) ([]shop.Claim, error) {
	return s.store.ListClaims(ctx, shop.ClaimFilter{UserID: userID})
}

// List returns claims for review, optionally by status.
func (s *Service) List(ctx context.Context, status shop.ClaimStatus) ([]shop.Claim, error) {
	switch status {
	case "", shop.ClaimPending, shop.ClaimApproved, shop.ClaimRejected:
	default:
		return nil, svcerrors.Validation("unknown claim status %q", status)
	}
	return s.store.ListClaims(ctx, shop.ClaimFilter{Status: status})
}

// Approve grants the shop to the claimant and closes competing claims.
func (s *Service) Approve(ctx context.Context, adminID, claimID, notes string) (shop.Claim, error) {
	c, err := s.pending(ctx, claimID)
	if err != nil {
		return shop.Claim{}, err
	}
	sh, err := s.shops.GetShop(ctx, c.ShopID)
	if err != nil {
		return shop.Claim{}, err
	}
	if sh.OwnerID != "" && sh.OwnerID != c.UserID {
		return shop.Claim{}, svcerrors.Conflict("shop %s already has an owner", sh.ID)
	}

	sh.OwnerID = c.UserID
	if _, err := s.shops.UpdateShop(ctx, sh); err != nil {
		return shop.Claim{}, err
	}
	if s.promoter != nil {
		if _, err := s.promoter.Promote(ctx, c.UserID); err != nil {
			s.log.WithError(err).WithField("user_id", c.UserID).Warn("claimant role not upgraded")
		}
	}

	c, err = s.review(ctx, c, adminID, shop.ClaimApproved, notes)
	if err != nil {
		return shop.Claim{}, err
	}
	s.notify(ctx, c.UserID, notification.TypeClaimApproved, "Claim approved",
		fmt.Sprintf("You now manage %s on ConeDex.", sh.Name), "/shops/"+sh.ID)

	others, err := s.store.ListClaims(ctx, shop.ClaimFilter{ShopID: sh.ID, Status: shop.ClaimPending})
	if err != nil {
		return c, err
	}
	for _, other := range others {
		if _, err := s.review(ctx, other, adminID, shop.ClaimRejected, autoRejectNote); err != nil {
			s.log.WithError(err).WithField("claim_id", other.ID).Warn("competing claim not closed")
			continue
		}
		s.notify(ctx, other.UserID, notification.TypeClaimRejected, "Claim not approved",
			fmt.Sprintf("Your claim on %s was not approved. %s", sh.Name, autoRejectNote), "")
	}

	s.log.WithFields(map[string]interface{}{
		"claim_id":      c.ID,
		"shop_id":       sh.ID,
		"owner_id":      c.UserID,
		"admin_id":      adminID,
		"auto_rejected": len(others),
	}).Info("claim approved")
	return c, nil
}

// Reject declines a pending claim.
func (s *Service) Reject(ctx context.Context, adminID, claimID, notes string) (shop.Claim, error) {
	c, err := s.pending(ctx, claimID)
	if err != nil {
		return shop.Claim{}, err
	}
	c, err = s.review(ctx, c, adminID, shop.ClaimRejected, notes)
	if err != nil {
		return shop.Claim{}, err
	}
	message := "Your ownership claim was not approved."
	if c.ReviewNotes != "" {
		message += " " + c.ReviewNotes
	}
	s.notify(ctx, c.UserID, notification.TypeClaimRejected, "Claim not approved", message, "")
	s.log.WithField("claim_id", c.ID).WithField("admin_id", adminID).Info("claim rejected")
	return c, nil
}

func (s *Service) pending(ctx context.Context, id string) (shop.Claim, error) {
	c, err := s.store.GetClaim(ctx, id)
	if err != nil {
		return shop.Claim{}, err
	}
	if c.Status != shop.ClaimPending {
		return shop.Claim{}, svcerrors.Conflict("claim %s is already %s", id, c.Status)
	}
	return c, nil
}

func (s *Service) review(ctx context.Context, c shop.Claim, adminID string, status shop.ClaimStatus, notes string) (shop.Claim, error) {
	now := s.now()
	c.Status = status
	c.ReviewerID = adminID
	c.ReviewNotes = strings.TrimSpace(notes)
	c.ReviewedAt = &now
	return s.store.UpdateClaim(ctx, c)
}

func (s *Service) notify(ctx context.Context, userID string, typ notification.Type, title, message, link string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, typ, title, message, link)
	}
}

func validEmail(addr string) bool {
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}
