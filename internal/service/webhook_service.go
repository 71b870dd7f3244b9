package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/audit"
	"kyc-service/internal/events"
	"kyc-service/internal/models"
	"kyc-service/internal/repository"
	"kyc-service/internal/search"
	"kyc-service/internal/sumsub"
	"kyc-service/internal/util"
)

// slotPrecedence is the fallback order used when the user's currently
// selected id type does not point at a populated slot. The ordering is
// carried-over business behavior, not a technical necessity.
var slotPrecedence = []models.SlotKey{
	models.SlotNationalID,
	models.SlotDriverLicense,
	models.SlotPassport,
}

// ResolveSlot picks the document slot a review event applies to. The event
// carries only an applicant id, so resolution leans on the user's state:
// the slot for the current idType wins if it has a front URL; otherwise the
// first populated slot in precedence order; otherwise the idType slot even
// when empty (review can land before the submission flow finishes writing).
func ResolveSlot(user *models.User) models.SlotKey {
	preferred := models.SlotKeyForIDType(user.IDType)
	if slot := user.KYC.Slot(preferred); slot != nil && slot.FrontURL != "" {
		return preferred
	}
	for _, key := range slotPrecedence {
		if slot := user.KYC.Slot(key); slot != nil && slot.FrontURL != "" {
			return key
		}
	}
	return preferred
}

// WebhookReconciler applies asynchronous provider review verdicts to the
// local record. Every delivery is acknowledged; internal failures are
// logged, never surfaced, so the provider's redelivery is not triggered by
// local bugs.
type WebhookReconciler struct {
	repo      repository.UserRepository
	publisher events.Publisher
	recorder  audit.Recorder
	indexer   search.Indexer
	logger    *zap.Logger
	now       func() time.Time
}

func NewWebhookReconciler(
	repo repository.UserRepository,
	publisher events.Publisher,
	recorder audit.Recorder,
	indexer search.Indexer,
	logger *zap.Logger,
) *WebhookReconciler {
	return &WebhookReconciler{
		repo:      repo,
		publisher: publisher,
		recorder:  recorder,
		indexer:   indexer,
		logger:    logger,
		now:       time.Now,
	}
}

// Process reconciles one review event. It never returns an error to the
// transport layer; the webhook is acknowledged regardless.
func (r *WebhookReconciler) Process(ctx context.Context, event *sumsub.WebhookEvent) {
	if event == nil || event.Type != sumsub.EventTypeApplicantReviewed {
		return
	}
	if event.ApplicantID == "" {
		r.logger.Warn("review event without applicant id, dropping")
		return
	}

	user, err := r.repo.GetUserByApplicantID(ctx, event.ApplicantID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			r.logger.Warn("review event for unknown applicant",
				util.String("applicant_id", event.ApplicantID))
		} else {
			r.logger.Error("failed to resolve applicant",
				util.String("applicant_id", event.ApplicantID), util.ErrorField(err))
		}
		return
	}

	answer := event.Answer()
	reviewStatus := event.Status()
	if reviewStatus == "" {
		reviewStatus = sumsub.ReviewStatusCompleted
	}
	reviewedAt := r.now()
	var slotKey models.SlotKey

	updated, err := r.repo.Update(ctx, user.UserID, func(u *models.User) error {
		slotKey = ResolveSlot(u)
		slot := u.KYC.EnsureSlot(slotKey)

		// Metadata is written unconditionally; only the status transition
		// is gated on a terminal verdict.
		slot.ReviewAnswer = answer
		slot.ReviewStatus = reviewStatus
		slot.RejectReasons = event.RejectLabels()
		slot.ModerationComment = event.ModerationComment()
		slot.ClientComment = event.ClientComment()
		slot.ReviewedAt = &reviewedAt

		switch answer {
		case models.ReviewAnswerGreen:
			slot.Status = models.KYCStatusApproved
		case models.ReviewAnswerRed:
			slot.Status = models.KYCStatusRejected
		}
		// Mirror only a known status; records written before slots carried
		// a creation default may still hold an empty one.
		if slot.Status != "" {
			u.IDStatus = slot.Status
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to apply review verdict",
			util.String("applicant_id", event.ApplicantID),
			util.String("user_id", user.UserID), util.ErrorField(err))
		return
	}

	slot := updated.KYC.Slot(slotKey)
	r.logger.Info("review verdict applied",
		util.String("user_id", updated.UserID),
		util.String("applicant_id", event.ApplicantID),
		util.String("slot", string(slotKey)),
		util.String("answer", answer),
		util.String("status", slot.Status))

	if err := r.publisher.Publish(ctx, events.KYCEvent{
		Type:        events.TypeReviewCompleted,
		UserID:      updated.UserID,
		ApplicantID: event.ApplicantID,
		IDType:      string(slotKey),
		Status:      slot.Status,
		Answer:      answer,
		OccurredAt:  reviewedAt,
	}); err != nil {
		r.logger.Warn("failed to publish review event", util.ErrorField(err))
	}
	if err := r.recorder.Record(ctx, audit.Entry{
		UserID:      updated.UserID,
		ApplicantID: event.ApplicantID,
		Action:      audit.ActionReviewApplied,
		IDType:      string(slotKey),
		Status:      slot.Status,
		Detail:      "answer=" + answer,
		OccurredAt:  reviewedAt,
	}); err != nil {
		r.logger.Warn("failed to record audit entry", util.ErrorField(err))
	}
	if err := r.indexer.IndexUser(ctx, updated); err != nil {
		r.logger.Warn("failed to index user", util.ErrorField(err))
	}
}
