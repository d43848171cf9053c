package service

import (
	"Wayfarer/internal/common"
	"Wayfarer/internal/model"
	"Wayfarer/internal/repo"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CoordinatesInput is a coordinate pair supplied by a client.
type CoordinatesInput struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

// UpdateReviewRequest carries admin corrections to a review record. Nil
// fields are left untouched.
type UpdateReviewRequest struct {
	Country            *string           `json:"country" validate:"omitempty,min=1,max=100"`
	Continent          *string           `json:"continent" validate:"omitempty,continent"`
	Address            *string           `json:"address" validate:"omitempty,max=300"`
	City               *string           `json:"city" validate:"omitempty,min=1,max=100"`
	VerificationReason *string           `json:"verificationReason" validate:"omitempty,verification_reason"`
	Coordinates        *CoordinatesInput `json:"coordinates"`
}

// SubmitVisitRequest is a user's claim of having visited a place.
type SubmitVisitRequest struct {
	City               string            `json:"city" validate:"required,max=100"`
	Country            string            `json:"country" validate:"required,max=100"`
	Continent          string            `json:"continent" validate:"omitempty,continent"`
	Address            string            `json:"address" validate:"omitempty,max=300"`
	Source             string            `json:"source" validate:"omitempty,oneof=manual_only gallery_no_exif gallery_exif camera_gps"`
	VerificationReason string            `json:"verificationReason" validate:"omitempty,verification_reason"`
	Coordinates        *CoordinatesInput `json:"coordinates"`
}

type PendingReviewList struct {
	Reviews    []model.Visit     `json:"reviews"`
	Pagination common.Pagination `json:"pagination"`
}

type ReviewService interface {
	ListPending(ctx context.Context, page, limit int64) (*PendingReviewList, error)
	Approve(ctx context.Context, recordID, adminID string) (*model.ReviewResult, error)
	Reject(ctx context.Context, recordID, adminID, reason string) (*model.ReviewResult, error)
	Update(ctx context.Context, recordID, adminID string, req UpdateReviewRequest) (*model.Visit, error)
	Submit(ctx context.Context, userID string, req SubmitVisitRequest) (*model.Visit, error)
}

type reviewService struct {
	visits        repo.VisitRepository
	conversations repo.ConversationRepository
	users         repo.UserRepository
	dispatcher    Dispatcher
	validate      *validator.Validate
	logger        *zap.Logger
}

func NewReviewService(
	visits repo.VisitRepository,
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	dispatcher Dispatcher,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		visits:        visits,
		conversations: conversations,
		users:         users,
		dispatcher:    dispatcher,
		validate:      newReviewValidator(),
		logger:        logger,
	}
}

func newReviewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("continent", oneOfList(model.Continents))
	_ = v.RegisterValidation("verification_reason", oneOfList(model.VerificationReasons))
	return v
}

func oneOfList(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if value == a {
				return true
			}
		}
		return false
	}
}

// -----------------------------------------------------------------------------
// ListPending
// -----------------------------------------------------------------------------

func (s *reviewService) ListPending(ctx context.Context, page, limit int64) (*PendingReviewList, error) {
	result, err := s.visits.ListPending(ctx, page, limit)
	if err != nil {
		return nil, common.Internal(err)
	}

	return &PendingReviewList{
		Reviews: result.Data,
		Pagination: common.Pagination{
			Page:       result.Page,
			Limit:      result.PageSize,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	}, nil
}

// -----------------------------------------------------------------------------
// Approve / Reject
// -----------------------------------------------------------------------------

func (s *reviewService) Approve(ctx context.Context, recordID, adminID string) (*model.ReviewResult, error) {
	visit, result, err := s.decide(ctx, recordID, adminID, model.VerificationApproved, nil)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, visit, NotificationApproved, fmt.Sprintf(
		"Good news! Your visit to %s has been verified and approved. It now counts toward your travel map.",
		placeName(visit.City, visit.Country),
	))
	return result, nil
}

func (s *reviewService) Reject(ctx context.Context, recordID, adminID, reason string) (*model.ReviewResult, error) {
	reason = strings.TrimSpace(reason)

	visit, result, err := s.decide(ctx, recordID, adminID, model.VerificationRejected, bson.M{"rejection_reason": reason})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("We could not verify your visit to %s.", placeName(visit.City, visit.Country))
	if reason != "" {
		text += " Reason: " + reason + "."
	}
	text += " You can submit it again with a photo taken on location, a boarding pass or a booking confirmation. Reply here if you have questions."

	s.notify(ctx, visit, NotificationRejected, text)
	return result, nil
}

// decide validates the record is reviewable and moves it to status with a
// guarded update. A concurrent decision that won the race is reported the
// same way as one that was already stored.
func (s *reviewService) decide(ctx context.Context, recordID, adminID, status string, extra bson.M) (*model.Visit, *model.ReviewResult, error) {
	id, err := parseObjectID(recordID, common.CodeInvalidID, "review id")
	if err != nil {
		return nil, nil, err
	}
	reviewer, err := parseObjectID(adminID, common.CodeInvalidUserID, "admin id")
	if err != nil {
		return nil, nil, err
	}

	visit, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundOr(err, common.CodeReviewNotFound, "review not found")
	}
	if err := checkReviewable(visit); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	ok, err := s.visits.Transition(ctx, id, status, reviewer, now, extra)
	if err != nil {
		return nil, nil, common.Internal(err)
	}
	if !ok {
		current, err := s.visits.GetByID(ctx, id)
		if err != nil {
			return nil, nil, notFoundOr(err, common.CodeReviewNotFound, "review not found")
		}
		if err := checkReviewable(current); err != nil {
			return nil, nil, err
		}
		return nil, nil, common.Validation(common.CodeNotPending, "review is not pending")
	}

	reviewDecisionsTotal.WithLabelValues(status).Inc()
	s.logger.Info("review decided",
		zap.String("record_id", recordID),
		zap.String("admin_id", adminID),
		zap.String("status", status),
	)

	s.resolveConversation(ctx, id)

	visit.VerificationStatus = status
	visit.ReviewedBy = &reviewer
	visit.ReviewedAt = &now

	return visit, &model.ReviewResult{
		ID:                 id,
		VerificationStatus: status,
		ReviewedBy:         &reviewer,
		ReviewedAt:         &now,
	}, nil
}

// checkReviewable reports why a record cannot be approved or rejected. The
// order matters: terminal states are reported before eligibility.
func checkReviewable(v *model.Visit) error {
	switch {
	case v.VerificationStatus == model.VerificationApproved:
		return common.Validation(common.CodeAlreadyApproved, "review is already approved")
	case v.VerificationStatus == model.VerificationRejected:
		return common.Validation(common.CodeAlreadyRejected, "review is already rejected")
	case !v.AwaitsReview():
		return common.Validation(common.CodeNotPending, "review is not pending")
	}
	return nil
}

func (s *reviewService) resolveConversation(ctx context.Context, id primitive.ObjectID) {
	n, err := s.conversations.SetStatusByRelated(ctx, model.ReasonTripVerification, id.Hex(), model.ConversationStatusResolved)
	if err != nil {
		s.logger.Warn("failed to resolve review conversation",
			zap.String("record_id", id.Hex()),
			zap.Error(err),
		)
		return
	}
	if n > 0 {
		s.logger.Debug("review conversation resolved", zap.String("record_id", id.Hex()), zap.Int64("count", n))
	}
}

func (s *reviewService) notify(ctx context.Context, visit *model.Visit, ev, text string) {
	if s.dispatcher == nil {
		return
	}
	n := SupportNotification{
		UserID: visit.UserID.Hex(),
		Reason: model.ReasonTripVerification,
		RefID:  visit.ID.Hex(),
		Event:  ev,
		Text:   text,
	}
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Error("failed to dispatch review notification",
			zap.String("record_id", visit.ID.Hex()),
			zap.String("event", ev),
			zap.Error(err),
		)
	}
}

// -----------------------------------------------------------------------------
// Update
// -----------------------------------------------------------------------------

func (s *reviewService) Update(ctx context.Context, recordID, adminID string, req UpdateReviewRequest) (*model.Visit, error) {
	id, err := parseObjectID(recordID, common.CodeInvalidID, "review id")
	if err != nil {
		return nil, err
	}
	reviewer, err := parseObjectID(adminID, common.CodeInvalidUserID, "admin id")
	if err != nil {
		return nil, err
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fields := bson.M{
		"reviewed_by": reviewer,
		"reviewed_at": now,
		"updated_at":  now,
	}
	setString := func(key string, v *string) {
		if v != nil {
			fields[key] = strings.TrimSpace(*v)
		}
	}
	setString("country", req.Country)
	setString("continent", req.Continent)
	setString("address", req.Address)
	setString("city", req.City)
	setString("verification_reason", req.VerificationReason)
	if req.Coordinates != nil {
		fields["coordinates"] = &model.Coordinates{Lat: *req.Coordinates.Lat, Lng: *req.Coordinates.Lng}
	}

	visit, err := s.visits.UpdateFields(ctx, id, fields)
	if err != nil {
		return nil, notFoundOr(err, common.CodeReviewNotFound, "review not found")
	}

	s.logger.Info("review updated", zap.String("record_id", recordID), zap.String("admin_id", adminID))
	return visit, nil
}

// -----------------------------------------------------------------------------
// Submit
// -----------------------------------------------------------------------------

func (s *reviewService) Submit(ctx context.Context, userID string, req SubmitVisitRequest) (*model.Visit, error) {
	uid, err := parseObjectID(userID, common.CodeInvalidUserID, "user id")
	if err != nil {
		return nil, err
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return nil, common.Internal(err)
	}
	if !exists {
		return nil, common.NotFound(common.CodeUserNotFound, "user not found")
	}

	source := req.Source
	if source == "" {
		source = model.SourceManualOnly
	}

	now := time.Now().UTC()
	visit := &model.Visit{
		UserID:             uid,
		City:               strings.TrimSpace(req.City),
		Country:            strings.TrimSpace(req.Country),
		Continent:          req.Continent,
		Address:            strings.TrimSpace(req.Address),
		VerificationStatus: model.VerificationPendingReview,
		TrustLevel:         model.TrustUnverified,
		Source:             source,
		VerificationReason: req.VerificationReason,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Coordinates != nil {
		visit.Coordinates = &model.Coordinates{Lat: *req.Coordinates.Lat, Lng: *req.Coordinates.Lng}
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, common.Internal(err)
	}

	s.logger.Info("visit submitted for review", zap.String("record_id", visit.ID.Hex()), zap.String("user_id", userID))
	return visit, nil
}

func (s *reviewService) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return common.Validation(common.CodeInvalidField, "invalid "+fieldPath(verrs[0].Namespace()))
	}
	return common.Validation(common.CodeInvalidField, err.Error())
}

// fieldPath drops the struct name from a validator namespace
// ("UpdateReviewRequest.coordinates.lat" -> "coordinates.lat").
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
