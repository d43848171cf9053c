package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Verification statuses
const (
	VerificationPendingReview = "pending_review"
	VerificationApproved      = "approved"
	VerificationRejected      = "rejected"
	VerificationAutoVerified  = "auto_verified"
)

// Trust levels
const (
	TrustUnverified = "unverified"
	TrustLow        = "low"
	TrustMedium     = "medium"
	TrustHigh       = "high"
)

// Evidence sources
const (
	SourceManualOnly    = "manual_only"
	SourceGalleryNoExif = "gallery_no_exif"
	SourceGalleryExif   = "gallery_exif"
	SourceCameraGPS     = "camera_gps"
)

// TerminalStatuses can never transition again.
var TerminalStatuses = []string{VerificationApproved, VerificationRejected}

// Continents accepted by review edits.
var Continents = []string{
	"Africa",
	"Antarctica",
	"Asia",
	"Europe",
	"North America",
	"Oceania",
	"South America",
}

// VerificationReasons accepted by review edits.
var VerificationReasons = []string{
	"photo_with_location",
	"boarding_pass",
	"travel_ticket",
	"hotel_booking",
	"passport_stamp",
	"manual_review",
	"other",
}

// Coordinates of a visit, in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// IsZero reports the exact (0,0) placeholder older clients stored. A record
// without coordinates is not a placeholder.
func (c *Coordinates) IsZero() bool {
	return c != nil && c.Lat == 0 && c.Lng == 0
}

// Visit is a user-submitted visit claim awaiting verification review.
type Visit struct {
	ID                 primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	UserID             primitive.ObjectID  `json:"userId" bson:"user_id"`
	City               string              `json:"city" bson:"city"`
	Country            string              `json:"country" bson:"country"`
	Continent          string              `json:"continent,omitempty" bson:"continent,omitempty"`
	Address            string              `json:"address,omitempty" bson:"address,omitempty"`
	Coordinates        *Coordinates        `json:"coordinates,omitempty" bson:"coordinates,omitempty"`
	VerificationStatus string              `json:"verificationStatus" bson:"verification_status"`
	TrustLevel         string              `json:"trustLevel,omitempty" bson:"trust_level,omitempty"`
	Source             string              `json:"source,omitempty" bson:"source,omitempty"`
	VerificationReason string              `json:"verificationReason,omitempty" bson:"verification_reason,omitempty"`
	RejectionReason    string              `json:"rejectionReason,omitempty" bson:"rejection_reason,omitempty"`
	ReviewedBy         *primitive.ObjectID `json:"reviewedBy,omitempty" bson:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time          `json:"reviewedAt,omitempty" bson:"reviewed_at,omitempty"`
	LegacyStatus       string              `json:"-" bson:"legacy_status,omitempty"`
	CreatedAt          time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt          time.Time           `json:"updatedAt" bson:"updated_at"`
}

// IsTerminal reports whether the record was already approved or rejected.
func (v *Visit) IsTerminal() bool {
	return v.VerificationStatus == VerificationApproved || v.VerificationStatus == VerificationRejected
}

// AwaitsReview mirrors the pending-list query: not terminal and either
// explicitly pending_review or matching one of the legacy proxies.
func (v *Visit) AwaitsReview() bool {
	if v.IsTerminal() {
		return false
	}
	return v.VerificationStatus == VerificationPendingReview || v.HasLegacyPendingProxy()
}

// HasLegacyPendingProxy reports the heuristics used for records created
// before verification_status existed.
func (v *Visit) HasLegacyPendingProxy() bool {
	return v.TrustLevel == TrustUnverified ||
		v.Source == SourceManualOnly ||
		v.Source == SourceGalleryNoExif ||
		v.Coordinates.IsZero()
}

// ReviewResult is the response of an approve/reject action.
type ReviewResult struct {
	ID                 primitive.ObjectID  `json:"_id"`
	VerificationStatus string              `json:"verificationStatus"`
	ReviewedBy         *primitive.ObjectID `json:"reviewedBy"`
	ReviewedAt         *time.Time          `json:"reviewedAt"`
}
