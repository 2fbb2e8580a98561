package account

import (
	"time"

	"github.com/google/uuid"
)

// Onboarding states of a therapist profile. Customers stay "new".
const (
	OnboardingNew           = "new"
	OnboardingPendingReview = "pending_review"
	OnboardingApproved      = "approved"
	OnboardingRejected      = "rejected"
)

// Profile is the application record of an identity-provider user. ID equals
// the identity user id.
type Profile struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Role             string    `db:"role" json:"role"`
	FullName         *string   `db:"full_name" json:"full_name,omitempty"`
	Email            *string   `db:"email" json:"email,omitempty"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	AvatarURL        *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	OnboardingStatus string    `db:"onboarding_status" json:"onboarding_status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// EnsureRequest is the body of POST /auth/ensure-profile.
type EnsureRequest struct {
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Contact holds the notification addresses of a user.
type Contact struct {
	Name  string
	Email string
	Phone string
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
