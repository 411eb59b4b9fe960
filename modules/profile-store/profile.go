// Package profilestore persists the identity-verification fields of a subject's
// profile: verification flag, trust score and accepted selfie.
//
// Every implementation clamps the trust score to [MinTrustScore, MaxTrustScore]
// before writing, so no caller can persist an out-of-range score.
package profilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Trust score bounds.
const (
	MinTrustScore     = 0
	MaxTrustScore     = 100
	DefaultTrustScore = 50
)

// ErrNotFound is returned when no profile exists for the subject.
var ErrNotFound = errors.New("profile not found")

// Profile is the persisted subject profile.
type Profile struct {
	SubjectID  string
	Name       string
	TrustScore int
	IsVerified bool
	// SelfieImage is the accepted selfie as a data URI, empty until verified.
	SelfieImage  string
	MobileNumber string
	UpdatedAt    time.Time
}

// Update is a partial profile update. Nil fields are left unchanged.
type Update struct {
	Name         *string
	TrustScore   *int
	IsVerified   *bool
	SelfieImage  *string
	MobileNumber *string
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Name == nil && u.TrustScore == nil && u.IsVerified == nil &&
		u.SelfieImage == nil && u.MobileNumber == nil
}

// Apply returns p with u applied and the trust score clamped.
func (u Update) Apply(p Profile) Profile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.TrustScore != nil {
		p.TrustScore = ClampTrustScore(*u.TrustScore)
	}
	if u.IsVerified != nil {
		p.IsVerified = *u.IsVerified
	}
	if u.SelfieImage != nil {
		p.SelfieImage = *u.SelfieImage
	}
	if u.MobileNumber != nil {
		p.MobileNumber = *u.MobileNumber
	}
	return p
}

// Store reads and updates profiles.
type Store interface {
	// Read returns the subject's profile or ErrNotFound.
	Read(ctx context.Context, subjectID string) (Profile, error)
	// Update applies u to an existing profile or returns ErrNotFound.
	Update(ctx context.Context, subjectID string, u Update) error
}

// Seeder creates or replaces whole profiles. Every store implements it; it is
// used for provisioning, not by the capture workflow.
type Seeder interface {
	Put(ctx context.Context, p Profile) error
}

// ClampTrustScore bounds score to [MinTrustScore, MaxTrustScore].
func ClampTrustScore(score int) int {
	return min(max(score, MinTrustScore), MaxTrustScore)
}

// Ptr returns a pointer to v, for building Updates.
func Ptr[T any](v T) *T { return &v }

// UpdateTrustScore sets the subject's trust score, clamped.
func UpdateTrustScore(ctx context.Context, store Store, subjectID string, score int) error {
	return store.Update(ctx, subjectID, Update{TrustScore: Ptr(ClampTrustScore(score))})
}

// UpdateMobileNumber sets the subject's mobile number after normalising it to
// digits with an optional leading plus.
func UpdateMobileNumber(ctx context.Context, store Store, subjectID, number string) error {
	normalized, err := NormalizeMobileNumber(number)
	if err != nil {
		return err
	}
	return store.Update(ctx, subjectID, Update{MobileNumber: Ptr(normalized)})
}

// NormalizeMobileNumber strips spaces, dashes and parentheses and requires
// 7 to 15 digits, as E.164 does.
func NormalizeMobileNumber(number string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("invalid mobile number %q", number)
		}
	}

	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 7 || digits > 15 {
		return "", fmt.Errorf("invalid mobile number %q: want 7 to 15 digits", number)
	}
	return out, nil
}

// normalize prepares a profile for writing.
func normalize(p Profile, now time.Time) (Profile, error) {
	if strings.TrimSpace(p.SubjectID) == "" {
		return p, errors.New("profile without subject id")
	}
	p.TrustScore = ClampTrustScore(p.TrustScore)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// setClauses renders the SET list of an UPDATE for u. placeholder renders the
// n-th (1-based) bind parameter in the driver's syntax.
func setClauses(u Update, placeholder func(n int) string) ([]string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		clauses = append(clauses, col+" = "+placeholder(len(args)))
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.TrustScore != nil {
		add("trust_score", ClampTrustScore(*u.TrustScore))
	}
	if u.IsVerified != nil {
		add("is_verified", *u.IsVerified)
	}
	if u.SelfieImage != nil {
		add("selfie_image", *u.SelfieImage)
	}
	if u.MobileNumber != nil {
		add("mobile_number", *u.MobileNumber)
	}
	return clauses, args
}
