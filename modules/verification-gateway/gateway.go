// Package verificationgateway submits a captured selfie to the identity
// verification service and returns its decision.
//
// A negative decision is a valid Result, not an error. Errors always carry the
// VerificationTransportFailure kind: the caller learned nothing about the
// subject and may retry explicitly.
package verificationgateway

import (
	"context"
)

// SubjectTypeSelfie is the only subject type submitted by the capture workflow.
const SubjectTypeSelfie = "selfie"

// Request is one verification attempt.
type Request struct {
	// ImagePayload is the captured image as a data URI.
	ImagePayload string `json:"imagePayload" validate:"required,startswith=data:"`
	SubjectType  string `json:"subjectType" validate:"required,oneof=selfie"`
	SubjectID    string `json:"subjectId" validate:"required,max=128"`
}

// NewRequest builds a selfie verification request.
func NewRequest(subjectID, imagePayload string) Request {
	return Request{
		ImagePayload: imagePayload,
		SubjectType:  SubjectTypeSelfie,
		SubjectID:    subjectID,
	}
}

// Result is the gateway decision.
type Result struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// Verifier is the verification gateway contract.
type Verifier interface {
	// Verify submits req and blocks until the gateway decided. There is no
	// built-in deadline: ctx carries the caller's policy.
	Verify(ctx context.Context, req Request) (Result, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (Result, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
