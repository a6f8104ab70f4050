// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is matched with errors.Is by every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing template, campaign or user.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewCampaignNotFound(id int64) error {
	return &NotFoundError{Resource: "campaign", ID: id}
}

func NewTemplateNotFound(id int64) error {
	return &NotFoundError{Resource: "template", ID: id}
}

func NewUserNotFound(id int64) error {
	return &NotFoundError{Resource: "user", ID: id}
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// EmptyAudienceError means the resolver produced no recipients.
type EmptyAudienceError struct {
	Audience string
}

func (e *EmptyAudienceError) Error() string {
	return fmt.Sprintf("audience %q resolved to zero recipients", e.Audience)
}

// DeliveryError is a per-recipient transport failure. It is stored on the
// delivery log row, never returned from a campaign send.
type DeliveryError struct {
	UserID int64
	Email  string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Email, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type InvalidTransitionError struct {
	CampaignID int64
	From       string
	To         string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("campaign %d cannot move from %s to %s", e.CampaignID, e.From, e.To)
}

type TemplateInactiveError struct {
	TemplateID int64
}

func (e *TemplateInactiveError) Error() string {
	return fmt.Sprintf("template %d is not active", e.TemplateID)
}

// DuplicateDeliveryError is raised when a (campaign, user) delivery row
// already exists.
type DuplicateDeliveryError struct {
	CampaignID int64
	UserID     int64
}

func (e *DuplicateDeliveryError) Error() string {
	return fmt.Sprintf("delivery log for campaign %d and user %d already exists", e.CampaignID, e.UserID)
}

type NoFailuresError struct {
	CampaignID int64
}

func (e *NoFailuresError) Error() string {
	return fmt.Sprintf("campaign %d has no failed deliveries to resend", e.CampaignID)
}

// IsPermanent reports whether retrying the same send job can never succeed.
func IsPermanent(err error) bool {
	var (
		transition *InvalidTransitionError
		empty      *EmptyAudienceError
		inactive   *TemplateInactiveError
		validation *ValidationError
	)
	return errors.Is(err, ErrNotFound) ||
		errors.As(err, &transition) ||
		errors.As(err, &empty) ||
		errors.As(err, &inactive) ||
		errors.As(err, &validation)
}

// ErrDeliveryFinalized is returned when a delivery row has already left
// pending.
var ErrDeliveryFinalized = errors.New("delivery log already finalized")
