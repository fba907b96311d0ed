// Package partners implements the admin surface over partner accounts.
package partners

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"pechincha/internal/backend"
	"pechincha/internal/leads"
	"pechincha/internal/session"
)

var (
	// ErrFunctionFailed is returned when a privileged function refuses the call.
	ErrFunctionFailed = errors.New("partner function failed")
	// ErrInvalid wraps validation failures of partner input.
	ErrInvalid = errors.New("invalid partner")
)

// FunctionInvoker calls a serverless function with the caller's bearer token.
type FunctionInvoker interface {
	Invoke(ctx context.Context, name, token string, payload any) (*backend.FunctionResult, error)
}

// Leads is the lead store used for conversions.
type Leads interface {
	Get(ctx context.Context, id string) (leads.Lead, bool)
	UpdateStatus(ctx context.Context, id string, status leads.Status) error
}

// ProfileInvalidator drops cached profiles so the next resolution reads the
// stored one.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// CreateInput describes a new partner account.
type CreateInput struct {
	Name     string                `json:"name"`
	Email    string                `json:"email"`
	Password string                `json:"password"`
	Status   session.AccountStatus `json:"status"`
}

// Created is the outcome of a successful account creation.
type Created struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

// Functions names the privileged functions.
type Functions struct {
	Create string
	Delete string
}

// Service manages partner accounts.
type Service struct {
	profiles  *session.Profiles
	functions FunctionInvoker
	names     Functions
	leads     Leads
	events    *backend.Events
	cache     ProfileInvalidator
	logger    *slog.Logger
}

// NewService builds the partner service.
// cache may be nil when profiles are never cached.
func NewService(profiles *session.Profiles, functions FunctionInvoker, names Functions, leadStore Leads, events *backend.Events, cache ProfileInvalidator, logger *slog.Logger) *Service {
	if names.Create == "" {
		names.Create = "create-partner"
	}
	if names.Delete == "" {
		names.Delete = "delete-partner"
	}
	return &Service{
		profiles:  profiles,
		functions: functions,
		names:     names,
		leads:     leadStore,
		events:    events,
		cache:     cache,
		logger:    logger.With("component", "partners"),
	}
}

// List returns partner profiles, newest first.
func (s *Service) List(ctx context.Context) ([]session.Profile, error) {
	list, err := s.profiles.ListByRole(ctx, session.RolePartner)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	return list, nil
}

// Update edits a partner's name or status and announces the change so open
// sessions of that partner re-resolve.
func (s *Service) Update(ctx context.Context, id string, upd session.ProfileUpdate) (session.Profile, error) {
	prof, err := s.profiles.Update(ctx, id, upd)
	if err != nil {
		return session.Profile{}, fmt.Errorf("update partner: %w", err)
	}
	s.announce(ctx, prof.ID)
	s.logger.Info("partner updated", "partner_id", prof.ID, "status", prof.Status)
	return prof, nil
}

// announce drops the cached profile before subscribers re-resolve.
func (s *Service) announce(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(context.WithoutCancel(ctx), userID)
	}
	if s.events != nil {
		s.events.Publish(backend.AuthEvent{Kind: backend.EventProfileUpdated, UserID: userID})
	}
}

// Create provisions a partner account through the create function.
func (s *Service) Create(ctx context.Context, token string, in CreateInput) (Created, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Status == "" {
		in.Status = session.StatusActive
	}
	in.Status = session.NormalizeAccountStatus(string(in.Status))
	if err := validateCreate(in); err != nil {
		return Created{}, err
	}

	res, err := s.functions.Invoke(ctx, s.names.Create, token, map[string]any{
		"name":     in.Name,
		"email":    in.Email,
		"password": in.Password,
		"role":     string(session.RolePartner),
		"status":   string(in.Status),
	})
	if err != nil {
		return Created{}, fmt.Errorf("create partner: %w", err)
	}
	if !res.Success {
		return Created{}, fmt.Errorf("%w: %s", ErrFunctionFailed, messageOr(res.Message, "could not create partner"))
	}
	out := Created{UserID: userIDFrom(res.Data), Message: messageOr(res.Message, "partner created")}
	s.logger.Info("partner created", "email", in.Email, "user_id", out.UserID)
	return out, nil
}

// Delete removes a partner account through the delete function.
func (s *Service) Delete(ctx context.Context, token, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalid)
	}
	res, err := s.functions.Invoke(ctx, s.names.Delete, token, map[string]any{"user_id": id})
	if err != nil {
		return "", fmt.Errorf("delete partner: %w", err)
	}
	if !res.Success {
		return "", fmt.Errorf("%w: %s", ErrFunctionFailed, messageOr(res.Message, "could not delete partner"))
	}
	s.announce(ctx, id)
	s.logger.Info("partner deleted", "partner_id", id)
	return messageOr(res.Message, "partner deleted"), nil
}

// CreateFromLead provisions an account for a lead and marks it approved. An
// empty name falls back to the lead's company name.
func (s *Service) CreateFromLead(ctx context.Context, token, leadID string, in CreateInput) (Created, error) {
	if s.leads == nil {
		return Created{}, fmt.Errorf("create partner from lead: no lead store")
	}
	lead, ok := s.leads.Get(ctx, leadID)
	if !ok {
		return Created{}, fmt.Errorf("create partner from lead: %w", leads.ErrNotFound)
	}
	if strings.TrimSpace(in.Name) == "" {
		in.Name = lead.CompanyName
	}
	created, err := s.Create(ctx, token, in)
	if err != nil {
		return Created{}, err
	}
	if err := s.leads.UpdateStatus(ctx, lead.ID, leads.StatusApproved); err != nil {
		s.logger.Warn("lead status not updated after conversion", "lead_id", lead.ID, "error", err)
	}
	return created, nil
}

func validateCreate(in CreateInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	if len(in.Password) < 6 {
		return fmt.Errorf("%w: password must have at least 6 characters", ErrInvalid)
	}
	return nil
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}

func userIDFrom(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		UserID string `json:"user_id"`
		ID     string `json:"id"`
		User   struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	for _, id := range []string{payload.UserID, payload.ID, payload.User.ID} {
		if id != "" {
			return id
		}
	}
	return ""
}
