package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"pechincha/internal/backend"
	"pechincha/internal/metrics"
)

// DefaultRetryDelay is the pause before the single profile fetch retry.
const DefaultRetryDelay = 400 * time.Millisecond

// profileFlightTimeout bounds one shared profile fetch.
const profileFlightTimeout = 10 * time.Second

// UserLookup validates an access token against the auth service.
type UserLookup interface {
	GetUser(ctx context.Context, token string) (*backend.User, error)
}

// ResolverOptions configures optional collaborators of a Resolver.
type ResolverOptions struct {
	// Verifier checks tokens locally; when nil every check calls the auth service.
	Verifier    *TokenVerifier
	Revocations Revocations
	Cache       ProfileCache
	RetryDelay  time.Duration
	Metrics     *metrics.Metrics
}

// Resolver turns a credential into a Resolution.
type Resolver struct {
	users      UserLookup
	profiles   *Profiles
	verifier   *TokenVerifier
	revoked    Revocations
	cache      ProfileCache
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	group      singleflight.Group
}

// NewResolver builds a resolver.
func NewResolver(users UserLookup, profiles *Profiles, opts ResolverOptions, logger *slog.Logger) *Resolver {
	delay := opts.RetryDelay
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return &Resolver{
		users:      users,
		profiles:   profiles,
		verifier:   opts.Verifier,
		revoked:    opts.Revocations,
		cache:      opts.Cache,
		retryDelay: delay,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "session_resolver"),
		tracer:     otel.Tracer("pechincha/internal/session"),
	}
}

// Resolve checks the credential and loads the caller's profile. It returns an
// error only when the credential itself could not be checked (transient auth
// failure or cancellation); callers treat that as unresolved.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "session.Resolve")
	defer span.End()

	if cred.Empty() {
		span.SetAttributes(attribute.Bool("session.authenticated", false))
		return Resolution{}, nil
	}
	token := strings.TrimSpace(cred.AccessToken)

	user, _, err := r.authenticate(ctx, token)
	if err != nil {
		if isCredentialRejected(err) {
			span.SetAttributes(attribute.Bool("session.authenticated", false))
			return Resolution{}, nil
		}
		span.RecordError(err)
		return Resolution{}, fmt.Errorf("resolve session: %w", err)
	}

	res := Resolution{
		Authenticated: true,
		Identity: Identity{
			UserID: user.ID,
			Email:  user.Email,
			Name:   metadataName(user),
			Role:   RoleUnknown,
			Status: StatusActive,
		},
	}

	prof, err := r.loadProfile(backend.WithAccessToken(ctx, token), user.ID)
	if err != nil {
		r.logger.Warn("profile unavailable", "user_id", user.ID, "error", err)
	} else {
		res.ProfileLoaded = true
		res.Identity.Role = prof.Role
		res.Identity.Status = prof.Status
		if prof.Name != "" {
			res.Identity.Name = prof.Name
		}
		if res.Identity.Email == "" {
			res.Identity.Email = prof.Email
		}
	}
	if res.Identity.Name == "" {
		res.Identity.Name = res.Identity.Email
	}

	span.SetAttributes(
		attribute.Bool("session.authenticated", true),
		attribute.Bool("session.profile_loaded", res.ProfileLoaded),
		attribute.String("session.role", string(res.Identity.Role)),
	)
	return res, nil
}

// authenticate returns the user behind token and the token expiry when known.
func (r *Resolver) authenticate(ctx context.Context, token string) (*backend.User, time.Time, error) {
	if r.revoked != nil {
		revoked, err := r.revoked.IsRevoked(ctx, token)
		if err != nil {
			r.logger.Warn("revocation check failed", "error", err)
		} else if revoked {
			return nil, time.Time{}, fmt.Errorf("token revoked: %w", backend.ErrUnauthorized)
		}
	}
	if r.verifier != nil {
		return r.verifier.Verify(token)
	}
	user, err := r.users.GetUser(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, time.Time{}, fmt.Errorf("get user: empty id: %w", backend.ErrUnauthorized)
	}
	return user, time.Time{}, nil
}

func (r *Resolver) loadProfile(ctx context.Context, userID string) (Profile, error) {
	if r.cache != nil {
		if p, ok := r.cache.Get(ctx, userID); ok {
			r.metrics.IncProfileFetch("cached")
			return p, nil
		}
	}
	// The flight is shared; one caller giving up must not fail the rest.
	flight := r.group.DoChan(userID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileFlightTimeout)
		defer cancel()
		return r.fetchProfile(flightCtx, userID)
	})
	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return Profile{}, res.Err
		}
		return res.Val.(Profile), nil
	}
}

// fetchProfile reads the profile, retrying once after retryDelay when the
// first failure is transient.
func (r *Resolver) fetchProfile(ctx context.Context, userID string) (Profile, error) {
	prof, err := r.profiles.Get(ctx, userID)
	if err == nil {
		r.metrics.IncProfileFetch("ok")
		r.remember(ctx, prof)
		return prof, nil
	}
	if errors.Is(err, ErrProfileNotFound) {
		r.metrics.IncProfileFetch("missing")
		return Profile{}, err
	}
	if !backend.IsTransient(err) {
		r.metrics.IncProfileFetch("failed")
		return Profile{}, err
	}

	r.logger.Debug("profile fetch failed, retrying", "user_id", userID, "delay", r.retryDelay, "error", err)
	timer := time.NewTimer(r.retryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		r.metrics.IncProfileFetch("failed")
		return Profile{}, ctx.Err()
	case <-timer.C:
	}

	prof, err = r.profiles.Get(ctx, userID)
	if err != nil {
		r.metrics.IncProfileFetch("failed")
		return Profile{}, err
	}
	r.metrics.IncProfileFetch("retried")
	r.remember(ctx, prof)
	return prof, nil
}

func (r *Resolver) remember(ctx context.Context, p Profile) {
	if r.cache != nil && p.ID != "" {
		r.cache.Set(ctx, p)
	}
}

// Invalidate drops any cached profile of userID.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	r.group.Forget(userID)
	if r.cache != nil {
		r.cache.Invalidate(ctx, userID)
	}
}

// Run invalidates cached profiles on every auth event until ctx is done.
func (r *Resolver) Run(ctx context.Context, events *backend.Events) error {
	for evt := range events.Subscribe(ctx) {
		r.logger.Debug("auth event", "kind", evt.Kind, "user_id", evt.UserID)
		r.Invalidate(context.WithoutCancel(ctx), evt.UserID)
	}
	return nil
}

func isCredentialRejected(err error) bool {
	return errors.Is(err, backend.ErrUnauthorized) ||
		errors.Is(err, backend.ErrNotFound) ||
		errors.Is(err, backend.ErrRejected)
}

func metadataName(u *backend.User) string {
	for _, key := range []string{"name", "full_name", "display_name"} {
		if v, ok := u.Metadata[key]; ok {
			if s := strings.TrimSpace(backend.AsString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
