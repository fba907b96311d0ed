package guard

import (
	"net/url"
	"strings"

	"pechincha/internal/session"
)

// State is the guard's view of the caller on one route.
type State string

const (
	// Unresolved: resolution has not finished; rendering proceeds optimistically.
	Unresolved         State = "unresolved"
	Resolving          State = "resolving"
	Unauthenticated    State = "unauthenticated"
	Blocked            State = "blocked"
	Allowed            State = "allowed"
	AllowedDegraded    State = "allowed_degraded"
	WrongRole          State = "wrong_role"
	ProfileUnavailable State = "profile_unavailable"
)

// Outcome is what the caller should do with the route.
type Outcome string

const (
	OutcomeRender   Outcome = "render"
	OutcomeRedirect Outcome = "redirect"
)

// Decision is the guard's verdict for one location.
type Decision struct {
	RouteClass string            `json:"routeClass"`
	State      State             `json:"state"`
	Outcome    Outcome           `json:"outcome"`
	RedirectTo string            `json:"redirectTo,omitempty"`
	From       string            `json:"from,omitempty"`
	Identity   *session.Identity `json:"identity,omitempty"`
}

// StateOf classifies a finished resolution against route.
func StateOf(route Route, res session.Resolution) State {
	switch {
	case !res.Authenticated:
		return Unauthenticated
	case res.Identity.Blocked():
		return Blocked
	case !res.ProfileLoaded:
		if route.OnProfileUnavailable == ActionDegrade {
			return AllowedDegraded
		}
		return ProfileUnavailable
	case !route.Allows(res.Identity.EffectiveRole()):
		return WrongRole
	default:
		return Allowed
	}
}

// Decide turns a state on route into a decision for location.
func Decide(route Route, state State, location string) Decision {
	d := Decision{RouteClass: route.Class, State: state, Outcome: OutcomeRender}
	if !route.RequireAuth {
		return d
	}
	switch state {
	case Unresolved, Resolving:
		if route.OnUnresolved != ActionDeny {
			return d
		}
	case Allowed, AllowedDegraded:
		return d
	}
	d.Outcome = OutcomeRedirect
	d.From = location
	d.RedirectTo = LoginURL(route.Login, location)
	return d
}

// Evaluate classifies location and decides on res. A nil res is unresolved.
func (p *Policy) Evaluate(location string, res *session.Resolution) Decision {
	route := p.Classify(pathOf(location))
	if res == nil {
		return p.mounted(Decide(route, Unresolved, location))
	}
	d := p.mounted(Decide(route, StateOf(route, *res), location))
	if res.Authenticated {
		id := res.Identity
		d.Identity = &id
	}
	return d
}

// mounted prefixes the redirect with the base path. From stays app-relative.
func (p *Policy) mounted(d Decision) Decision {
	if d.RedirectTo != "" && p.BasePath != "" && strings.HasPrefix(d.RedirectTo, "/") {
		d.RedirectTo = p.BasePath + d.RedirectTo
	}
	return d
}

// LoginURL appends the original location to login as the from parameter.
func LoginURL(login, from string) string {
	if from == "" {
		return login
	}
	return login + "?from=" + url.QueryEscape(from)
}

func pathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
