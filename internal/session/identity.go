// Package session resolves the caller's identity, role and account status
// from a backend credential.
package session

import (
	"strings"

	"pechincha/internal/promo"
)

// Role is the account role stored on a profile.
type Role string

const (
	RoleAdmin    Role = "admin"
	RolePartner  Role = "partner"
	RoleCustomer Role = "customer"
	// RoleUnknown marks an identity whose profile could not be loaded.
	RoleUnknown Role = "unknown"
)

// AccountStatus is the moderation state of a profile.
type AccountStatus string

const (
	StatusActive  AccountStatus = "active"
	StatusBlocked AccountStatus = "blocked"
)

var roleSynonyms = map[string]Role{
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
	"administrator": RoleAdmin,
	"partner":       RolePartner,
	"parceiro":      RolePartner,
	"lojista":       RolePartner,
	"customer":      RoleCustomer,
	"cliente":       RoleCustomer,
	"client":        RoleCustomer,
}

// NormalizeRole maps a stored role onto the closed set; anything else is unknown.
func NormalizeRole(v any) Role {
	raw := promo.Fold(backendString(v))
	if r, ok := roleSynonyms[raw]; ok {
		return r
	}
	return RoleUnknown
}

// NormalizeAccountStatus treats anything but an explicit block as active.
func NormalizeAccountStatus(v any) AccountStatus {
	switch promo.Fold(backendString(v)) {
	case "blocked", "bloqueado", "bloqueada", "suspended", "suspenso":
		return StatusBlocked
	default:
		return StatusActive
	}
}

// Identity is the resolved caller.
type Identity struct {
	UserID string        `json:"userId"`
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Role   Role          `json:"role"`
	Status AccountStatus `json:"status"`
}

// EffectiveRole is the role used for permission checks. An unknown role
// behaves as a customer.
func (i Identity) EffectiveRole() Role {
	if i.Role == "" || i.Role == RoleUnknown {
		return RoleCustomer
	}
	return i.Role
}

// Blocked reports whether the account is blocked.
func (i Identity) Blocked() bool {
	return i.Status == StatusBlocked
}

// Resolution is the outcome of one resolve pass.
type Resolution struct {
	Authenticated bool     `json:"authenticated"`
	ProfileLoaded bool     `json:"profileLoaded"`
	Identity      Identity `json:"identity"`
}

// Credential carries what the caller presented.
type Credential struct {
	AccessToken string
}

// Empty reports whether no token was presented.
func (c Credential) Empty() bool {
	return strings.TrimSpace(c.AccessToken) == ""
}
