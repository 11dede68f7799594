// Package authz decides whether an actor may perform an action on a tenant.
//
// Actors are described by an ActingContext. Both admin sessions and
// validated access tokens produce one, so handlers don't need to know how
// the actor authenticated.
package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

// Role is the role of a member profile.
type Role string

const (
	RoleMember      Role = "member"
	RoleTenantAdmin Role = "tenant_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleTenantAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r is allowed to log in.
func (r Role) IsAdmin() bool {
	return r == RoleTenantAdmin || r == RoleSuperAdmin
}

func (r *Role) UnmarshalText(text []byte) error {
	role := Role(text)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", text)
	}
	*r = role
	return nil
}

// Action is something an actor can attempt to do.
type Action string

const (
	ActionManageTenants       Action = "tenants.manage"
	ActionManageMembers       Action = "members.manage"
	ActionManageGroups        Action = "groups.manage"
	ActionManageProjects      Action = "projects.manage"
	ActionManageOpportunities Action = "opportunities.manage"
	ActionManagePolls         Action = "polls.manage"
)

// superOnly lists the actions only super admins may perform.
var superOnly = map[Action]bool{
	ActionManageTenants: true,
}

// ActingContext describes who is performing a request.
type ActingContext struct {
	MemberID uuid.NullUUID
	Email    email.Address
	TenantID uuid.NullUUID
	Role     Role
	// Scope describes how the actor authenticated, "session" or "token:<purpose>".
	Scope string
	// Ref is the resource a token capability is bound to, such as a poll.
	Ref uuid.NullUUID
}

// Bound returns the tenant and resource the actor is bound to. ok is false
// unless both are set.
func (ac ActingContext) Bound() (tenantID uuid.UUID, ref uuid.UUID, ok bool) {
	if !ac.TenantID.Valid || !ac.Ref.Valid {
		return uuid.Nil, uuid.Nil, false
	}
	return ac.TenantID.UUID, ac.Ref.UUID, true
}

// Principal is anything that can act in the system.
type Principal interface {
	ActingContext() ActingContext
}

// SessionPrincipal is an admin who logged in with a password.
type SessionPrincipal struct {
	MemberID uuid.UUID
	Email    email.Address
	TenantID uuid.NullUUID
	Role     Role
}

func (p SessionPrincipal) ActingContext() ActingContext {
	return ActingContext{
		MemberID: uuid.NullUUID{UUID: p.MemberID, Valid: true},
		Email:    p.Email,
		TenantID: p.TenantID,
		Role:     p.Role,
		Scope:    "session",
	}
}

// TokenCapability is a member acting through a validated access token.
// It never carries admin rights.
type TokenCapability struct {
	Email      email.Address
	TenantID   uuid.NullUUID
	Purpose    string
	ContextRef uuid.NullUUID
}

func (p TokenCapability) ActingContext() ActingContext {
	return ActingContext{
		Email:    p.Email,
		TenantID: p.TenantID,
		Role:     RoleMember,
		Scope:    "token:" + p.Purpose,
		Ref:      p.ContextRef,
	}
}

// System is used by operator tooling, it acts as a super admin.
type System struct{}

func (System) ActingContext() ActingContext {
	return ActingContext{
		Role:  RoleSuperAdmin,
		Scope: "system",
	}
}

// Authorize checks whether p may perform action on the given tenant.
// A nil principal results in errorz.ErrUnauthenticated, a denial in errorz.ErrForbidden.
func Authorize(p Principal, action Action, tenantID uuid.UUID) error {
	if p == nil {
		return errorz.ErrUnauthenticated
	}

	ac := p.ActingContext()
	switch ac.Role {
	case RoleSuperAdmin:
		return nil
	case RoleTenantAdmin:
		if superOnly[action] {
			return fmt.Errorf("%s requires a super admin: %w", action, errorz.ErrForbidden)
		}
		if !ac.TenantID.Valid || ac.TenantID.UUID != tenantID {
			return fmt.Errorf("%s on other tenant: %w", action, errorz.ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%s requires an admin: %w", action, errorz.ErrForbidden)
	}
}

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal in ctx, or nil.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// Require authorizes the principal in ctx and returns its acting context.
func Require(ctx context.Context, action Action, tenantID uuid.UUID) (ActingContext, error) {
	p := PrincipalFromContext(ctx)
	err := Authorize(p, action, tenantID)
	if err != nil {
		return ActingContext{}, err
	}

	return p.ActingContext(), nil
}
