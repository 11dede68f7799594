package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

var (
	tenantA = uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	tenantB = uuid.MustParse("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")
)

func admin(tenant uuid.UUID) authz.SessionPrincipal {
	return authz.SessionPrincipal{
		MemberID: uuid.New(),
		Email:    "admin@example.com",
		TenantID: uuid.NullUUID{UUID: tenant, Valid: true},
		Role:     authz.RoleTenantAdmin,
	}
}

func Test_Authorize(t *testing.T) {
	super := authz.SessionPrincipal{
		MemberID: uuid.New(),
		Email:    "root@example.com",
		Role:     authz.RoleSuperAdmin,
	}

	token := authz.TokenCapability{
		Email:    "member@example.com",
		TenantID: uuid.NullUUID{UUID: tenantA, Valid: true},
		Purpose:  "member_portal_access",
	}

	tests := map[string]struct {
		principal authz.Principal
		action    authz.Action
		tenant    uuid.UUID
		wantErr   error
	}{
		"ok, super admin on any tenant": {
			principal: super,
			action:    authz.ActionManageMembers,
			tenant:    tenantB,
		},
		"ok, super admin manages tenants": {
			principal: super,
			action:    authz.ActionManageTenants,
			tenant:    uuid.Nil,
		},
		"ok, system acts as super admin": {
			principal: authz.System{},
			action:    authz.ActionManageTenants,
			tenant:    uuid.Nil,
		},
		"ok, tenant admin on own tenant": {
			principal: admin(tenantA),
			action:    authz.ActionManagePolls,
			tenant:    tenantA,
		},
		"fail, tenant admin on other tenant": {
			principal: admin(tenantA),
			action:    authz.ActionManagePolls,
			tenant:    tenantB,
			wantErr:   errorz.ErrForbidden,
		},
		"fail, tenant admin manages tenants": {
			principal: admin(tenantA),
			action:    authz.ActionManageTenants,
			tenant:    tenantA,
			wantErr:   errorz.ErrForbidden,
		},
		"fail, token capability never admin": {
			principal: token,
			action:    authz.ActionManageOpportunities,
			tenant:    tenantA,
			wantErr:   errorz.ErrForbidden,
		},
		"fail, member session": {
			principal: authz.SessionPrincipal{
				MemberID: uuid.New(),
				TenantID: uuid.NullUUID{UUID: tenantA, Valid: true},
				Role:     authz.RoleMember,
			},
			action:  authz.ActionManageGroups,
			tenant:  tenantA,
			wantErr: errorz.ErrForbidden,
		},
		"fail, no principal": {
			principal: nil,
			action:    authz.ActionManageGroups,
			tenant:    tenantA,
			wantErr:   errorz.ErrUnauthenticated,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := authz.Authorize(tc.principal, tc.action, tc.tenant)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v (via errors.Is)", tc.wantErr, err)
			}
		})
	}
}

func Test_ActingContext(t *testing.T) {
	t.Run("ok, token capability", func(t *testing.T) {
		ac := authz.TokenCapability{
			Email:    "member@example.com",
			TenantID: uuid.NullUUID{UUID: tenantA, Valid: true},
			Purpose:  "poll_response",
		}.ActingContext()

		if ac.Role != authz.RoleMember || ac.Scope != "token:poll_response" || ac.MemberID.Valid {
			t.Fatalf("unexpected acting context %+v", ac)
		}

		if _, _, ok := ac.Bound(); ok {
			t.Fatalf("capability without ref should not be bound")
		}
	})

	t.Run("ok, bound token capability", func(t *testing.T) {
		pollID := uuid.New()
		ac := authz.TokenCapability{
			Email:      "member@example.com",
			TenantID:   uuid.NullUUID{UUID: tenantA, Valid: true},
			Purpose:    "poll_response",
			ContextRef: uuid.NullUUID{UUID: pollID, Valid: true},
		}.ActingContext()

		tenantID, ref, ok := ac.Bound()
		if !ok || tenantID != tenantA || ref != pollID {
			t.Fatalf("unexpected binding %v %v %v", tenantID, ref, ok)
		}
	})

	t.Run("ok, session principal", func(t *testing.T) {
		p := admin(tenantA)
		ac := p.ActingContext()

		if ac.Role != authz.RoleTenantAdmin || ac.Scope != "session" || ac.MemberID.UUID != p.MemberID {
			t.Fatalf("unexpected acting context %+v", ac)
		}
	})
}

func Test_Require(t *testing.T) {
	t.Run("ok, principal in context", func(t *testing.T) {
		p := admin(tenantA)
		ctx := authz.ContextWithPrincipal(context.Background(), p)

		ac, err := authz.Require(ctx, authz.ActionManageMembers, tenantA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ac.Email != p.Email {
			t.Errorf("got %v, want %v", ac.Email, p.Email)
		}
	})

	t.Run("fail, empty context", func(t *testing.T) {
		_, err := authz.Require(context.Background(), authz.ActionManageMembers, tenantA)
		if !errors.Is(err, errorz.ErrUnauthenticated) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrUnauthenticated, err)
		}
	})
}

func Test_Role(t *testing.T) {
	tests := map[authz.Role]struct {
		valid bool
		admin bool
	}{
		authz.RoleMember:      {valid: true},
		authz.RoleTenantAdmin: {valid: true, admin: true},
		authz.RoleSuperAdmin:  {valid: true, admin: true},
		"owner":               {},
	}

	for role, tc := range tests {
		t.Run(string(role), func(t *testing.T) {
			if role.Valid() != tc.valid || role.IsAdmin() != tc.admin {
				t.Fatalf("got valid=%v admin=%v", role.Valid(), role.IsAdmin())
			}

			var r authz.Role
			err := r.UnmarshalText([]byte(role))
			if tc.valid != (err == nil) {
				t.Fatalf("UnmarshalText error %v for valid=%v", err, tc.valid)
			}
		})
	}
}
