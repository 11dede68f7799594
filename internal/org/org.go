package org

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/krypto"
)

// Tenant is an organization using volunteerhub.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is the profile of a person within a tenant. Super admins are
// the only members without a tenant.
type Member struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.NullUUID `json:"tenant_id"`
	Email        email.Address `json:"email"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	Role         authz.Role    `json:"role"`
	CredentialID uuid.NullUUID `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Credential holds the password of an admin. One credential is shared
// by all admin profiles with the same email address.
type Credential struct {
	ID           uuid.UUID
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Group is a named set of members within a tenant.
type Group struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// Contact is the part of a member needed to reach them.
type Contact struct {
	MemberID uuid.UUID     `json:"member_id"`
	Email    email.Address `json:"email"`
	Name     string        `json:"name"`
	Phone    string        `json:"phone"`
	Role     authz.Role    `json:"role"`
}

// TenantFilter is used to filter tenants.
// Returned tenants must match all the provided fields.
// If a field is empty or nil, it's ignored.
type TenantFilter struct {
	IDs   []uuid.UUID
	Slugs []string
}

// MemberFilter is used to filter members.
// Returned members must match all the provided fields.
// If a field is empty or nil, it's ignored.
type MemberFilter struct {
	IDs       []uuid.UUID
	TenantIDs []uuid.UUID
	Emails    []email.Address
	Roles     []authz.Role
}

// CredentialFilter is used to filter credentials.
type CredentialFilter struct {
	IDs    []uuid.UUID
	Emails []email.Address
}

// GroupFilter is used to filter groups.
type GroupFilter struct {
	IDs       []uuid.UUID
	TenantIDs []uuid.UUID
}

// Directory resolves tenants and the people in them. It is shared by
// every part of the system that needs to email members.
type Directory interface {
	FindTenants(filter *TenantFilter) ([]Tenant, error)
	// FindContacts returns the members of a tenant ordered by name. When
	// groupIDs is not empty only members of those groups are returned,
	// each member at most once.
	FindContacts(tenantID uuid.UUID, groupIDs []uuid.UUID) ([]Contact, error)
	// FindContact returns errorz.ErrNotFound if no member of the tenant has the address.
	FindContact(tenantID uuid.UUID, addr email.Address) (Contact, error)
}

// Store provides access to the organization store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	access.Tx
	Directory

	CreateTenant(t *Tenant) error

	CreateMember(m *Member) error
	UpdateMember(m *Member) error
	DeleteMember(id uuid.UUID) error
	FindMembers(filter *MemberFilter) ([]Member, error)

	CreateCredential(c *Credential) error
	UpdateCredential(c *Credential) error
	FindCredentials(filter *CredentialFilter) ([]Credential, error)

	CreateGroup(g *Group) error
	FindGroups(filter *GroupFilter) ([]Group, error)
	SetGroupMembers(groupID uuid.UUID, memberIDs []uuid.UUID) error
}
