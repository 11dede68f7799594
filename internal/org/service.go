package org

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/krypto"
)

// Email templates sent by this package.
const (
	TemplatePasswordSetup = "admin-password-setup"
	TemplatePasswordReset = "admin-password-reset"
)

// defaultTenantName is used in emails to admins without a tenant.
const defaultTenantName = "volunteerhub"

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take befor they are cancelled.
	WorkerTimeout time.Duration
}

// PasswordEmail is the data of the password setup and reset emails.
type PasswordEmail struct {
	TenantName string
	Name       string
	URL        string
}

// Service manages tenants, members, groups and admin credentials.
type Service struct {
	store      Store
	tokens     *access.Service
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no credential was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, tokens *access.Service, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		tokens:         tokens,
		emailer:        emailer,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// NewTenant is the input for CreateTenant.
type NewTenant struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (n NewTenant) validate() error {
	var errs errorz.InvalidInput
	if n.Name == "" {
		errs = append(errs, errorz.Keyed{Key: "name", Err: errRequired})
	}
	if !validSlug(n.Slug) {
		errs = append(errs, errorz.Keyed{Key: "slug", Err: errInvalidSlug})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateTenant creates a new tenant. Only super admins can create tenants.
func (s *Service) CreateTenant(ctx context.Context, n NewTenant) (Tenant, error) {
	_, err := authz.Require(ctx, authz.ActionManageTenants, uuid.Nil)
	if err != nil {
		return Tenant{}, err
	}

	err = n.validate()
	if err != nil {
		return Tenant{}, err
	}

	tenant := Tenant{
		ID:        uuid.New(),
		Name:      n.Name,
		Slug:      n.Slug,
		CreatedAt: s.NowFunc(),
	}

	err = s.inTx(ctx, func(tx Tx) error {
		return tx.CreateTenant(&tenant)
	})
	if err != nil {
		return Tenant{}, err
	}

	return tenant, nil
}

// ListTenants lists all tenants. Only super admins can list tenants.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	_, err := authz.Require(ctx, authz.ActionManageTenants, uuid.Nil)
	if err != nil {
		return nil, err
	}

	var tenants []Tenant
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		tenants, txErr = tx.FindTenants(&TenantFilter{})
		return txErr
	})
	return tenants, err
}

// TenantRef refers to a tenant.
type TenantRef struct {
	TenantID uuid.UUID `json:"-" schema:"tenant_id"`
}

// MemberRef refers to a member.
type MemberRef struct {
	MemberID uuid.UUID `json:"-" schema:"member_id"`
}

// NewMember is the input for AddMember.
type NewMember struct {
	TenantID uuid.UUID     `json:"-" schema:"tenant_id"`
	Email    email.Address `json:"email"`
	Name     string        `json:"name"`
	Phone    string        `json:"phone"`
	Role     authz.Role    `json:"role"`
}

// SavedMember is the result of adding a member or changing its role.
type SavedMember struct {
	Member
	// SetupLinkSent is set when the member became an admin and reports
	// whether its password setup link was emailed. The member is saved
	// either way, a link that wasn't sent can be resent.
	SetupLinkSent *bool `json:"setup_link_sent,omitempty"`
}

// AddMember adds a member to a tenant. New tenant admins receive a
// password setup link.
func (s *Service) AddMember(ctx context.Context, n NewMember) (SavedMember, error) {
	_, err := authz.Require(ctx, authz.ActionManageMembers, n.TenantID)
	if err != nil {
		return SavedMember{}, err
	}

	if n.Role == "" {
		n.Role = authz.RoleMember
	}

	var errs errorz.InvalidInput
	if n.Email == "" {
		errs = append(errs, errorz.Keyed{Key: "email", Err: errRequired})
	}
	if n.Role == authz.RoleSuperAdmin {
		errs = append(errs, errorz.Keyed{Key: "role", Err: errInvalidRole})
	}
	if len(errs) > 0 {
		return SavedMember{}, errs
	}

	now := s.NowFunc()
	m := Member{
		ID:        uuid.New(),
		TenantID:  uuid.NullUUID{UUID: n.TenantID, Valid: true},
		Email:     n.Email,
		Name:      n.Name,
		Phone:     n.Phone,
		Role:      n.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var setup *pendingEmail
	err = s.inTx(ctx, func(tx Tx) error {
		txErr := tx.CreateMember(&m)
		if txErr != nil {
			return txErr
		}

		if m.Role.IsAdmin() {
			setup, txErr = s.issuePasswordToken(tx, m, access.PurposePasswordSetup)
			return txErr
		}

		return nil
	})
	if err != nil {
		return SavedMember{}, err
	}

	return s.saved(ctx, m, setup), nil
}

// ListMembers lists the members of a tenant.
func (s *Service) ListMembers(ctx context.Context, ref TenantRef) ([]Member, error) {
	_, err := authz.Require(ctx, authz.ActionManageMembers, ref.TenantID)
	if err != nil {
		return nil, err
	}

	var members []Member
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		members, txErr = tx.FindMembers(&MemberFilter{
			TenantIDs: []uuid.UUID{ref.TenantID},
		})
		return txErr
	})
	return members, err
}

// MemberUpdate is the input for UpdateMember. Nil fields are left unchanged.
type MemberUpdate struct {
	MemberID uuid.UUID `json:"-" schema:"member_id"`
	Name     *string   `json:"name"`
	Phone    *string   `json:"phone"`
}

// UpdateMember updates the contact details of a member.
func (s *Service) UpdateMember(ctx context.Context, u MemberUpdate) (Member, error) {
	var m Member
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		m, txErr = s.findManagedMember(ctx, tx, u.MemberID)
		if txErr != nil {
			return txErr
		}

		if u.Name != nil {
			m.Name = *u.Name
		}
		if u.Phone != nil {
			m.Phone = *u.Phone
		}
		m.UpdatedAt = s.NowFunc()

		return tx.UpdateMember(&m)
	})
	if err != nil {
		return Member{}, err
	}

	return m, nil
}

// RemoveMember deletes a member profile. Admins can't remove themselves.
func (s *Service) RemoveMember(ctx context.Context, ref MemberRef) error {
	return s.inTx(ctx, func(tx Tx) error {
		m, err := s.findManagedMember(ctx, tx, ref.MemberID)
		if err != nil {
			return err
		}

		ac := authz.PrincipalFromContext(ctx).ActingContext()
		if ac.MemberID.Valid && ac.MemberID.UUID == m.ID {
			return fmt.Errorf("admins can't remove themselves: %w", errorz.ErrConflict)
		}

		return tx.DeleteMember(m.ID)
	})
}

// RoleChange is the input for ChangeRole.
type RoleChange struct {
	MemberID uuid.UUID  `json:"-" schema:"member_id"`
	Role     authz.Role `json:"role"`
}

// ChangeRole changes the role of a member within its tenant.
//
// Promoting a member to tenant admin issues a password setup token and
// emails it. When the email can't be sent the token is revoked, but the
// role change is kept so the setup link can be resent later.
// SetupLinkSent in the result tells which of the two happened.
// Demoting an admin unlinks its credential.
func (s *Service) ChangeRole(ctx context.Context, c RoleChange) (SavedMember, error) {
	if c.Role != authz.RoleMember && c.Role != authz.RoleTenantAdmin {
		return SavedMember{}, errorz.InvalidInput{errorz.Keyed{Key: "role", Err: errInvalidRole}}
	}

	var (
		m     Member
		setup *pendingEmail
	)
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		m, txErr = s.findManagedMember(ctx, tx, c.MemberID)
		if txErr != nil {
			return txErr
		}

		if m.Role == c.Role {
			return nil
		}

		if m.Role == authz.RoleSuperAdmin {
			return fmt.Errorf("role of super admin can't change: %w", errorz.ErrForbidden)
		}

		m.Role = c.Role
		m.UpdatedAt = s.NowFunc()
		if !m.Role.IsAdmin() {
			m.CredentialID = uuid.NullUUID{}
		}

		txErr = tx.UpdateMember(&m)
		if txErr != nil {
			return txErr
		}

		if m.Role.IsAdmin() {
			setup, txErr = s.issuePasswordToken(tx, m, access.PurposePasswordSetup)
			return txErr
		}

		return nil
	})
	if err != nil {
		return SavedMember{}, err
	}

	return s.saved(ctx, m, setup), nil
}

// ResendSetupLink emails a new password setup link to an admin.
func (s *Service) ResendSetupLink(ctx context.Context, ref MemberRef) error {
	var setup *pendingEmail
	err := s.inTx(ctx, func(tx Tx) error {
		m, err := s.findManagedMember(ctx, tx, ref.MemberID)
		if err != nil {
			return err
		}

		if !m.Role.IsAdmin() {
			return fmt.Errorf("member %s is not an admin: %w", m.ID, errorz.ErrConflict)
		}

		setup, err = s.issuePasswordToken(tx, m, access.PurposePasswordSetup)
		return err
	})
	if err != nil {
		return err
	}

	return s.deliver(ctx, setup)
}

// NewGroup is the input for CreateGroup.
type NewGroup struct {
	TenantID  uuid.UUID   `json:"-" schema:"tenant_id"`
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// CreateGroup creates a group in a tenant.
func (s *Service) CreateGroup(ctx context.Context, n NewGroup) (Group, error) {
	_, err := authz.Require(ctx, authz.ActionManageGroups, n.TenantID)
	if err != nil {
		return Group{}, err
	}

	if n.Name == "" {
		return Group{}, errorz.InvalidInput{errorz.Keyed{Key: "name", Err: errRequired}}
	}

	g := Group{
		ID:        uuid.New(),
		TenantID:  n.TenantID,
		Name:      n.Name,
		CreatedAt: s.NowFunc(),
	}

	err = s.inTx(ctx, func(tx Tx) error {
		txErr := tx.CreateGroup(&g)
		if txErr != nil {
			return txErr
		}

		return s.setGroupMembers(tx, &g, n.MemberIDs)
	})
	if err != nil {
		return Group{}, err
	}

	return g, nil
}

// ListGroups lists the groups of a tenant.
func (s *Service) ListGroups(ctx context.Context, ref TenantRef) ([]Group, error) {
	_, err := authz.Require(ctx, authz.ActionManageGroups, ref.TenantID)
	if err != nil {
		return nil, err
	}

	var groups []Group
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		groups, txErr = tx.FindGroups(&GroupFilter{
			TenantIDs: []uuid.UUID{ref.TenantID},
		})
		return txErr
	})
	return groups, err
}

// GroupMembers is the input for SetGroupMembers.
type GroupMembers struct {
	GroupID   uuid.UUID   `json:"-" schema:"group_id"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// SetGroupMembers replaces the members of a group.
func (s *Service) SetGroupMembers(ctx context.Context, gm GroupMembers) (Group, error) {
	var g Group
	err := s.inTx(ctx, func(tx Tx) error {
		groups, err := tx.FindGroups(&GroupFilter{IDs: []uuid.UUID{gm.GroupID}})
		if err != nil {
			return err
		}

		if len(groups) != 1 {
			return fmt.Errorf("group %s: %w", gm.GroupID, errorz.ErrNotFound)
		}

		g = groups[0]
		_, err = authz.Require(ctx, authz.ActionManageGroups, g.TenantID)
		if err != nil {
			return err
		}

		return s.setGroupMembers(tx, &g, gm.MemberIDs)
	})
	if err != nil {
		return Group{}, err
	}

	return g, nil
}

func (s *Service) setGroupMembers(tx Tx, g *Group, memberIDs []uuid.UUID) error {
	ids := make([]uuid.UUID, 0, len(memberIDs))
	seen := make(map[uuid.UUID]bool, len(memberIDs))
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	err := tx.SetGroupMembers(g.ID, ids)
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return errorz.InvalidInput{errorz.Keyed{Key: "member_ids", Err: err}}
		}
		return err
	}

	g.MemberIDs = ids
	return nil
}

// findManagedMember finds a member and checks the actor in ctx may manage it.
func (s *Service) findManagedMember(ctx context.Context, tx Tx, id uuid.UUID) (Member, error) {
	if authz.PrincipalFromContext(ctx) == nil {
		return Member{}, errorz.ErrUnauthenticated
	}

	members, err := tx.FindMembers(&MemberFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return Member{}, err
	}

	if len(members) != 1 {
		return Member{}, fmt.Errorf("member %s: %w", id, errorz.ErrNotFound)
	}

	m := members[0]
	_, err = authz.Require(ctx, authz.ActionManageMembers, m.TenantID.UUID)
	if err != nil {
		return Member{}, err
	}

	return m, nil
}

// pendingEmail is an email with an access token that still needs to be sent.
type pendingEmail struct {
	template string
	to       email.Address
	data     any
	tokenIDs []uuid.UUID
}

// issuePasswordToken creates a password setup or reset token for m.
func (s *Service) issuePasswordToken(tx Tx, m Member, purpose access.Purpose) (*pendingEmail, error) {
	issued, err := s.tokens.Issue(tx, access.Request{
		Purpose:  purpose,
		Subject:  m.Email,
		TenantID: m.TenantID,
	})
	if err != nil {
		return nil, err
	}

	tenantName, err := s.tenantName(tx, m.TenantID)
	if err != nil {
		return nil, err
	}

	template := TemplatePasswordSetup
	if purpose == access.PurposePasswordReset {
		template = TemplatePasswordReset
	}

	return &pendingEmail{
		template: template,
		to:       m.Email,
		data: PasswordEmail{
			TenantName: tenantName,
			Name:       m.Name,
			URL:        issued.URL,
		},
		tokenIDs: []uuid.UUID{issued.Token.ID},
	}, nil
}

func (s *Service) tenantName(tx Tx, id uuid.NullUUID) (string, error) {
	if !id.Valid {
		return defaultTenantName, nil
	}

	tenants, err := tx.FindTenants(&TenantFilter{IDs: []uuid.UUID{id.UUID}})
	if err != nil {
		return "", err
	}

	if len(tenants) != 1 {
		return "", fmt.Errorf("tenant %s: %w", id.UUID, errorz.ErrNotFound)
	}

	return tenants[0].Name, nil
}

// saved delivers the setup email of a saved member, if there is one. A
// failed delivery is reported to the error handler and in the result.
func (s *Service) saved(ctx context.Context, m Member, setup *pendingEmail) SavedMember {
	out := SavedMember{Member: m}
	if setup == nil {
		return out
	}

	err := s.deliver(ctx, setup)
	if err != nil {
		s.errHandler(fmt.Errorf("failed to send setup link to member %s: %w", m.ID, err))
	}

	sent := err == nil
	out.SetupLinkSent = &sent
	return out
}

// deliver sends a pending email. The tokens in it are revoked when sending fails.
func (s *Service) deliver(ctx context.Context, p *pendingEmail) error {
	if p == nil {
		return nil
	}

	err := s.emailer.Send(ctx, p.template, p.to, p.data)
	if err == nil {
		return nil
	}

	rErr := s.inTx(ctx, func(tx Tx) error {
		for _, id := range p.tokenIDs {
			txErr := s.tokens.Revoke(tx, id)
			if txErr != nil {
				return txErr
			}
		}
		return nil
	})

	return errors.Join(err, rErr)
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	return db.InTx(ctx, s.store.BeginTx, f)
}
