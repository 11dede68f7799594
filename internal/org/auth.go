package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

var adminRoles = []authz.Role{authz.RoleTenantAdmin, authz.RoleSuperAdmin}

// Credentials are the login details of an admin.
type Credentials struct {
	Email    email.Address `json:"email"`
	Password Password      `json:"password"`
}

// Authenticate checks the credentials and returns the principal of the
// admin profile to log in as. A super admin profile is preferred, otherwise
// the first tenant admin profile by name is used.
//
// Wrong credentials result in errorz.ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (authz.SessionPrincipal, error) {
	var p authz.SessionPrincipal
	err := s.inTx(ctx, func(tx Tx) error {
		creds, err := tx.FindCredentials(&CredentialFilter{
			Emails: []email.Address{c.Email},
		})
		if err != nil {
			return err
		}

		if len(creds) != 1 {
			// Even if no credential is found we compare to a hash to prevent timing differences
			// that could result in enumeration attacks.
			_ = c.Password.Match(s.comparisonHash)
			return errorz.ErrUnauthenticated
		}

		if !c.Password.Match(creds[0].PasswordHash) {
			return errorz.ErrUnauthenticated
		}

		members, err := tx.FindMembers(&MemberFilter{
			Emails: []email.Address{c.Email},
			Roles:  adminRoles,
		})
		if err != nil {
			return err
		}

		m, ok := loginProfile(members, creds[0].ID)
		if !ok {
			return errorz.ErrUnauthenticated
		}

		p = principal(m)
		return nil
	})
	if err != nil {
		return authz.SessionPrincipal{}, err
	}

	return p, nil
}

func loginProfile(members []Member, credentialID uuid.UUID) (Member, bool) {
	var (
		found Member
		ok    bool
	)
	for _, m := range members {
		if !m.CredentialID.Valid || m.CredentialID.UUID != credentialID {
			continue
		}

		if m.Role == authz.RoleSuperAdmin {
			return m, true
		}

		if !ok {
			found, ok = m, true
		}
	}

	return found, ok
}

func principal(m Member) authz.SessionPrincipal {
	return authz.SessionPrincipal{
		MemberID: m.ID,
		Email:    m.Email,
		TenantID: m.TenantID,
		Role:     m.Role,
	}
}

// Principal reloads the principal of a logged in admin. It returns
// errorz.ErrUnauthenticated when the profile no longer exists or lost
// its admin rights.
func (s *Service) Principal(ctx context.Context, memberID uuid.UUID) (authz.SessionPrincipal, error) {
	var p authz.SessionPrincipal
	err := s.inTx(ctx, func(tx Tx) error {
		members, err := tx.FindMembers(&MemberFilter{
			IDs:   []uuid.UUID{memberID},
			Roles: adminRoles,
		})
		if err != nil {
			return err
		}

		if len(members) != 1 || !members[0].CredentialID.Valid {
			return errorz.ErrUnauthenticated
		}

		p = principal(members[0])
		return nil
	})
	if err != nil {
		return authz.SessionPrincipal{}, err
	}

	return p, nil
}

// PasswordResetRequest is the input for RequestPasswordReset.
type PasswordResetRequest struct {
	Email email.Address `json:"email"`
}

// RequestPasswordReset requests a password reset for the admin with the provided email address.
// The main work is done in a separate goroutine and no output is
// returned to indicate if the request was successful.
func (s *Service) RequestPasswordReset(_ context.Context, req PasswordResetRequest) error {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   admins could lead to enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, req.Email)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()

	return nil
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	var reset *pendingEmail
	err := s.inTx(ctx, func(tx Tx) error {
		members, err := tx.FindMembers(&MemberFilter{
			Emails: []email.Address{addr},
			Roles:  adminRoles,
		})
		if err != nil {
			return err
		}

		if len(members) == 0 {
			return fmt.Errorf("password reset for non-admin: %w", errorz.ErrNotFound)
		}

		reset, err = s.issuePasswordToken(tx, members[0], access.PurposePasswordReset)
		return err
	})
	if err != nil {
		return err
	}

	return s.deliver(ctx, reset)
}

// NewPassword is the input for SetPassword.
type NewPassword struct {
	Purpose  access.Purpose `json:"-" schema:"-"`
	Token    string         `json:"-" schema:"token"`
	Password Password       `json:"password" schema:"password"`
}

// SetPassword sets the password of the admin the token was issued to.
// It completes both password setup and password reset, depending on the purpose.
//
// The credential for the email address is created or updated and linked to
// all admin profiles with that address.
func (s *Service) SetPassword(ctx context.Context, np NewPassword) error {
	if np.Purpose != access.PurposePasswordSetup && np.Purpose != access.PurposePasswordReset {
		return fmt.Errorf("purpose %q can't set passwords: %w", np.Purpose, errorz.ErrNotFound)
	}

	if np.Password.IsZero() {
		return errorz.InvalidInput{errorz.Keyed{Key: "password", Err: ErrInvalidPassword}}
	}

	hash, err := np.Password.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		tok, err := s.tokens.Validate(tx, np.Token, np.Purpose)
		if err != nil {
			return err
		}

		members, err := tx.FindMembers(&MemberFilter{
			Emails: []email.Address{tok.Subject},
			Roles:  adminRoles,
		})
		if err != nil {
			return err
		}

		if len(members) == 0 {
			return fmt.Errorf("no admin profile for token: %w", errorz.ErrNotFound)
		}

		now := s.NowFunc()
		creds, err := tx.FindCredentials(&CredentialFilter{
			Emails: []email.Address{tok.Subject},
		})
		if err != nil {
			return err
		}

		var cred Credential
		if len(creds) > 0 {
			cred = creds[0]
			cred.PasswordHash = hash
			cred.UpdatedAt = now
			err = tx.UpdateCredential(&cred)
		} else {
			cred = Credential{
				ID:           uuid.New(),
				Email:        tok.Subject,
				PasswordHash: hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			err = tx.CreateCredential(&cred)
		}
		if err != nil {
			return err
		}

		for _, m := range members {
			if m.CredentialID.Valid && m.CredentialID.UUID == cred.ID {
				continue
			}

			m.CredentialID = uuid.NullUUID{UUID: cred.ID, Valid: true}
			m.UpdatedAt = now
			err = tx.UpdateMember(&m)
			if err != nil {
				return err
			}
		}

		return s.tokens.Consume(tx, tok)
	})
}

// NewSuperAdmin is the input for CreateSuperAdmin.
type NewSuperAdmin struct {
	Email email.Address
	Name  string
}

// CreateSuperAdmin creates a super admin profile and returns it together
// with a password setup link. The link is not emailed.
func (s *Service) CreateSuperAdmin(ctx context.Context, n NewSuperAdmin) (Member, string, error) {
	_, err := authz.Require(ctx, authz.ActionManageTenants, uuid.Nil)
	if err != nil {
		return Member{}, "", err
	}

	if n.Email == "" {
		return Member{}, "", errorz.InvalidInput{errorz.Keyed{Key: "email", Err: errRequired}}
	}

	now := s.NowFunc()
	m := Member{
		ID:        uuid.New(),
		Email:     n.Email,
		Name:      n.Name,
		Role:      authz.RoleSuperAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var link string
	err = s.inTx(ctx, func(tx Tx) error {
		txErr := tx.CreateMember(&m)
		if txErr != nil {
			return txErr
		}

		issued, txErr := s.tokens.Issue(tx, access.Request{
			Purpose: access.PurposePasswordSetup,
			Subject: m.Email,
		})
		if txErr != nil {
			return txErr
		}

		link = issued.URL
		return nil
	})
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return Member{}, "", fmt.Errorf("super admin %s exists: %w", n.Email, errorz.ErrConflict)
		}
		return Member{}, "", err
	}

	return m, link, nil
}
