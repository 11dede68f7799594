package signup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

// TokenRef refers to a signup token.
type TokenRef struct {
	Token string `json:"-" schema:"token"`
}

// Preview is what a member sees before confirming a signup.
type Preview struct {
	Actor       authz.ActingContext `json:"-"`
	Opportunity Opportunity         `json:"opportunity"`
	Name        string              `json:"name"`
	SignedUp    bool                `json:"signed_up"`
	Open        bool                `json:"open"`
}

// Preview shows the opportunity a signup token was issued for.
// It does not consume the token.
func (s *Service) Preview(ctx context.Context, ref TokenRef) (Preview, error) {
	var p Preview
	err := s.inTx(ctx, func(tx Tx) error {
		cl, err := s.claimable(tx, ref.Token)
		if err != nil {
			return err
		}

		existing, err := findSignup(tx, cl.opportunity.ID, cl.actor.Email)
		if err != nil {
			return err
		}

		p = Preview{
			Actor:       cl.actor,
			Opportunity: cl.opportunity,
			Name:        cl.contact.Name,
			SignedUp:    existing != nil && existing.Status == StatusConfirmed,
			Open:        cl.opportunity.Open(s.NowFunc()) && !cl.opportunity.Full(),
		}
		return nil
	})
	if err != nil {
		return Preview{}, err
	}

	return p, nil
}

// SignUp signs the member a token was issued to up for its opportunity
// and consumes the token.
//
// Capacity is checked by a conditional write, so concurrent signups never
// exceed the number of volunteers needed. A member that is already
// confirmed keeps their seat.
func (s *Service) SignUp(ctx context.Context, ref TokenRef) (Signup, error) {
	var su Signup
	err := s.inTx(ctx, func(tx Tx) error {
		cl, err := s.claimable(tx, ref.Token)
		if err != nil {
			return err
		}
		o, c := cl.opportunity, cl.contact

		now := s.NowFunc()
		if !o.Open(now) {
			return ErrStarted
		}

		existing, err := findSignup(tx, o.ID, cl.actor.Email)
		if err != nil {
			return err
		}

		if existing == nil || existing.Status != StatusConfirmed {
			err = tx.ReserveSeat(o.ID, now)
			if errors.Is(err, errorz.ErrConflict) {
				return ErrFull
			}
			if err != nil {
				return err
			}
		}

		if existing == nil {
			su = Signup{
				ID:            uuid.New(),
				TenantID:      o.TenantID,
				OpportunityID: o.ID,
				MemberEmail:   c.Email,
				MemberName:    c.Name,
				Status:        StatusConfirmed,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			err = tx.CreateSignup(&su)
		} else {
			su = *existing
			su.MemberName = c.Name
			su.Status = StatusConfirmed
			su.UpdatedAt = now
			err = tx.UpdateSignup(&su)
		}
		if err != nil {
			return err
		}

		return s.tokens.Consume(tx, cl.token)
	})
	if err != nil {
		return Signup{}, err
	}

	return su, nil
}

// claim is a validated signup token with everything it refers to.
type claim struct {
	token       access.Token
	actor       authz.ActingContext
	opportunity Opportunity
	contact     org.Contact
}

// claimable validates a signup token and loads its opportunity and member.
func (s *Service) claimable(tx Tx, raw string) (claim, error) {
	tok, err := s.tokens.Validate(tx, raw, access.PurposeSignup)
	if err != nil {
		return claim{}, err
	}

	ac := tok.Capability().ActingContext()
	tenantID, opportunityID, ok := ac.Bound()
	if !ok {
		return claim{}, fmt.Errorf("signup token without opportunity: %w", errorz.ErrNotFound)
	}

	o, err := findOpportunity(tx, opportunityID)
	if err != nil {
		return claim{}, err
	}

	if o.TenantID != tenantID {
		return claim{}, fmt.Errorf("opportunity of other tenant: %w", errorz.ErrNotFound)
	}

	// Members removed after the token was issued can't sign up.
	c, err := tx.FindContact(tenantID, ac.Email)
	if err != nil {
		return claim{}, err
	}

	return claim{
		token:       tok,
		actor:       ac,
		opportunity: o,
		contact:     c,
	}, nil
}

func findSignup(tx Tx, opportunityID uuid.UUID, addr email.Address) (*Signup, error) {
	signups, err := tx.FindSignups(&SignupFilter{
		OpportunityIDs: []uuid.UUID{opportunityID},
		MemberEmails:   []email.Address{addr},
	})
	if err != nil {
		return nil, err
	}

	if len(signups) == 0 {
		return nil, nil
	}

	return &signups[0], nil
}
