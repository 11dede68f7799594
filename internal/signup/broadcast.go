package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

// TemplateInvitation is the email sent by Broadcast.
const TemplateInvitation = "opportunity-invitation"

// InvitationEmail is the data of the invitation email.
type InvitationEmail struct {
	TenantName string
	Name       string
	Links      []InvitationLink
}

// InvitationLink is a signup link for a single opportunity.
type InvitationLink struct {
	OpportunityID uuid.UUID
	Title         string
	StartsAt      time.Time
	URL           string
}

// NewBroadcast is the input for Broadcast. When GroupIDs is empty all
// members of the tenant are invited.
type NewBroadcast struct {
	TenantID       uuid.UUID   `json:"-" schema:"tenant_id"`
	OpportunityIDs []uuid.UUID `json:"opportunity_ids"`
	GroupIDs       []uuid.UUID `json:"group_ids"`
}

// BroadcastReport summarizes a broadcast. Recipients that are confirmed
// for all opportunities are skipped.
type BroadcastReport struct {
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// Broadcast emails every recipient a signup link for each of the
// opportunities they are not yet confirmed for.
//
// Every recipient is handled separately, a failure for one recipient
// does not affect the others. Tokens of failed emails are revoked.
func (s *Service) Broadcast(ctx context.Context, b NewBroadcast) (BroadcastReport, error) {
	_, err := authz.Require(ctx, authz.ActionManageOpportunities, b.TenantID)
	if err != nil {
		return BroadcastReport{}, err
	}

	if len(b.OpportunityIDs) == 0 {
		return BroadcastReport{}, errorz.InvalidInput{errorz.Keyed{Key: "opportunity_ids", Err: errRequired}}
	}

	var (
		tenantName string
		opps       []Opportunity
		contacts   []org.Contact
		confirmed  = make(map[email.Address]map[uuid.UUID]bool)
	)
	err = s.inTx(ctx, func(tx Tx) error {
		tenants, txErr := tx.FindTenants(&org.TenantFilter{IDs: []uuid.UUID{b.TenantID}})
		if txErr != nil {
			return txErr
		}

		if len(tenants) != 1 {
			return fmt.Errorf("tenant %s: %w", b.TenantID, errorz.ErrNotFound)
		}
		tenantName = tenants[0].Name

		opps, txErr = tx.FindOpportunities(&OpportunityFilter{
			IDs:       b.OpportunityIDs,
			TenantIDs: []uuid.UUID{b.TenantID},
		})
		if txErr != nil {
			return txErr
		}

		txErr = checkBroadcastOpportunities(opps, b.OpportunityIDs, s.NowFunc())
		if txErr != nil {
			return txErr
		}

		contacts, txErr = tx.FindContacts(b.TenantID, b.GroupIDs)
		if txErr != nil {
			return txErr
		}

		signups, txErr := tx.FindSignups(&SignupFilter{
			OpportunityIDs: b.OpportunityIDs,
			Statuses:       []Status{StatusConfirmed},
		})
		if txErr != nil {
			return txErr
		}

		for _, su := range signups {
			if confirmed[su.MemberEmail] == nil {
				confirmed[su.MemberEmail] = make(map[uuid.UUID]bool)
			}
			confirmed[su.MemberEmail][su.OpportunityID] = true
		}

		return nil
	})
	if err != nil {
		return BroadcastReport{}, err
	}

	report := BroadcastReport{Errors: []string{}}
	for _, c := range contacts {
		var todo []Opportunity
		for _, o := range opps {
			if !confirmed[c.Email][o.ID] {
				todo = append(todo, o)
			}
		}

		if len(todo) == 0 {
			report.Skipped++
			continue
		}

		err = s.invite(ctx, tenantName, c, todo)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c.Email, err))
			continue
		}

		report.Sent++
	}

	return report, nil
}

func checkBroadcastOpportunities(opps []Opportunity, ids []uuid.UUID, now time.Time) error {
	found := make(map[uuid.UUID]bool, len(opps))
	for _, o := range opps {
		found[o.ID] = true
	}

	var errs errorz.InvalidInput
	for _, id := range ids {
		if !found[id] {
			errs = append(errs, errorz.Keyed{Key: "opportunity_ids", Err: fmt.Errorf("%s: %w", id, errorz.ErrNotFound)})
		}
	}

	for _, o := range opps {
		if !o.Open(now) {
			errs = append(errs, errorz.Keyed{Key: "opportunity_ids", Err: fmt.Errorf("%s: %w", o.ID, errNotOpen)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// invite issues the signup tokens for a single recipient and emails them.
func (s *Service) invite(ctx context.Context, tenantName string, c org.Contact, opps []Opportunity) error {
	data := InvitationEmail{
		TenantName: tenantName,
		Name:       c.Name,
		Links:      make([]InvitationLink, 0, len(opps)),
	}

	tokenIDs := make([]uuid.UUID, 0, len(opps))
	err := s.inTx(ctx, func(tx Tx) error {
		for _, o := range opps {
			issued, err := s.tokens.Issue(tx, access.Request{
				Purpose:    access.PurposeSignup,
				Subject:    c.Email,
				TenantID:   uuid.NullUUID{UUID: o.TenantID, Valid: true},
				ContextRef: uuid.NullUUID{UUID: o.ID, Valid: true},
				ExpiresAt:  s.signupExpiry(o),
			})
			if err != nil {
				return err
			}

			tokenIDs = append(tokenIDs, issued.Token.ID)
			data.Links = append(data.Links, InvitationLink{
				OpportunityID: o.ID,
				Title:         o.Title,
				StartsAt:      o.StartsAt,
				URL:           issued.URL,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.emailer.Send(ctx, TemplateInvitation, c.Email, data)
	if err == nil {
		return nil
	}

	rErr := s.inTx(ctx, func(tx Tx) error {
		for _, id := range tokenIDs {
			txErr := s.tokens.Revoke(tx, id)
			if txErr != nil {
				return txErr
			}
		}
		return nil
	})

	return errors.Join(err, rErr)
}

// signupExpiry caps the token lifetime at the start of the opportunity.
func (s *Service) signupExpiry(o Opportunity) time.Time {
	def := s.NowFunc().Add(s.tokens.TTL(access.PurposeSignup))
	if o.StartsAt.Before(def) {
		return o.StartsAt
	}
	return def
}
