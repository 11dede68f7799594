package poll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

// TokenRef refers to a poll token.
type TokenRef struct {
	Token string `json:"-" schema:"token"`
}

// Ballot is what a member sees when opening a vote link.
type Ballot struct {
	Actor    authz.ActingContext `json:"-"`
	Poll     Poll                `json:"poll"`
	Response *string             `json:"response"`
	Open     bool                `json:"open"`
}

// Ballot shows the poll a token was issued for and the current answer of the member.
func (s *Service) Ballot(ctx context.Context, ref TokenRef) (Ballot, error) {
	var b Ballot
	err := s.inTx(ctx, func(tx Tx) error {
		v, err := s.votable(tx, ref.Token)
		if err != nil {
			return err
		}

		b = Ballot{
			Actor:    v.actor,
			Poll:     v.poll,
			Response: v.response.Value,
			Open:     v.poll.Open(s.NowFunc()),
		}
		return nil
	})
	if err != nil {
		return Ballot{}, err
	}

	return b, nil
}

// VoteInput is the input for Vote.
type VoteInput struct {
	Token    string `json:"-" schema:"token"`
	Response string `json:"response" schema:"response"`
}

// Vote records the answer of the member a token was issued to. Poll tokens
// can be used until the poll closes, so members can change their answer.
//
// Only the first answer counts towards the response count. Submitting the
// same answer again changes nothing.
func (s *Service) Vote(ctx context.Context, in VoteInput) (Response, error) {
	var r Response
	err := s.inTx(ctx, func(tx Tx) error {
		v, err := s.votable(tx, in.Token)
		if err != nil {
			return err
		}
		p := v.poll
		r = v.response

		now := s.NowFunc()
		if !p.Open(now) {
			return ErrClosed
		}

		if !p.Accepts(in.Response) {
			return errorz.InvalidInput{errorz.Keyed{Key: "response", Err: errUnknownOption}}
		}

		switch {
		case r.RespondedAt == nil:
			err = tx.RecordFirstResponse(r.ID, in.Response, now)
			if err != nil {
				return err
			}

			err = tx.IncrementResponseCount(p.ID, now)
			if err != nil {
				return err
			}

			r.RespondedAt = &now
		case r.Value != nil && *r.Value == in.Response:
			return nil
		default:
			err = tx.UpdateResponse(r.ID, in.Response, now)
			if err != nil {
				return err
			}

			r.UpdatedAt = &now
		}

		value := in.Response
		r.Value = &value

		return s.tokens.Consume(tx, v.token)
	})
	if err != nil {
		return Response{}, err
	}

	return r, nil
}

// ballotToken is a validated poll token with the poll and response it refers to.
type ballotToken struct {
	token    access.Token
	actor    authz.ActingContext
	poll     Poll
	response Response
}

// votable validates a poll token and loads its poll and the response of the member.
func (s *Service) votable(tx Tx, raw string) (ballotToken, error) {
	tok, err := s.tokens.Validate(tx, raw, access.PurposePoll)
	if err != nil {
		return ballotToken{}, err
	}

	ac := tok.Capability().ActingContext()
	tenantID, pollID, ok := ac.Bound()
	if !ok {
		return ballotToken{}, fmt.Errorf("poll token without poll: %w", errorz.ErrNotFound)
	}

	p, err := findPoll(tx, pollID)
	if err != nil {
		return ballotToken{}, err
	}

	if p.TenantID != tenantID {
		return ballotToken{}, fmt.Errorf("poll of other tenant: %w", errorz.ErrNotFound)
	}

	responses, err := tx.FindResponses(&ResponseFilter{
		PollIDs:      []uuid.UUID{p.ID},
		MemberEmails: []email.Address{ac.Email},
	})
	if err != nil {
		return ballotToken{}, err
	}

	if len(responses) != 1 {
		return ballotToken{}, fmt.Errorf("%s was not asked: %w", ac.Email, errorz.ErrNotFound)
	}

	return ballotToken{
		token:    tok,
		actor:    ac,
		poll:     p,
		response: responses[0],
	}, nil
}
