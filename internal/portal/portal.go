package portal

import (
	"context"

	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/signup"
)

// Store provides access to everything shown in the member portal.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	access.Tx
	org.Directory

	FindOpportunities(filter *signup.OpportunityFilter) ([]signup.Opportunity, error)
	FindSignups(filter *signup.SignupFilter) ([]signup.Signup, error)
	FindPolls(filter *poll.PollFilter) ([]poll.Poll, error)
	FindResponses(filter *poll.ResponseFilter) ([]poll.Response, error)
}
