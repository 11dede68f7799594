package portal_test

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db/testdb"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/errorz/testerr"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/portal"
	"github.com/willemschots/volunteerhub/internal/signup"
	"github.com/willemschots/volunteerhub/internal/store"
)

func Test_Service_RequestAccess(t *testing.T) {
	t.Run("ok, member receives portal link", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")

		err := st.svc.RequestAccess(context.Background(), portal.AccessRequest{
			TenantSlug: "food-bank",
			Email:      "alice@example.com",
		})
		if err != nil {
			t.Fatalf("failed to request access: %v", err)
		}

		st.svc.Wait()
		st.errs.assertNoError(t)

		e := st.emailer.last(t)
		if e.template != portal.TemplateAccess || e.recipient != "alice@example.com" {
			t.Fatalf("unexpected email: %+v", e)
		}

		data := e.data.(portal.AccessEmail)
		if data.TenantName != "Food Bank" || !strings.HasPrefix(data.URL, "https://vh.example.com/portal/") {
			t.Fatalf("unexpected email data: %+v", data)
		}

		st.assertTokenCount(1)
	})

	unknown := map[string]portal.AccessRequest{
		"ok, unknown email":  {TenantSlug: "food-bank", Email: "mallory@example.com"},
		"ok, unknown tenant": {TenantSlug: "other", Email: "alice@example.com"},
	}

	for name, req := range unknown {
		t.Run(name, func(t *testing.T) {
			st := newServiceTest(t)
			st.addMembers("alice@example.com")
			sent := len(st.emailer.emails)

			err := st.svc.RequestAccess(context.Background(), req)
			if err != nil {
				t.Fatalf("expected success shaped result, got %v", err)
			}

			st.svc.Wait()
			st.errs.assertErrorIs(t, errorz.ErrNotFound)

			if len(st.emailer.emails) != sent {
				t.Fatalf("expected no email to be sent")
			}

			st.assertTokenCount(0)
		})
	}

	t.Run("fail, email fails and token is revoked", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		st.emailer.failFor = "alice@example.com"

		err := st.svc.RequestAccess(context.Background(), portal.AccessRequest{
			TenantSlug: "food-bank",
			Email:      "alice@example.com",
		})
		if err != nil {
			t.Fatalf("failed to request access: %v", err)
		}

		st.svc.Wait()
		st.errs.assertErrorIs(t, testerr.Err)
		st.assertTokenCount(0)
	})

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 5) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.addMembers("alice@example.com")
			st.store.tracker = &tracker

			err := st.svc.RequestAccess(context.Background(), portal.AccessRequest{
				TenantSlug: "food-bank",
				Email:      "alice@example.com",
			})
			if err != nil {
				t.Fatalf("expected success shaped result, got %v", err)
			}

			st.svc.Wait()
			st.errs.assertErrorIs(t, testerr.Err)
		})
	}
}

func Test_Service_Open_ActsAsTokenHolder(t *testing.T) {
	st := newServiceTest(t)
	st.addMembers("alice@example.com", "bob@example.com")

	v := st.open("bob@example.com")

	want := authz.ActingContext{
		Email:    "bob@example.com",
		TenantID: uuid.NullUUID{UUID: st.tenant.ID, Valid: true},
		Role:     authz.RoleMember,
		Scope:    "token:member_portal_access",
	}
	if v.Actor != want {
		t.Fatalf("got acting context %+v, want %+v", v.Actor, want)
	}

	if v.Member.Email != v.Actor.Email || v.Tenant.ID != v.Actor.TenantID.UUID {
		t.Fatalf("view not scoped to actor: %+v", v)
	}
}

func Test_Service_Open(t *testing.T) {
	t.Run("ok, portal view", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com", "bob@example.com")
		opp := st.createOpportunity(3)

		started := st.newOpportunity(3)
		started.StartsAt = time.Now().Add(time.Minute)
		started.EndsAt = started.StartsAt.Add(time.Hour)
		_, err := st.signups.CreateOpportunity(st.adminCtx(), started)
		if err != nil {
			t.Fatalf("failed to create opportunity: %v", err)
		}
		st.svc.NowFunc = func() time.Time {
			return time.Now().Add(time.Hour)
		}

		p := st.createPoll()

		v := st.open("alice@example.com")

		if v.Tenant.Name != "Food Bank" || v.Member.Email != "alice@example.com" {
			t.Fatalf("unexpected view: %+v", v)
		}

		if len(v.Opportunities) != 1 {
			t.Fatalf("expected only the upcoming opportunity, got %+v", v.Opportunities)
		}

		ov := v.Opportunities[0]
		if ov.Opportunity.ID != opp.ID || ov.SignedUp || !strings.HasPrefix(ov.SignupURL, "https://vh.example.com/signup/") {
			t.Fatalf("unexpected opportunity view: %+v", ov)
		}

		if len(v.Polls) != 1 || v.Polls[0].Poll.ID != p.ID || v.Polls[0].Response != nil {
			t.Fatalf("unexpected polls: %+v", v.Polls)
		}

		if !strings.HasPrefix(v.Polls[0].VoteURL, "https://vh.example.com/vote/") {
			t.Fatalf("unexpected vote url: %s", v.Polls[0].VoteURL)
		}

		if len(v.Roster) != 2 || v.Roster[0].Name != "alice@example.com" || v.Roster[0].Role != authz.RoleMember {
			t.Fatalf("unexpected roster: %+v", v.Roster)
		}

		if v.Hours.Total != 0 || v.Hours.Signups != 0 {
			t.Fatalf("unexpected hours: %+v", v.Hours)
		}
	})

	t.Run("ok, links in view can be used", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		st.createOpportunity(3)
		st.createPoll()

		v := st.open("alice@example.com")

		su, err := st.signups.SignUp(context.Background(), signup.TokenRef{Token: path.Base(v.Opportunities[0].SignupURL)})
		if err != nil {
			t.Fatalf("failed to sign up: %v", err)
		}

		_, err = st.signups.RecordHours(st.adminCtx(), signup.HoursInput{SignupID: su.ID, Hours: 2.5})
		if err != nil {
			t.Fatalf("failed to record hours: %v", err)
		}

		_, err = st.polls.Vote(context.Background(), poll.VoteInput{Token: path.Base(v.Polls[0].VoteURL), Response: "yes"})
		if err != nil {
			t.Fatalf("failed to vote: %v", err)
		}

		v = st.open("alice@example.com")

		if !v.Opportunities[0].SignedUp || v.Opportunities[0].SignupURL != "" {
			t.Fatalf("expected member to be signed up, got %+v", v.Opportunities[0])
		}

		if v.Hours.Total != 2.5 || v.Hours.Signups != 1 {
			t.Fatalf("unexpected hours: %+v", v.Hours)
		}

		if r := v.Polls[0].Response; r == nil || *r != "yes" {
			t.Fatalf("expected response yes, got %v", r)
		}
	})

	t.Run("ok, closed polls are hidden", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		p := st.createPoll()

		_, err := st.polls.ClosePoll(st.adminCtx(), poll.PollRef{PollID: p.ID})
		if err != nil {
			t.Fatalf("failed to close poll: %v", err)
		}

		v := st.open("alice@example.com")
		if len(v.Polls) != 0 {
			t.Fatalf("expected no polls, got %+v", v.Polls)
		}
	})

	t.Run("fail, token used twice", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		token := st.portalToken("alice@example.com")

		_, err := st.svc.Open(context.Background(), portal.TokenRef{Token: token})
		if err != nil {
			t.Fatalf("failed to open portal: %v", err)
		}

		_, err = st.svc.Open(context.Background(), portal.TokenRef{Token: token})
		if !errors.Is(err, errorz.ErrConsumed) {
			t.Fatalf("expected %v, got %v", errorz.ErrConsumed, err)
		}
	})

	t.Run("fail, expired token", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		token := st.portalToken("alice@example.com")

		st.tokens.NowFunc = func() time.Time {
			return time.Now().Add(2*time.Hour + time.Second)
		}

		_, err := st.svc.Open(context.Background(), portal.TokenRef{Token: token})
		if !errors.Is(err, errorz.ErrExpired) {
			t.Fatalf("expected %v, got %v", errorz.ErrExpired, err)
		}
	})

	t.Run("fail, member removed", func(t *testing.T) {
		st := newServiceTest(t)
		members := st.addMembers("alice@example.com")
		token := st.portalToken("alice@example.com")

		err := st.orgSvc.RemoveMember(st.adminCtx(), org.MemberRef{MemberID: members[0].ID})
		if err != nil {
			t.Fatalf("failed to remove member: %v", err)
		}

		_, err = st.svc.Open(context.Background(), portal.TokenRef{Token: token})
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v", errorz.ErrNotFound, err)
		}
	})

	t.Run("fail, token of other purpose", func(t *testing.T) {
		st := newServiceTest(t)
		st.addMembers("alice@example.com")
		st.createPoll()

		v := st.open("alice@example.com")

		_, err := st.svc.Open(context.Background(), portal.TokenRef{Token: path.Base(v.Polls[0].VoteURL)})
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v", errorz.ErrNotFound, err)
		}
	})

	for _, tracker := range testerr.NewFailingDeps(testerr.Err, 10) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.addMembers("alice@example.com")
			token := st.portalToken("alice@example.com")
			st.store.tracker = &tracker

			_, err := st.svc.Open(context.Background(), portal.TokenRef{Token: token})
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("expected %v, got %v", testerr.Err, err)
			}
		})
	}
}

type svcTest struct {
	t        *testing.T
	store    *testStore
	rawStore portal.Store
	tokens   *access.Service
	emailer  *testEmailer
	errs     *errList
	orgSvc   *org.Service
	signups  *signup.Service
	polls    *poll.Service
	svc      *portal.Service
	tenant   org.Tenant
}

func newServiceTest(t *testing.T) *svcTest {
	testDB := testdb.RunWhile(t, true)
	s := store.New(testDB)

	tokens := access.NewService(access.DefaultConfig(must(url.Parse("https://vh.example.com"))))
	emailer := &testEmailer{}
	errs := &errList{mutex: &sync.Mutex{}}

	orgSvc, err := org.NewService(s.Org(), tokens, emailer, func(err error) {
		t.Errorf("unexpected async error: %v", err)
	}, org.ServiceConfig{WorkerTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create org service: %v", err)
	}

	test := &svcTest{
		t: t,
		store: &testStore{
			store:   s.Portal(),
			tracker: &testerr.FailingDep{CallIndex: -1, FailAtIndex: -2}, // never fails.
		},
		rawStore: s.Portal(),
		tokens:   tokens,
		emailer:  emailer,
		errs:     errs,
		orgSvc:   orgSvc,
		signups:  signup.NewService(s.Signup(), tokens, emailer),
		polls:    poll.NewService(s.Poll(), tokens, emailer),
	}

	test.svc = portal.NewService(test.store, tokens, emailer, errs.AppendErr, portal.ServiceConfig{
		WorkerTimeout: time.Second,
	})

	test.tenant, err = orgSvc.CreateTenant(authz.ContextWithPrincipal(context.Background(), authz.System{}), org.NewTenant{
		Name: "Food Bank",
		Slug: "food-bank",
	})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	return test
}

func (st *svcTest) adminCtx() context.Context {
	return authz.ContextWithPrincipal(context.Background(), authz.SessionPrincipal{
		MemberID: uuid.New(),
		Email:    "admin@example.com",
		TenantID: uuid.NullUUID{UUID: st.tenant.ID, Valid: true},
		Role:     authz.RoleTenantAdmin,
	})
}

func (st *svcTest) addMembers(addrs ...email.Address) []org.Member {
	members := make([]org.Member, 0, len(addrs))
	for _, addr := range addrs {
		m, err := st.orgSvc.AddMember(st.adminCtx(), org.NewMember{
			TenantID: st.tenant.ID,
			Email:    addr,
			Name:     string(addr),
		})
		if err != nil {
			st.t.Fatalf("failed to add member: %v", err)
		}
		members = append(members, m.Member)
	}
	return members
}

func (st *svcTest) newOpportunity(needed int) signup.NewOpportunity {
	starts := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Hour)
	return signup.NewOpportunity{
		TenantID:         st.tenant.ID,
		Title:            "Sort donations",
		Location:         "Warehouse",
		StartsAt:         starts,
		EndsAt:           starts.Add(3 * time.Hour),
		VolunteersNeeded: needed,
	}
}

func (st *svcTest) createOpportunity(needed int) signup.Opportunity {
	o, err := st.signups.CreateOpportunity(st.adminCtx(), st.newOpportunity(needed))
	if err != nil {
		st.t.Fatalf("failed to create opportunity: %v", err)
	}
	return o
}

func (st *svcTest) createPoll() poll.Poll {
	report, err := st.polls.CreatePoll(st.adminCtx(), poll.NewPoll{
		TenantID: st.tenant.ID,
		Question: "Can you help on Saturday?",
		Kind:     poll.KindYesNo,
	})
	if err != nil {
		st.t.Fatalf("failed to create poll: %v", err)
	}
	return report.Poll
}

// portalToken requests portal access for addr and returns the emailed token.
func (st *svcTest) portalToken(addr email.Address) string {
	st.t.Helper()

	err := st.svc.RequestAccess(context.Background(), portal.AccessRequest{
		TenantSlug: st.tenant.Slug,
		Email:      addr,
	})
	if err != nil {
		st.t.Fatalf("failed to request access: %v", err)
	}

	st.svc.Wait()
	st.errs.assertNoError(st.t)

	data, ok := st.emailer.last(st.t).data.(portal.AccessEmail)
	if !ok {
		st.t.Fatalf("expected portal access email")
	}

	return path.Base(data.URL)
}

func (st *svcTest) open(addr email.Address) portal.View {
	st.t.Helper()

	v, err := st.svc.Open(context.Background(), portal.TokenRef{Token: st.portalToken(addr)})
	if err != nil {
		st.t.Fatalf("failed to open portal: %v", err)
	}
	return v
}

func (st *svcTest) assertTokenCount(want int) {
	st.t.Helper()

	tx, err := st.rawStore.BeginTx(context.Background())
	if err != nil {
		st.t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	tokens, err := tx.FindAccessTokens(&access.TokenFilter{Purposes: []access.Purpose{access.PurposePortal}})
	if err != nil {
		st.t.Fatalf("failed to find tokens: %v", err)
	}

	if len(tokens) != want {
		st.t.Fatalf("expected %d tokens, got %d", want, len(tokens))
	}
}

type errList struct {
	mutex *sync.Mutex
	errs  []error
}

func (e *errList) AppendErr(err error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.errs = append(e.errs, err)
}

func (e *errList) assertNoError(t *testing.T) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) > 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}
}

func (e *errList) assertErrorIs(t *testing.T, err error) {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.errs) != 1 || !errors.Is(e.errs[0], err) {
		t.Fatalf("expected error %v, got %v via errors.Is()", err, e.errs)
	}
}

// testStore wraps a real store but uses a testerr.FailingDep to
// possibly fail on certain method calls.
type testStore struct {
	store   portal.Store
	tracker *testerr.FailingDep
}

func (f *testStore) BeginTx(ctx context.Context) (portal.Tx, error) {
	return testerr.MaybeFail(f.tracker, func() (portal.Tx, error) {
		realTx, err := f.store.BeginTx(ctx)
		return &testTx{
			store: f,
			tx:    realTx,
		}, err
	})
}

type testTx struct {
	store *testStore
	tx    portal.Tx
}

func (tx *testTx) Commit() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Commit()
	})
}

func (tx *testTx) Rollback() error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.Rollback()
	})
}

func (tx *testTx) CreateAccessToken(t *access.Token) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.CreateAccessToken(t)
	})
}

func (tx *testTx) FindAccessTokens(filter *access.TokenFilter) ([]access.Token, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]access.Token, error) {
		return tx.tx.FindAccessTokens(filter)
	})
}

func (tx *testTx) ConsumeAccessToken(id uuid.UUID, at time.Time) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.ConsumeAccessToken(id, at)
	})
}

func (tx *testTx) DeleteAccessToken(id uuid.UUID) error {
	return testerr.MaybeFailErrFunc(tx.store.tracker, func() error {
		return tx.tx.DeleteAccessToken(id)
	})
}

func (tx *testTx) FindTenants(filter *org.TenantFilter) ([]org.Tenant, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]org.Tenant, error) {
		return tx.tx.FindTenants(filter)
	})
}

func (tx *testTx) FindContacts(tenantID uuid.UUID, groupIDs []uuid.UUID) ([]org.Contact, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]org.Contact, error) {
		return tx.tx.FindContacts(tenantID, groupIDs)
	})
}

func (tx *testTx) FindContact(tenantID uuid.UUID, addr email.Address) (org.Contact, error) {
	return testerr.MaybeFail(tx.store.tracker, func() (org.Contact, error) {
		return tx.tx.FindContact(tenantID, addr)
	})
}

func (tx *testTx) FindOpportunities(filter *signup.OpportunityFilter) ([]signup.Opportunity, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]signup.Opportunity, error) {
		return tx.tx.FindOpportunities(filter)
	})
}

func (tx *testTx) FindSignups(filter *signup.SignupFilter) ([]signup.Signup, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]signup.Signup, error) {
		return tx.tx.FindSignups(filter)
	})
}

func (tx *testTx) FindPolls(filter *poll.PollFilter) ([]poll.Poll, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]poll.Poll, error) {
		return tx.tx.FindPolls(filter)
	})
}

func (tx *testTx) FindResponses(filter *poll.ResponseFilter) ([]poll.Response, error) {
	return testerr.MaybeFail(tx.store.tracker, func() ([]poll.Response, error) {
		return tx.tx.FindResponses(filter)
	})
}

type sendEmail struct {
	template  string
	recipient email.Address
	data      any
}

type testEmailer struct {
	mutex   sync.Mutex
	emails  []sendEmail
	failFor email.Address
}

func (e *testEmailer) Send(_ context.Context, template string, to email.Address, data any) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if to == e.failFor {
		return testerr.Err
	}

	e.emails = append(e.emails, sendEmail{
		template:  template,
		recipient: to,
		data:      data,
	})

	return nil
}

func (e *testEmailer) last(t *testing.T) sendEmail {
	t.Helper()

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.emails) == 0 {
		t.Fatalf("no emails sent")
	}
	return e.emails[len(e.emails)-1]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
