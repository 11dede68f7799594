package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

// CreateTenant stores a new tenant.
func (t *Tx) CreateTenant(tenant *org.Tenant) error {
	if tenant.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO tenants (id, name, slug, created_at) VALUES (`)
	q.Params(tenant.ID, tenant.Name, tenant.Slug, utc(tenant.CreatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindTenants queries for tenants based on the provided filter.
func (t *Tx) FindTenants(f *org.TenantFilter) ([]org.Tenant, error) {
	var q db.Query
	q.Unsafe(`SELECT id, name, slug, created_at FROM tenants WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "slug", f.Slugs)

	q.Unsafe(` ORDER BY name ASC, id ASC`)

	return query(t, &q, func(rows *sql.Rows) (org.Tenant, error) {
		var tenant org.Tenant
		err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.CreatedAt)
		return tenant, err
	})
}

// CreateMember stores a new member profile.
func (t *Tx) CreateMember(m *org.Member) error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO members (id, tenant_id, email, name, phone, role, credential_id, created_at, updated_at) VALUES (`)
	q.Params(m.ID, m.TenantID, m.Email, m.Name, m.Phone, m.Role, m.CredentialID, utc(m.CreatedAt), utc(m.UpdatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// UpdateMember updates a member profile.
// It returns errorz.ErrNotFound if no member is found.
func (t *Tx) UpdateMember(m *org.Member) error {
	var q db.Query
	q.Unsafe(`UPDATE members SET `)

	q.Unsafe(`email = `)
	q.Param(m.Email)

	q.Unsafe(`, name = `)
	q.Param(m.Name)

	q.Unsafe(`, phone = `)
	q.Param(m.Phone)

	q.Unsafe(`, role = `)
	q.Param(m.Role)

	q.Unsafe(`, credential_id = `)
	q.Param(m.CredentialID)

	q.Unsafe(`, updated_at = `)
	q.Param(utc(m.UpdatedAt))

	q.Unsafe(` WHERE id = `)
	q.Param(m.ID)

	return t.execOne(&q, "member")
}

// DeleteMember removes a member profile and its group memberships.
func (t *Tx) DeleteMember(id uuid.UUID) error {
	var q db.Query
	q.Unsafe(`DELETE FROM members WHERE id = `)
	q.Param(id)

	return t.execOne(&q, "member")
}

const memberColumns = `id, tenant_id, email, name, phone, role, credential_id, created_at, updated_at`

func scanMember(rows *sql.Rows) (org.Member, error) {
	var m org.Member
	err := rows.Scan(&m.ID, &m.TenantID, &m.Email, &m.Name, &m.Phone, &m.Role, &m.CredentialID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// FindMembers queries for members based on the provided filter.
func (t *Tx) FindMembers(f *org.MemberFilter) ([]org.Member, error) {
	var q db.Query
	q.Unsafe(`SELECT ` + memberColumns + ` FROM members WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)
	db.In(&q, "email", f.Emails)
	db.In(&q, "role", f.Roles)

	q.Unsafe(` ORDER BY name ASC, email ASC`)

	return query(t, &q, scanMember)
}

// CreateCredential stores a new credential.
func (t *Tx) CreateCredential(c *org.Credential) error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO credentials (id, email, password_hash, created_at, updated_at) VALUES (`)
	q.Params(c.ID, c.Email, c.PasswordHash, utc(c.CreatedAt), utc(c.UpdatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// UpdateCredential replaces the password hash of a credential.
// It returns errorz.ErrNotFound if no credential is found.
func (t *Tx) UpdateCredential(c *org.Credential) error {
	var q db.Query
	q.Unsafe(`UPDATE credentials SET password_hash = `)
	q.Param(c.PasswordHash)

	q.Unsafe(`, updated_at = `)
	q.Param(utc(c.UpdatedAt))

	q.Unsafe(` WHERE id = `)
	q.Param(c.ID)

	return t.execOne(&q, "credential")
}

// FindCredentials queries for credentials based on the provided filter.
func (t *Tx) FindCredentials(f *org.CredentialFilter) ([]org.Credential, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, password_hash, created_at, updated_at FROM credentials WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "email", f.Emails)

	q.Unsafe(` ORDER BY email ASC`)

	return query(t, &q, func(rows *sql.Rows) (org.Credential, error) {
		var c org.Credential
		err := rows.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
}

// CreateGroup stores a new group, without members.
func (t *Tx) CreateGroup(g *org.Group) error {
	if g.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO member_groups (id, tenant_id, name, created_at) VALUES (`)
	q.Params(g.ID, g.TenantID, g.Name, utc(g.CreatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindGroups queries for groups based on the provided filter.
// The member ids of every group are included.
func (t *Tx) FindGroups(f *org.GroupFilter) ([]org.Group, error) {
	var q db.Query
	q.Unsafe(`SELECT id, tenant_id, name, created_at FROM member_groups WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)

	q.Unsafe(` ORDER BY name ASC`)

	groups, err := query(t, &q, func(rows *sql.Rows) (org.Group, error) {
		g := org.Group{MemberIDs: []uuid.UUID{}}
		err := rows.Scan(&g.ID, &g.TenantID, &g.Name, &g.CreatedAt)
		return g, err
	})
	if err != nil || len(groups) == 0 {
		return groups, err
	}

	index := make(map[uuid.UUID]int, len(groups))
	ids := make([]uuid.UUID, 0, len(groups))
	for i, g := range groups {
		index[g.ID] = i
		ids = append(ids, g.ID)
	}

	var mq db.Query
	mq.Unsafe(`SELECT gm.group_id, gm.member_id FROM group_memberships gm JOIN members m ON m.id = gm.member_id WHERE 1=1`)
	db.In(&mq, "gm.group_id", ids)
	mq.Unsafe(` ORDER BY m.name ASC, m.email ASC`)

	type link struct{ groupID, memberID uuid.UUID }
	links, err := query(t, &mq, func(rows *sql.Rows) (link, error) {
		var l link
		err := rows.Scan(&l.groupID, &l.memberID)
		return l, err
	})
	if err != nil {
		return nil, err
	}

	for _, l := range links {
		i := index[l.groupID]
		groups[i].MemberIDs = append(groups[i].MemberIDs, l.memberID)
	}

	return groups, nil
}

// SetGroupMembers replaces the members of a group. Members must belong
// to the tenant of the group, otherwise errorz.ErrConstraintViolated is returned.
func (t *Tx) SetGroupMembers(groupID uuid.UUID, memberIDs []uuid.UUID) error {
	var dq db.Query
	dq.Unsafe(`DELETE FROM group_memberships WHERE group_id = `)
	dq.Param(groupID)

	_, err := t.exec(&dq)
	if err != nil {
		return err
	}

	for _, memberID := range memberIDs {
		var q db.Query
		q.Unsafe(`INSERT INTO group_memberships (group_id, member_id) SELECT g.id, m.id FROM member_groups g JOIN members m ON m.tenant_id = g.tenant_id WHERE g.id = `)
		q.Param(groupID)
		q.Unsafe(` AND m.id = `)
		q.Param(memberID)
		q.Unsafe(` ON CONFLICT DO NOTHING`)

		rows, err := t.exec(&q)
		if err != nil {
			return err
		}

		if rows == 0 {
			return fmt.Errorf("member %s not in tenant of group %s: %w", memberID, groupID, errorz.ErrConstraintViolated)
		}
	}

	return nil
}

// FindContacts returns the contacts of a tenant, optionally limited to members of groups.
func (t *Tx) FindContacts(tenantID uuid.UUID, groupIDs []uuid.UUID) ([]org.Contact, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, name, phone, role FROM members WHERE tenant_id = `)
	q.Param(tenantID)

	if len(groupIDs) > 0 {
		q.Unsafe(` AND id IN (SELECT member_id FROM group_memberships WHERE 1=1`)
		db.In(&q, "group_id", groupIDs)
		q.Unsafe(`)`)
	}

	q.Unsafe(` ORDER BY name ASC, email ASC`)

	return query(t, &q, scanContact)
}

// FindContact returns the contact with the given address in a tenant.
func (t *Tx) FindContact(tenantID uuid.UUID, addr email.Address) (org.Contact, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email, name, phone, role FROM members WHERE tenant_id = `)
	q.Param(tenantID)
	q.Unsafe(` AND email = `)
	q.Param(addr)

	contacts, err := query(t, &q, scanContact)
	if err != nil {
		return org.Contact{}, err
	}

	if len(contacts) != 1 {
		return org.Contact{}, fmt.Errorf("contact: %w", errorz.ErrNotFound)
	}

	return contacts[0], nil
}

func scanContact(rows *sql.Rows) (org.Contact, error) {
	var c org.Contact
	err := rows.Scan(&c.MemberID, &c.Email, &c.Name, &c.Phone, &c.Role)
	return c, err
}
