package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/metering/internal/model"
)

// fakeDB is an in-memory database that understands the SQL this package
// issues. Begin copies the state; Commit swaps the copy back in, so a rolled
// back transaction leaves no trace. It lets the event and reconciliation
// tests run whole scenarios instead of scripting row mocks per statement.
type fakeDB struct {
	state *fakeState
}

type fakeState struct {
	customers   map[string]bool
	projects    map[string]string // project id -> customer id
	groups      map[string]bool
	memberships map[string][]string // project id -> group ids
	resources   map[string]*fakeResource
	scopes      map[string][]model.ScopeRef // resource id -> ancestor scopes
	quotas      map[quotaKey]*fakeQuota
}

type fakeResource struct {
	projectID string
	state     string
	figures   model.Figures
	lastSeq   int64
}

type fakeQuota struct {
	limit *int64
	usage int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{state: &fakeState{
		customers:   map[string]bool{},
		projects:    map[string]string{},
		groups:      map[string]bool{},
		memberships: map[string][]string{},
		resources:   map[string]*fakeResource{},
		scopes:      map[string][]model.ScopeRef{},
		quotas:      map[quotaKey]*fakeQuota{},
	}}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		customers:   map[string]bool{},
		projects:    map[string]string{},
		groups:      map[string]bool{},
		memberships: map[string][]string{},
		resources:   map[string]*fakeResource{},
		scopes:      map[string][]model.ScopeRef{},
		quotas:      map[quotaKey]*fakeQuota{},
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = append([]string(nil), v...)
	}
	for k, v := range s.resources {
		r := *v
		c.resources[k] = &r
	}
	for k, v := range s.scopes {
		c.scopes[k] = append([]model.ScopeRef(nil), v...)
	}
	for k, v := range s.quotas {
		q := fakeQuota{usage: v.usage}
		if v.limit != nil {
			l := *v.limit
			q.limit = &l
		}
		c.quotas[k] = &q
	}
	return c
}

// ---------- test setup helpers ----------

func (d *fakeDB) addCustomer(id string) { d.state.customers[id] = true }

func (d *fakeDB) addProject(id, customerID string) { d.state.projects[id] = customerID }

func (d *fakeDB) addGroup(id string) { d.state.groups[id] = true }

func (d *fakeDB) addMembership(projectID, groupID string) {
	d.state.memberships[projectID] = append(d.state.memberships[projectID], groupID)
}

func (d *fakeDB) quota(scopeType, scopeID, resourceType string) *fakeQuota {
	return d.state.quotas[quotaKey{scopeType, scopeID, resourceType}]
}

func (d *fakeDB) usage(scopeType, scopeID, resourceType string) int64 {
	if q := d.quota(scopeType, scopeID, resourceType); q != nil {
		return q.usage
	}
	return 0
}

// ---------- DB interface ----------

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return d.state.exec(sql, args)
}

func (d *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return d.state.query(sql, args)
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.state.queryRow(sql, args)
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: d, work: d.state.clone()}, nil
}

// ---------- transaction ----------

type fakeTx struct {
	db     *fakeDB
	work   *fakeState
	closed bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.db.state = t.work
	t.closed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.work.exec(sql, args)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.work.query(sql, args)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.work.queryRow(sql, args)
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Conn() *pgx.Conn                           { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects            { return pgx.LargeObjects{} }
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

// ---------- statement dispatch ----------

var sqlSpaces = regexp.MustCompile(`\s+`)

func normSQL(sql string) string {
	return strings.TrimSpace(sqlSpaces.ReplaceAllString(sql, " "))
}

func tag(verb string, n int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, n))
}

func limitArg(a any) *int64 {
	switch v := a.(type) {
	case nil:
		return nil
	case *int64:
		if v == nil {
			return nil
		}
		l := *v
		return &l
	case int64:
		l := v
		return &l
	}
	panic(fmt.Sprintf("unexpected limit argument %T", a))
}

func (s *fakeState) exec(sql string, args []any) (pgconn.CommandTag, error) {
	q := normSQL(sql)
	switch {
	case strings.HasPrefix(q, "INSERT INTO quotas") && strings.HasSuffix(q, "DO NOTHING"):
		key := quotaKey{args[0].(string), args[1].(string), args[2].(string)}
		if _, ok := s.quotas[key]; ok {
			return tag("INSERT", 0), nil
		}
		s.quotas[key] = &fakeQuota{limit: limitArg(args[3])}
		return tag("INSERT", 1), nil

	case strings.HasPrefix(q, "INSERT INTO quotas") && strings.Contains(q, "DO UPDATE SET limit_value"):
		key := quotaKey{args[0].(string), args[1].(string), args[2].(string)}
		if existing, ok := s.quotas[key]; ok {
			existing.limit = limitArg(args[3])
		} else {
			s.quotas[key] = &fakeQuota{limit: limitArg(args[3])}
		}
		return tag("INSERT", 1), nil

	case strings.HasPrefix(q, "DELETE FROM quotas"):
		n := 0
		for key := range s.quotas {
			if key.scopeType == args[0].(string) && key.scopeID == args[1].(string) {
				delete(s.quotas, key)
				n++
			}
		}
		return tag("DELETE", n), nil

	case strings.HasPrefix(q, "INSERT INTO resources"):
		s.resources[args[0].(string)] = &fakeResource{
			projectID: args[1].(string),
			state:     args[4].(string),
			figures: model.Figures{
				VCPU:      args[5].(int64),
				RAMMB:     args[6].(int64),
				StorageMB: args[7].(int64),
			},
			lastSeq: 1,
		}
		return tag("INSERT", 1), nil

	case strings.HasPrefix(q, "UPDATE resources SET state"):
		r, ok := s.resources[args[5].(string)]
		if !ok {
			return tag("UPDATE", 0), nil
		}
		r.state = args[0].(string)
		r.figures = model.Figures{VCPU: args[1].(int64), RAMMB: args[2].(int64), StorageMB: args[3].(int64)}
		r.lastSeq = args[4].(int64)
		return tag("UPDATE", 1), nil

	case strings.HasPrefix(q, "UPDATE quotas SET usage = $1"):
		key := quotaKey{args[1].(string), args[2].(string), args[3].(string)}
		if quota, ok := s.quotas[key]; ok {
			quota.usage = args[0].(int64)
			return tag("UPDATE", 1), nil
		}
		return tag("UPDATE", 0), nil

	case strings.HasPrefix(q, "INSERT INTO resource_scopes (resource_id, scope_type, scope_id) VALUES"):
		s.addScope(args[0].(string), model.ScopeRef{Type: args[1].(string), ID: args[2].(string)})
		return tag("INSERT", 1), nil

	case strings.HasPrefix(q, "INSERT INTO resource_scopes (resource_id, scope_type, scope_id) SELECT"):
		scope := model.ScopeRef{Type: args[0].(string), ID: args[1].(string)}
		n := 0
		for id, r := range s.resources {
			if r.projectID == args[2].(string) {
				s.addScope(id, scope)
				n++
			}
		}
		return tag("INSERT", n), nil

	case strings.HasPrefix(q, "DELETE FROM resource_scopes rs USING resources r"):
		scope := model.ScopeRef{Type: args[1].(string), ID: args[2].(string)}
		n := 0
		for id, r := range s.resources {
			if r.projectID != args[0].(string) {
				continue
			}
			var kept []model.ScopeRef
			for _, sc := range s.scopes[id] {
				if sc == scope {
					n++
					continue
				}
				kept = append(kept, sc)
			}
			s.scopes[id] = kept
		}
		return tag("DELETE", n), nil

	case strings.HasPrefix(q, "INSERT INTO project_group_projects"):
		groupID, projectID := args[0].(string), args[1].(string)
		for _, g := range s.memberships[projectID] {
			if g == groupID {
				return tag("INSERT", 0), nil
			}
		}
		s.memberships[projectID] = append(s.memberships[projectID], groupID)
		return tag("INSERT", 1), nil

	case strings.HasPrefix(q, "DELETE FROM project_group_projects WHERE project_group_id = $1 AND project_id = $2"):
		groupID, projectID := args[0].(string), args[1].(string)
		var kept []string
		n := 0
		for _, g := range s.memberships[projectID] {
			if g == groupID {
				n++
				continue
			}
			kept = append(kept, g)
		}
		s.memberships[projectID] = kept
		return tag("DELETE", n), nil

	case strings.HasPrefix(q, "DELETE FROM project_group_projects WHERE project_group_id = $1"):
		groupID := args[0].(string)
		n := 0
		for projectID, groups := range s.memberships {
			var kept []string
			for _, g := range groups {
				if g == groupID {
					n++
					continue
				}
				kept = append(kept, g)
			}
			s.memberships[projectID] = kept
		}
		return tag("DELETE", n), nil

	case strings.HasPrefix(q, "DELETE FROM resource_scopes WHERE scope_type = $1"):
		scope := model.ScopeRef{Type: args[0].(string), ID: args[1].(string)}
		n := 0
		for id, refs := range s.scopes {
			var kept []model.ScopeRef
			for _, sc := range refs {
				if sc == scope {
					n++
					continue
				}
				kept = append(kept, sc)
			}
			s.scopes[id] = kept
		}
		return tag("DELETE", n), nil

	case strings.HasPrefix(q, "DELETE FROM project_groups WHERE id = $1"):
		if !s.groups[args[0].(string)] {
			return tag("DELETE", 0), nil
		}
		delete(s.groups, args[0].(string))
		return tag("DELETE", 1), nil
	}
	panic("fakeDB: unhandled exec: " + q)
}

func (s *fakeState) addScope(resourceID string, scope model.ScopeRef) {
	for _, sc := range s.scopes[resourceID] {
		if sc == scope {
			return
		}
	}
	s.scopes[resourceID] = append(s.scopes[resourceID], scope)
}

func (s *fakeState) queryRow(sql string, args []any) pgx.Row {
	q := normSQL(sql)
	switch {
	case strings.HasPrefix(q, "SELECT state, vcpu, ram_mb, storage_mb, last_sequence FROM resources"):
		r, ok := s.resources[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return valueRow{r.state, r.figures.VCPU, r.figures.RAMMB, r.figures.StorageMB, r.lastSeq}

	case strings.HasPrefix(q, "SELECT customer_id FROM projects"):
		customerID, ok := s.projects[args[0].(string)]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return valueRow{customerID}

	case strings.HasPrefix(q, "SELECT limit_value, usage FROM quotas"):
		quota, ok := s.quotas[quotaKey{args[0].(string), args[1].(string), args[2].(string)}]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		return valueRow{quota.limit, quota.usage}

	case strings.HasPrefix(q, "UPDATE quotas SET usage = usage + $1"):
		quota, ok := s.quotas[quotaKey{args[1].(string), args[2].(string), args[3].(string)}]
		if !ok {
			return errRow{pgx.ErrNoRows}
		}
		quota.usage += args[0].(int64)
		return valueRow{quota.usage}

	case strings.HasPrefix(q, "INSERT INTO quotas") && strings.Contains(q, "DO UPDATE SET usage"):
		key := quotaKey{args[0].(string), args[1].(string), args[2].(string)}
		if quota, ok := s.quotas[key]; ok {
			quota.usage += args[4].(int64)
			return valueRow{quota.usage}
		}
		s.quotas[key] = &fakeQuota{limit: limitArg(args[3]), usage: args[4].(int64)}
		return valueRow{s.quotas[key].usage}

	case strings.HasPrefix(q, "SELECT EXISTS (SELECT 1 FROM customers"):
		return valueRow{s.customers[args[0].(string)]}
	case strings.HasPrefix(q, "SELECT EXISTS (SELECT 1 FROM projects"):
		_, ok := s.projects[args[0].(string)]
		return valueRow{ok}
	case strings.HasPrefix(q, "SELECT EXISTS (SELECT 1 FROM project_groups"):
		return valueRow{s.groups[args[0].(string)]}

	case strings.HasPrefix(q, "SELECT COALESCE(SUM(vcpu), 0)"):
		var vcpu, ram, storage, instances int64
		for _, r := range s.resources {
			if r.projectID != args[0].(string) {
				continue
			}
			if r.state != args[1].(string) && r.state != args[2].(string) {
				continue
			}
			vcpu += r.figures.VCPU
			ram += r.figures.RAMMB
			storage += r.figures.StorageMB
			instances++
		}
		return valueRow{vcpu, ram, storage, instances}
	}
	panic("fakeDB: unhandled queryRow: " + q)
}

func (s *fakeState) query(sql string, args []any) (pgx.Rows, error) {
	q := normSQL(sql)
	switch {
	case strings.HasPrefix(q, "SELECT project_group_id FROM project_group_projects"):
		var rows [][]any
		for _, g := range s.memberships[args[0].(string)] {
			rows = append(rows, []any{g})
		}
		return &fakeRows{rows: rows}, nil

	case strings.HasPrefix(q, "SELECT scope_type, scope_id FROM resource_scopes"):
		var rows [][]any
		for _, sc := range s.scopes[args[0].(string)] {
			rows = append(rows, []any{sc.Type, sc.ID})
		}
		return &fakeRows{rows: rows}, nil

	case strings.HasPrefix(q, "SELECT resource_type, limit_value, usage FROM quotas"):
		var rows [][]any
		for key, quota := range s.quotas {
			if key.scopeType == args[0].(string) && key.scopeID == args[1].(string) {
				rows = append(rows, []any{key.resourceType, quota.limit, quota.usage})
			}
		}
		return &fakeRows{rows: rows}, nil

	case strings.HasPrefix(q, "SELECT scope_type, scope_id, resource_type, usage FROM quotas"):
		var rows [][]any
		for key, quota := range s.quotas {
			rows = append(rows, []any{key.scopeType, key.scopeID, key.resourceType, quota.usage})
		}
		return &fakeRows{rows: rows}, nil

	case strings.HasPrefix(q, "SELECT rs.scope_type, rs.scope_id"):
		type scopeTotals struct{ vcpu, ram, storage, instances int64 }
		totals := map[model.ScopeRef]*scopeTotals{}
		for id, r := range s.resources {
			if r.state != args[0].(string) && r.state != args[1].(string) {
				continue
			}
			for _, sc := range s.scopes[id] {
				t, ok := totals[sc]
				if !ok {
					t = &scopeTotals{}
					totals[sc] = t
				}
				t.vcpu += r.figures.VCPU
				t.ram += r.figures.RAMMB
				t.storage += r.figures.StorageMB
				t.instances++
			}
		}
		var rows [][]any
		for sc, t := range totals {
			rows = append(rows, []any{sc.Type, sc.ID, t.vcpu, t.ram, t.storage, t.instances})
		}
		return &fakeRows{rows: rows}, nil
	}
	panic("fakeDB: unhandled query: " + q)
}

// ---------- rows and row helpers ----------

type fakeRows struct {
	idx  int
	rows [][]any
}

func (f *fakeRows) Next() bool { return f.idx < len(f.rows) }

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.idx]
	f.idx++
	for i := range dest {
		assignValue(dest[i], row[i])
	}
	return nil
}

func (f *fakeRows) Err() error                                   { return nil }
func (f *fakeRows) Close()                                       {}
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

type valueRow []any

func (r valueRow) Scan(dest ...any) error {
	for i := range dest {
		assignValue(dest[i], r[i])
	}
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

func assignValue(dest, v any) {
	switch d := dest.(type) {
	case *string:
		*d = v.(string)
	case *int64:
		*d = v.(int64)
	case *bool:
		*d = v.(bool)
	case **int64:
		if v == nil {
			*d = nil
			return
		}
		p := v.(*int64)
		if p == nil {
			*d = nil
			return
		}
		l := *p
		*d = &l
	default:
		panic(fmt.Sprintf("fakeDB: unhandled scan destination %T", dest))
	}
}
