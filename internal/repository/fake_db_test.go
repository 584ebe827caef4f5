package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"job-pipeline/internal/database"
	"job-pipeline/internal/domain/job"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return assign(r.rows[r.i-1], dest) }

func assign(vals []any, dest []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan dest mismatch: %d != %d", len(dest), len(vals))
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *[]byte:
			*d = vals[i].([]byte)
		case *string:
			*d = vals[i].(string)
		case *bool:
			*d = vals[i].(bool)
		case *int:
			*d = vals[i].(int)
		case *time.Time:
			*d = vals[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan type %T", dest[i])
		}
	}
	return nil
}

type storedRow struct {
	company string
	active  bool
	doc     []byte
	updated time.Time
}

// fakeDB understands the handful of statements the job listing repository
// issues. Begin holds txMu until Commit or Rollback, which mirrors the row
// lock taken by SELECT ... FOR UPDATE.
type fakeDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	rows map[string]storedRow

	insertConflict bool
	writes         int
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: map[string]storedRow{}}
}

func (db *fakeDB) Ping(ctx context.Context) error { return nil }
func (db *fakeDB) Close() error                   { return nil }
func (db *fakeDB) SQLDB() *sql.DB                 { return nil }

func (db *fakeDB) Begin(ctx context.Context) (database.Tx, error) {
	db.txMu.Lock()
	return &fakeTx{db: db}, nil
}

func (db *fakeDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.exec(normalizeSQL(query), args)
}

func (db *fakeDB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.query(normalizeSQL(query), args)
}

func (db *fakeDB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryRow(normalizeSQL(query), args)
}

func (db *fakeDB) put(rec job.Record) {
	doc, _ := json.Marshal(rec)
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rows[rec.Signature] = storedRow{company: rec.Company, active: rec.Active, doc: doc, updated: rec.UpdatedAt}
}

func (db *fakeDB) exec(q string, args []any) (int64, error) {
	switch {
	case strings.HasPrefix(q, "insert into job_listings"):
		sig := args[0].(string)
		if _, ok := db.rows[sig]; ok || db.insertConflict {
			return 0, nil
		}
		db.rows[sig] = storedRow{
			company: args[1].(string),
			active:  args[2].(bool),
			doc:     args[6].([]byte),
			updated: args[8].(time.Time),
		}
		db.writes++
		return 1, nil

	case strings.HasPrefix(q, "update job_listings set active = $2, stage_2_completed"):
		sig := args[0].(string)
		row, ok := db.rows[sig]
		if !ok {
			return 0, nil
		}
		row.active = args[1].(bool)
		row.doc = args[5].([]byte)
		row.updated = args[6].(time.Time)
		db.rows[sig] = row
		db.writes++
		return 1, nil

	case strings.HasPrefix(q, "update job_listings set active = $2, updated_at = greatest"):
		sigs := args[0].([]string)
		active := args[1].(bool)
		now := args[2].(time.Time)
		var n int64
		for _, sig := range sigs {
			row, ok := db.rows[sig]
			if !ok || row.active == active {
				continue
			}
			var rec job.Record
			_ = json.Unmarshal(row.doc, &rec)
			rec.Active = active
			if now.After(rec.CreatedAt) {
				rec.UpdatedAt = now
			} else {
				rec.UpdatedAt = rec.CreatedAt
			}
			row.active = active
			row.doc, _ = json.Marshal(rec)
			row.updated = rec.UpdatedAt
			db.rows[sig] = row
			n++
		}
		return n, nil

	case strings.HasPrefix(q, "delete from job_listings where not active"):
		before := args[0].(time.Time)
		var n int64
		for sig, row := range db.rows {
			if !row.active && row.updated.Before(before) {
				delete(db.rows, sig)
				n++
			}
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported exec: %s", q)
}

func (db *fakeDB) queryRow(q string, args []any) database.Row {
	switch {
	case strings.HasPrefix(q, "select document from job_listings where signature = $1"):
		row, ok := db.rows[args[0].(string)]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{row.doc}}

	case strings.HasPrefix(q, "select count(1) filter"):
		company := ""
		if len(args) > 0 {
			company = args[0].(string)
		}
		var c StageCounts
		for _, row := range db.rows {
			if company != "" && row.company != company {
				continue
			}
			if !row.active {
				c.Inactive++
				continue
			}
			var rec job.Record
			_ = json.Unmarshal(row.doc, &rec)
			c.Active++
			if !rec.Stage2Completed && !rec.Stage3Completed && !rec.Stage4Completed {
				c.Stage1Only++
			}
			if rec.Stage2Completed {
				c.Stage2Completed++
			}
			if rec.Stage3Completed {
				c.Stage3Completed++
			}
			if rec.Stage4Completed {
				c.Stage4Completed++
			}
			if rec.Stage2Completed && rec.Stage3Completed && rec.Stage4Completed {
				c.FullyProcessed++
			}
		}
		return fakeRow{vals: []any{c.Stage1Only, c.Stage2Completed, c.Stage3Completed, c.Stage4Completed, c.FullyProcessed, c.Active, c.Inactive}}
	}
	return fakeRow{err: fmt.Errorf("unsupported queryrow: %s", q)}
}

func (db *fakeDB) query(q string, args []any) (database.Rows, error) {
	switch {
	case strings.HasPrefix(q, "select document from job_listings where active and not stage_"):
		stage := q[len("select document from job_listings where active and not stage_")]
		company := ""
		limit := args[len(args)-1].(int)
		if strings.Contains(q, "and company =") {
			company = args[0].(string)
		}
		var recs []job.Record
		for _, row := range db.rows {
			if !row.active || (company != "" && row.company != company) {
				continue
			}
			var rec job.Record
			_ = json.Unmarshal(row.doc, &rec)
			done := map[byte]bool{'2': rec.Stage2Completed, '3': rec.Stage3Completed, '4': rec.Stage4Completed}[stage]
			if !done {
				recs = append(recs, rec)
			}
		}
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
				return recs[i].CreatedAt.Before(recs[j].CreatedAt)
			}
			return recs[i].Signature < recs[j].Signature
		})
		if len(recs) > limit {
			recs = recs[:limit]
		}
		out := &fakeRows{}
		for _, rec := range recs {
			doc, _ := json.Marshal(rec)
			out.rows = append(out.rows, []any{doc})
		}
		return out, nil

	case strings.HasPrefix(q, "select signature from job_listings"):
		out := &fakeRows{}
		for sig, row := range db.rows {
			if len(args) > 0 && row.company != args[0].(string) {
				continue
			}
			out.rows = append(out.rows, []any{sig})
		}
		return out, nil

	case strings.HasPrefix(q, "select signature, active from job_listings where company = $1"):
		out := &fakeRows{}
		for sig, row := range db.rows {
			if row.company == args[0].(string) {
				out.rows = append(out.rows, []any{sig, row.active})
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", q)
}

type fakeTx struct {
	db   *fakeDB
	done bool
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.db.Exec(ctx, query, args...)
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, query, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return t.db.QueryRow(ctx, query, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.release()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

func (t *fakeTx) release() {
	if t.done {
		return
	}
	t.done = true
	t.db.txMu.Unlock()
}

func normalizeSQL(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
