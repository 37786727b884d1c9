package testutil

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"exforge/internal/common/db"
)

// Statement is one query observed by FakeDB.
type Statement struct {
	Query string
	Args  []interface{}
}

// FakeDB records statements and hands out increasing ids. Queries return no rows.
type FakeDB struct {
	mu         sync.Mutex
	DialectTag string
	Statements []Statement
	Commits    int
	Rollbacks  int
	// ExecErr is returned by every Exec when set.
	ExecErr error
	nextID  int64
}

func (f *FakeDB) Dialect() string {
	if f.DialectTag == "" {
		return "mysql"
	}
	return f.DialectTag
}

func (f *FakeDB) record(query string, args []interface{}) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statements = append(f.Statements, Statement{Query: query, Args: args})
	f.nextID++
	return f.nextID
}

// Queries returns the recorded query strings in order.
func (f *FakeDB) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Statements))
	for _, s := range f.Statements {
		out = append(out, s.Query)
	}
	return out
}

func (f *FakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.record(query, args)
	return emptyRows{}, nil
}

func (f *FakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return idRow{id: f.record(query, args)}
}

func (f *FakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	id := f.record(query, args)
	if f.ExecErr != nil {
		return nil, f.ExecErr
	}
	return fakeResult{id: id}, nil
}

func (f *FakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	err := fn(&fakeTx{FakeDB: f})
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.Rollbacks++
		return err
	}
	f.Commits++
	return nil
}

func (f *FakeDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return &fakeTx{FakeDB: f}, nil
}

func (f *FakeDB) Ping(ctx context.Context) error { return nil }
func (f *FakeDB) Close() error                   { return nil }
func (f *FakeDB) Stats() db.Stats                { return db.Stats{} }

type fakeTx struct {
	*FakeDB
}

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeResult struct {
	id int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

// idRow scans the generated id into the first *int64 destination, and reports
// sql.ErrNoRows for any other shape.
type idRow struct {
	id int64
}

func (r idRow) Scan(dest ...interface{}) error {
	if len(dest) == 1 {
		if p, ok := dest[0].(*int64); ok {
			*p = r.id
			return nil
		}
	}
	return sql.ErrNoRows
}

type emptyRows struct{}

func (emptyRows) Next() bool                     { return false }
func (emptyRows) Scan(dest ...interface{}) error { return errors.New("no rows") }
func (emptyRows) Close() error                   { return nil }
func (emptyRows) Err() error                     { return nil }
