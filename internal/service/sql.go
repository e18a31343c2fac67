package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dbPool keeps one *sql.DB per driver and data source.
type dbPool struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func (p *dbPool) open(driver, dsn string, setup func(*sql.DB)) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := driver + "|" + dsn
	if db, ok := p.dbs[key]; ok {
		return db, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		setup(db)
	}
	if p.dbs == nil {
		p.dbs = map[string]*sql.DB{}
	}
	p.dbs[key] = db
	return db, nil
}

func (p *dbPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, db := range p.dbs {
		_ = db.Close()
		delete(p.dbs, k)
	}
}

// SQLite stores each message as a row of table addrs[1] in the database
// file addrs[0]. The table is created when missing.
type SQLite struct {
	plugin.BaseService
	dbPool
}

func (s *SQLite) Reentrant() bool { return true }

func (s *SQLite) Deliver(ctx context.Context, it *item.Item) error {
	path, err := it.Addr(0)
	if err != nil {
		return err
	}
	table, err := it.Addr(1)
	if err != nil {
		return err
	}
	if !identifier.MatchString(table) {
		return fmt.Errorf("%w: table name %q", plugin.ErrInvalidAddress, table)
	}

	db, err := s.open("sqlite", path, func(db *sql.DB) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	})
	if err != nil {
		return fmt.Errorf("cannot open sqlite at %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (payload TEXT)", table)); err != nil {
		return fmt.Errorf("cannot create sqlite table in %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?)", table), it.Text()); err != nil {
		return fmt.Errorf("cannot insert into sqlite:%s: %w", table, err)
	}
	return nil
}

func (s *SQLite) Cleanup() {
	s.close()
}

// Postgres inserts a row into table addrs[0] (schema addrs[2], default
// public). The message goes to column addrs[1]; data fields whose name
// matches a column fill that column too.
type Postgres struct {
	plugin.BaseService
	dbPool
}

func (p *Postgres) Reentrant() bool { return true }

func postgresDSN(it *item.Item) string {
	if dsn := it.ConfigString("dsn", ""); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(it.ConfigString("host", "localhost"), strconv.Itoa(it.ConfigInt("port", 5432))),
		Path:     "/" + it.ConfigString("dbname", ""),
		RawQuery: "sslmode=" + it.ConfigString("sslmode", "disable"),
	}
	if user := it.ConfigString("user", ""); user != "" {
		u.User = url.UserPassword(user, it.ConfigString("pass", ""))
	}
	return u.String()
}

func (p *Postgres) Deliver(ctx context.Context, it *item.Item) error {
	var names [3]string
	names[2] = "public"
	for i := range names {
		raw, err := it.Addr(i)
		if err != nil {
			if i == 2 {
				break
			}
			return err
		}
		if names[i], err = interpolate(it, raw); err != nil {
			return err
		}
	}
	table, fallback, schema := names[0], names[1], names[2]

	db, err := p.open("postgres", postgresDSN(it), nil)
	if err != nil {
		return fmt.Errorf("cannot connect to postgres: %w", err)
	}

	columns, err := tableColumns(ctx, db, schema, table)
	if err != nil {
		return fmt.Errorf("cannot read columns of %s.%s: %w", schema, table, err)
	}

	row := map[string]any{fallback: it.Text()}
	for k, v := range it.Data {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		row[k] = v
	}

	var cols []string
	var skipped []string
	for k := range row {
		if columns[k] {
			cols = append(cols, k)
		} else {
			skipped = append(skipped, k)
		}
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: no column of %s.%s matches", plugin.ErrInvalidAddress, schema, table)
	}
	sort.Strings(cols)
	if len(skipped) > 0 {
		sort.Strings(skipped)
		p.Logger.Debug("Skipping unused keys", slog.String("keys", strings.Join(skipped, ",")))
	}

	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	values := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		holders[i] = "$" + strconv.Itoa(i+1)
		values[i] = row[c]
	}
	query := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("cannot add postgres row: %w", err)
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, schema, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2",
		schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols[c] = true
	}
	return cols, rows.Err()
}

func (p *Postgres) Cleanup() {
	p.close()
}
