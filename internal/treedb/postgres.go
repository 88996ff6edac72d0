package treedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tree_nodes (
	path   TEXT PRIMARY KEY,
	parent TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  JSONB
);
CREATE INDEX IF NOT EXISTS tree_nodes_parent_idx ON tree_nodes (parent);
`

// Postgres keeps the tree in a single table: one row per node, leaf values
// in a JSONB column, branch rows with a NULL value. Child enumeration is an
// index lookup on the parent column; subtree removal is a prefix delete.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, configures the pool, and ensures the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) register(ctx context.Context, path string) error {
	for _, pair := range ancestors(path) {
		parent, name := pair[0], pair[1]
		full := name
		if parent != "" {
			full = parent + "/" + name
		}
		_, err := p.db.ExecContext(ctx,
			`INSERT INTO tree_nodes (path, parent, name, value) VALUES ($1, $2, $3, NULL)
			 ON CONFLICT (path) DO NOTHING`, full, parent, name)
		if err != nil {
			return fmt.Errorf("register %s: %w", full, err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path string, out any) error {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM tree_nodes WHERE path = $1 AND value IS NOT NULL`, path).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return json.Unmarshal(raw, out)
}

func (p *Postgres) Set(ctx context.Context, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return err
	}
	if err := p.register(ctx, path); err != nil {
		return err
	}
	parent, name := splitParent(path)
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO tree_nodes (path, parent, name, value) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`,
		path, parent, name, []byte(raw))
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, path string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := p.register(ctx, path); err != nil {
		return err
	}
	parent, name := splitParent(path)
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO tree_nodes (path, parent, name, value) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (path) DO UPDATE
		 SET value = COALESCE(tree_nodes.value, '{}'::jsonb) || EXCLUDED.value`,
		path, parent, name, []byte(raw))
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, path string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM tree_nodes WHERE path = $1 OR path LIKE $1 || '/%'`, path)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewKey()
	if err := p.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (p *Postgres) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, value FROM tree_nodes WHERE parent = $1 ORDER BY name`, path)
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			out[name] = nil
		} else {
			out[name] = json.RawMessage(raw)
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ChildKeys(ctx context.Context, path string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name FROM tree_nodes WHERE parent = $1 ORDER BY name`, path)
	if err != nil {
		return nil, fmt.Errorf("child keys %s: %w", path, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

func (p *Postgres) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM tree_nodes
			WHERE (path = $1 AND value IS NOT NULL) OR parent = $1
		)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return exists, nil
}

func (p *Postgres) Touch(ctx context.Context, path string) error {
	return p.register(ctx, path)
}

func (p *Postgres) Incr(ctx context.Context, path string) (int64, error) {
	if err := p.register(ctx, path); err != nil {
		return 0, err
	}
	parent, name := splitParent(path)
	var next int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO tree_nodes (path, parent, name, value)
		 VALUES ($1, $2, $3, to_jsonb(1::bigint))
		 ON CONFLICT (path) DO UPDATE
		 SET value = to_jsonb(COALESCE((tree_nodes.value #>> '{}')::bigint, 0) + 1)
		 RETURNING (value #>> '{}')::bigint`,
		path, parent, name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", path, err)
	}
	return next, nil
}

func (p *Postgres) Seed(ctx context.Context, path string, value int64) error {
	if err := p.register(ctx, path); err != nil {
		return err
	}
	parent, name := splitParent(path)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tree_nodes (path, parent, name, value)
		 VALUES ($1, $2, $3, to_jsonb($4::bigint))
		 ON CONFLICT (path) DO UPDATE
		 SET value = to_jsonb(GREATEST(COALESCE((tree_nodes.value #>> '{}')::bigint, 0), $4::bigint))`,
		path, parent, name, value)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
