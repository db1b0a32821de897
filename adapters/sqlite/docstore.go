// Package sqlite provides the durable DocumentStore. Each collection is one
// table holding JSON documents; uniqueness groups become unique expression
// indexes over json_extract, so the database itself is the final authority
// on uniqueness races.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/victorteokw/docmap/ports"
)

// DocStore persists documents in SQLite.
type DocStore struct {
	db *sql.DB

	mu      sync.RWMutex
	indexes map[string][]string // index name -> uniqueness group fields
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocStore)(nil)

// Open creates a SQLite-backed document store.
func Open(path string) (*DocStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DocStore{db: db, indexes: make(map[string][]string)}, nil
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ident(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return name, nil
}

// EnsureCollection creates the collection table and its unique indexes.
func (s *DocStore) EnsureCollection(ctx context.Context, spec ports.CollectionSpec) error {
	table, err := ident(spec.Name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, table))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", table, err)
	}

	for _, group := range spec.Unique {
		exprs := make([]string, len(group))
		guards := make([]string, len(group))
		for i, field := range group {
			f, err := ident(field)
			if err != nil {
				return err
			}
			exprs[i] = fmt.Sprintf(`json_extract(doc, '$.%s')`, f)
			guards[i] = exprs[i] + " IS NOT NULL"
		}
		name := indexName(table, group)
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s`,
			name, table, strings.Join(exprs, ", "), strings.Join(guards, " AND ")))
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		s.mu.Lock()
		s.indexes[name] = group
		s.mu.Unlock()
	}
	return nil
}

func indexName(table string, group []string) string {
	return "ux_" + table + "_" + strings.Join(group, "_")
}

// Insert stores a new document.
func (s *DocStore) Insert(ctx context.Context, collection string, doc map[string]any) error {
	return s.exec(ctx, s.db, ports.Write{Op: ports.WriteInsert, Collection: collection, ID: docID(doc), Doc: doc})
}

// Update replaces the document with the given id.
func (s *DocStore) Update(ctx context.Context, collection, id string, doc map[string]any) error {
	return s.exec(ctx, s.db, ports.Write{Op: ports.WriteUpdate, Collection: collection, ID: id, Doc: doc})
}

// Delete removes the document with the given id.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	return s.exec(ctx, s.db, ports.Write{Op: ports.WriteDelete, Collection: collection, ID: id})
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func docID(doc map[string]any) string {
	id, _ := doc["id"].(string)
	return id
}

func (s *DocStore) exec(ctx context.Context, db execer, w ports.Write) error {
	table, err := ident(w.Collection)
	if err != nil {
		return err
	}
	switch w.Op {
	case ports.WriteInsert:
		if w.ID == "" {
			return fmt.Errorf("insert into %s: document has no id", table)
		}
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		_, err = db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, doc) VALUES (?, ?)`, table), w.ID, string(raw))
		return s.translate(w.Collection, err)

	case ports.WriteUpdate:
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		res, err := db.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET doc = ? WHERE id = ?`, table), string(raw), w.ID)
		if err != nil {
			return s.translate(w.Collection, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ports.ErrNotFound
		}
		return nil

	case ports.WriteDelete:
		res, err := db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE id = ?`, table), w.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ports.ErrNotFound
		}
		return nil

	default:
		return fmt.Errorf("unknown write op %q", w.Op)
	}
}

// translate maps SQLite unique-constraint violations to the duplicate
// contract, resolving the violated index back to its field group.
func (s *DocStore) translate(collection string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}
	fields := []string{"id"}
	msg := serr.Error()
	s.mu.RLock()
	for name, group := range s.indexes {
		if strings.Contains(msg, name) {
			fields = group
			break
		}
	}
	s.mu.RUnlock()
	return &ports.DuplicateError{Collection: collection, Fields: fields}
}

// FindByID retrieves one document.
func (s *DocStore) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	table, err := ident(collection)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT doc FROM %s WHERE id = ?`, table), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// FindByField retrieves all documents whose field equals value.
func (s *DocStore) FindByField(ctx context.Context, collection, field string, value any) ([]map[string]any, error) {
	table, err := ident(collection)
	if err != nil {
		return nil, err
	}
	f, err := ident(field)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT doc FROM %s WHERE json_extract(doc, '$.%s') = ? ORDER BY id`, table, f), value)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// FindAll retrieves every document in a collection.
func (s *DocStore) FindAll(ctx context.Context, collection string) ([]map[string]any, error) {
	table, err := ident(collection)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT doc FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Exists checks whether any document other than excludeID holds value in
// field.
func (s *DocStore) Exists(ctx context.Context, collection, field string, value any, excludeID string) (bool, error) {
	table, err := ident(collection)
	if err != nil {
		return false, err
	}
	f, err := ident(field)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %s WHERE json_extract(doc, '$.%s') = ? AND id != ? LIMIT 1`,
		table, f), value, excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExistsTuple checks whether any document other than excludeID holds the
// full key tuple.
func (s *DocStore) ExistsTuple(ctx context.Context, collection string, key map[string]any, excludeID string) (bool, error) {
	table, err := ident(collection)
	if err != nil {
		return false, err
	}
	fields := make([]string, 0, len(key))
	for f := range key {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, field := range fields {
		f, err := ident(field)
		if err != nil {
			return false, err
		}
		clauses = append(clauses, fmt.Sprintf(`json_extract(doc, '$.%s') = ?`, f))
		args = append(args, key[field])
	}
	args = append(args, excludeID)

	var one int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %s WHERE %s AND id != ? LIMIT 1`,
		table, strings.Join(clauses, " AND ")), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Apply executes a batch of writes inside one transaction.
func (s *DocStore) Apply(ctx context.Context, writes []ports.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, w := range writes {
		if err := s.exec(ctx, tx, w); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *DocStore) Close() error { return s.db.Close() }

func decode(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func collect(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
