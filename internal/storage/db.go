package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bibmerge/internal"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidDocument   = errors.New("document must be a JSON object")
	ErrInvalidField      = errors.New("invalid search field")
)

// Collections lists every collection the pipelines write and the API serves.
var Collections = []string{
	internal.CollectionBooksCSV,
	internal.CollectionBooksMARC,
	internal.CollectionBooksONIX,
	internal.CollectionCSVIssues,
	internal.CollectionMARCIssues,
	internal.CollectionONIXIssues,
}

var reFieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

type DB struct {
	conn *sql.DB
}

type Document struct {
	ID         string          `json:"_id"`
	Collection string          `json:"collection"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  string          `json:"createdAt"`
	UpdatedAt  string          `json:"updatedAt"`
}

// Fields returns the document body with its identifier under "_id".
func (d Document) Fields() (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(d.Body, &out); err != nil {
		return nil, err
	}
	out["_id"] = d.ID
	return out, nil
}

type RunRow struct {
	ID        int
	TraceID   string
	Family    string
	Status    string
	Error     string
	Timings   map[string]float64
	Counts    internal.RunCounts
	CreatedAt string
}

func KnownCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pipelines persist concurrently; one connection serializes their writes.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  collection TEXT NOT NULL,
  seq INTEGER NOT NULL,
  body TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  family TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// Replacement is the new content of one collection.
type Replacement struct {
	Collection string
	Docs       []any
}

// ReplaceCollection swaps the whole content of collection for docs, in
// order, inside one transaction. Every document gets a fresh identifier.
func (d *DB) ReplaceCollection(collection string, docs []any) (int, error) {
	return d.ReplaceCollections(Replacement{Collection: collection, Docs: docs})
}

// ReplaceCollections applies every replacement in a single transaction:
// either all collections change or none do. Returns the number of
// documents written.
func (d *DB) ReplaceCollections(sets ...Replacement) (int, error) {
	for _, set := range sets {
		if !KnownCollection(set.Collection) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, set.Collection)
		}
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO documents (id, collection, seq, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total := 0
	for _, set := range sets {
		if _, err := tx.Exec(`DELETE FROM documents WHERE collection = ?`, set.Collection); err != nil {
			return 0, err
		}
		for i, doc := range set.Docs {
			body, err := json.Marshal(doc)
			if err != nil {
				return 0, fmt.Errorf("marshal %s[%d]: %w", set.Collection, i, err)
			}
			if _, err := stmt.Exec(uuid.NewString(), set.Collection, i+1, string(body)); err != nil {
				return 0, err
			}
		}
		total += len(set.Docs)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (d *DB) InsertDocument(collection string, body json.RawMessage) (Document, error) {
	if !KnownCollection(collection) {
		return Document{}, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if !isJSONObject(body) {
		return Document{}, ErrInvalidDocument
	}

	id := uuid.NewString()
	_, err := d.conn.Exec(`
INSERT INTO documents (id, collection, seq, body)
VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE collection = ?), ?)
`, id, collection, collection, string(body))
	if err != nil {
		return Document{}, err
	}

	doc, err := d.GetDocument(collection, id)
	if err != nil {
		return Document{}, err
	}
	if doc == nil {
		return Document{}, errors.New("failed to insert document")
	}
	return *doc, nil
}

func (d *DB) GetDocument(collection, id string) (*Document, error) {
	if !KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	var doc Document
	var body string
	err := d.conn.QueryRow(`
SELECT id, collection, body, createdAt, updatedAt
FROM documents WHERE collection = ? AND id = ?
`, collection, id).Scan(&doc.ID, &doc.Collection, &body, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Body = json.RawMessage(body)
	return &doc, nil
}

// UpdateDocument replaces the body of an existing document. It reports
// false when no such document exists.
func (d *DB) UpdateDocument(collection, id string, body json.RawMessage) (bool, error) {
	if !KnownCollection(collection) {
		return false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if !isJSONObject(body) {
		return false, ErrInvalidDocument
	}
	res, err := d.conn.Exec(`
UPDATE documents SET body = ?, updatedAt = CURRENT_TIMESTAMP
WHERE collection = ? AND id = ?
`, string(body), collection, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (d *DB) DeleteDocument(collection, id string) (bool, error) {
	if !KnownCollection(collection) {
		return false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	res, err := d.conn.Exec(`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (d *DB) CountDocuments(collection string) (int, error) {
	if !KnownCollection(collection) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// ListDocuments pages through collection in insertion order.
func (d *DB) ListDocuments(collection string, offset, limit int) ([]Document, error) {
	if !KnownCollection(collection) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, collection, body, createdAt, updatedAt
FROM documents WHERE collection = ?
ORDER BY seq ASC LIMIT ? OFFSET ?
`, collection, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// SearchFields are the fields a keyword search looks at when the caller
// does not name one.
var SearchFields = map[string][]string{
	internal.CollectionBooksCSV:  {"title", "author", "publisher", "isbn"},
	internal.CollectionBooksMARC: {"title", "publisher", "identifiers", "callNumber"},
	internal.CollectionBooksONIX: {"title", "author", "publisher", "isbn"},
}

// SearchDocuments pages through documents where any of fields (dotted JSON
// paths) contains term, case-insensitively for ASCII, and returns the total
// match count. Array fields match on any element. A limit of 0 returns only
// the count.
func (d *DB) SearchDocuments(collection string, fields []string, term string, offset, limit int) ([]Document, int, error) {
	if !KnownCollection(collection) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if len(fields) == 0 {
		fields = SearchFields[collection]
	}
	if len(fields) == 0 {
		return nil, 0, fmt.Errorf("%w: no fields to search", ErrInvalidField)
	}
	offset, limit = max(offset, 0), max(limit, 0)

	pattern := "%" + escapeLike(term) + "%"
	clauses, fieldArgs, err := fieldClauses(fields, "CAST(json_extract(body, ?) AS TEXT) LIKE ? ESCAPE '\\'", func(path string) []any {
		return []any{path, pattern}
	})
	if err != nil {
		return nil, 0, err
	}
	where := "collection = ? AND (" + clauses + ")"
	args := append([]any{collection}, fieldArgs...)

	var total int
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit == 0 || offset >= total {
		return []Document{}, total, nil
	}
	rows, err := d.conn.Query(`
SELECT id, collection, body, createdAt, updatedAt
FROM documents WHERE `+where+`
ORDER BY seq ASC LIMIT ? OFFSET ?
`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	docs, err := scanDocuments(rows)
	return docs, total, err
}

// FilterMissing pages through documents where at least one of fields is
// absent, null or an empty string, and returns the total match count.
func (d *DB) FilterMissing(collection string, fields []string, offset, limit int) ([]Document, int, error) {
	if !KnownCollection(collection) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	where := "collection = ?"
	args := []any{collection}
	if len(fields) > 0 {
		clauses, fieldArgs, err := fieldClauses(fields, "COALESCE(json_extract(body, ?), '') = ''", func(path string) []any {
			return []any{path}
		})
		if err != nil {
			return nil, 0, err
		}
		where += " AND (" + clauses + ")"
		args = append(args, fieldArgs...)
	}

	var total int
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := d.conn.Query(`
SELECT id, collection, body, createdAt, updatedAt
FROM documents WHERE `+where+`
ORDER BY seq ASC LIMIT ? OFFSET ?
`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	docs, err := scanDocuments(rows)
	return docs, total, err
}

// fieldClauses ORs one clause per validated field. Field names never reach
// the SQL text; only their JSON paths are bound.
func fieldClauses(fields []string, clause string, bind func(path string) []any) (string, []any, error) {
	parts := make([]string, 0, len(fields))
	args := []any{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if !reFieldName.MatchString(f) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidField, f)
		}
		parts = append(parts, clause)
		args = append(args, bind("$."+f)...)
	}
	return strings.Join(parts, " OR "), args, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var doc Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.Collection, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Body = json.RawMessage(body)
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, family internal.SourceFamily, runErr error, timings map[string]float64, counts internal.RunCounts) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	status := "ok"
	var errMsg *string
	if runErr != nil {
		status = "failed"
		msg := runErr.Error()
		errMsg = &msg
	}
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, family, status, error, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?, ?)
`, traceID, string(family), status, errMsg, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, traceId, family, status, COALESCE(error, ''), timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&row.ID, &row.TraceID, &row.Family, &row.Status, &row.Error, &timingsJSON, &countsJSON, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

func escapeLike(s string) string {
	out := bytes.Buffer{}
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out.WriteRune('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}
