package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/conduit-lang/docrud/internal/orm/document"
)

// Dialect selects placeholder syntax and DDL for the SQL document store
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// SQLStore keeps every collection in one relational table of BSON blobs.
// Queries run through the in-process engine after loading the collection.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// OpenSQL opens a database, creates the document table and returns the store
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	s := NewSQLStore(db, dialect, table)
	if err := s.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect, table string) *SQLStore {
	if table == "" {
		table = "documents"
	}
	return &SQLStore{db: db, dialect: dialect, table: table}
}

// Initialize ensures the document table exists
func (s *SQLStore) Initialize(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	seq BIGSERIAL PRIMARY KEY,
	collection VARCHAR(255) NOT NULL,
	id CHAR(24) NOT NULL,
	data BYTEA NOT NULL,
	UNIQUE (collection, id)
)`, s.table)
	default:
		query = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data BLOB NOT NULL,
	UNIQUE (collection, id)
)`, s.table)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize document table: %w", err)
	}
	return nil
}

// Ping implements Store
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// FindOne implements Store
func (s *SQLStore) FindOne(ctx context.Context, collection string, id bson.ObjectID) (document.Document, error) {
	query := s.rebind(fmt.Sprintf("SELECT data FROM %s WHERE collection = ? AND id = ?", s.table))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, collection, id.Hex()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return document.Unmarshal(data)
}

// Find implements Store
func (s *SQLStore) Find(ctx context.Context, collection string, q Query) ([]document.Document, error) {
	query := s.rebind(fmt.Sprintf("SELECT data FROM %s WHERE collection = ? ORDER BY seq ASC", s.table))

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := document.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return Apply(docs, q)
}

// Insert implements Store
func (s *SQLStore) Insert(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	query := s.rebind(fmt.Sprintf("INSERT INTO %s (collection, id, data) VALUES (?, ?, ?)", s.table))
	if _, err := s.db.ExecContext(ctx, query, collection, id.Hex(), data); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateID, id.Hex(), collection)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Save implements Store
func (s *SQLStore) Save(ctx context.Context, collection string, doc document.Document) error {
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	query := s.rebind(fmt.Sprintf("UPDATE %s SET data = ? WHERE collection = ? AND id = ?", s.table))
	result, err := s.db.ExecContext(ctx, query, data, collection, id.Hex())
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNoDocument, id.Hex(), collection)
	}
	return nil
}

// Remove implements Store
func (s *SQLStore) Remove(ctx context.Context, collection string, id bson.ObjectID) (bool, error) {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE collection = ? AND id = ?", s.table))
	result, err := s.db.ExecContext(ctx, query, collection, id.Hex())
	if err != nil {
		return false, fmt.Errorf("failed to remove document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// Close implements Store
func (s *SQLStore) Close(ctx context.Context) error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
