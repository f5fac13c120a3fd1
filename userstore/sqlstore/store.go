// Package sqlstore is a user store over a relational users table.
//
// Queries are built from configured identifiers only: the table name, the
// username column and an allow-list of extra columns. Every identifier is
// double-quoted and every value is bound as a $n parameter. Lookups select
// all columns; the resulting record keeps column order and includes the
// password hash, which the orchestrator strips before it reaches a session.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/multiauth/password"
	"github.com/MrEthical07/multiauth/user"
	"github.com/MrEthical07/multiauth/userstore"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// DBTX is the subset of *sql.DB and *sql.Tx the store uses.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config describes the users table.
type Config struct {
	// Table defaults to "users".
	Table string
	// UsernameField defaults to "username".
	UsernameField string
	// AllowedFields lists the columns accepted in conditions and
	// registration data.
	AllowedFields []string
	// Conditions are applied to every lookup, e.g. active = 1. Per-call
	// conditions are ANDed with them and can never lift one.
	Conditions user.Conditions
	// Password selects the hash algorithm for new users. The zero value
	// means password.DefaultConfig.
	Password password.Config
}

// Store implements the user store contract over DBTX.
type Store struct {
	db            DBTX
	table         string
	usernameField string
	allowed       userstore.Fields
	conditions    user.Conditions
	hasher        *password.Hasher
}

// New validates cfg and returns a Store.
func New(db DBTX, cfg Config) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	if cfg.Table == "" {
		cfg.Table = "users"
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = user.DefaultUsernameField
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DefaultConfig()
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:            db,
		table:         cfg.Table,
		usernameField: cfg.UsernameField,
		allowed:       userstore.NewFields(cfg.AllowedFields...),
		conditions:    append(user.Conditions(nil), cfg.Conditions...),
		hasher:        hasher,
	}
	if err := s.allowed.CheckConditions(s.conditions); err != nil {
		return nil, err
	}
	return s, nil
}

// UsernameField returns the configured username column.
func (s *Store) UsernameField() string {
	return s.usernameField
}

// VerifyUser looks up username with the store and call conditions and
// checks password against the stored hash. Any mismatch returns
// userstore.ErrInvalidCredentials.
func (s *Store) VerifyUser(ctx context.Context, username, pass string, conds user.Conditions) (user.Record, error) {
	if err := s.allowed.CheckConditions(conds); err != nil {
		return user.Record{}, err
	}

	rec, found, err := s.lookup(ctx, username, user.Merge(s.conditions, conds))
	if err != nil {
		return user.Record{}, err
	}
	if !found {
		s.hasher.VerifyMissing(pass)
		return user.Record{}, userstore.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pass, rec.String(user.PasswordField))
	if err != nil {
		return user.Record{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return user.Record{}, userstore.ErrInvalidCredentials
	}
	return rec, nil
}

// Register inserts a new user after checking the username is free. The
// check and the insert are not atomic; the table's unique constraint turns a
// lost race into userstore.ErrAlreadyExists as well.
func (s *Store) Register(ctx context.Context, username, pass string, data user.Record) error {
	if data.Has(s.usernameField) {
		return fmt.Errorf("%w: %q", userstore.ErrFieldNotAllowed, s.usernameField)
	}
	if err := s.allowed.CheckRecord(data); err != nil {
		return err
	}

	exists, err := s.exists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return userstore.ErrAlreadyExists
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return err
	}

	columns := []string{quoteIdent(s.usernameField), quoteIdent(user.PasswordField)}
	args := []any{username, hash}
	for _, name := range data.Fields() {
		v, _ := data.Get(name)
		columns = append(columns, quoteIdent(name))
		args = append(args, v)
	}

	query := "INSERT INTO " + quoteIdent(s.table) +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders(1, len(args)) + ")"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return userstore.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// HashPassword hashes with the configured algorithm.
func (s *Store) HashPassword(pass string) (string, error) {
	return s.hasher.Hash(pass)
}

// VerifyPassword checks pass against hash in constant time.
func (s *Store) VerifyPassword(pass, hash string) (bool, error) {
	return s.hasher.Verify(pass, hash)
}

func (s *Store) lookup(ctx context.Context, username string, conds user.Conditions) (user.Record, bool, error) {
	where, args := s.where(username, conds)
	query := "SELECT * FROM " + quoteIdent(s.table) + " WHERE " + where + " LIMIT 1"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return user.Record{}, false, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return user.Record{}, false, fmt.Errorf("db error: %w", err)
		}
		return user.Record{}, false, nil
	}

	rec, err := scanRecord(rows)
	if err != nil {
		return user.Record{}, false, fmt.Errorf("db error: %w", err)
	}
	return rec, true, nil
}

func (s *Store) exists(ctx context.Context, username string) (bool, error) {
	query := "SELECT 1 FROM " + quoteIdent(s.table) + " WHERE " + quoteIdent(s.usernameField) + " = $1 LIMIT 1"

	var one int
	err := s.db.QueryRowContext(ctx, query, username).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (s *Store) where(username string, conds user.Conditions) (string, []any) {
	clauses := []string{quoteIdent(s.usernameField) + " = $1"}
	args := []any{username}
	for _, c := range conds {
		if c.Field == s.usernameField {
			continue
		}
		args = append(args, c.Value)
		clauses = append(clauses, quoteIdent(c.Field)+" = $"+strconv.Itoa(len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanRecord(rows *sql.Rows) (user.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return user.Record{}, err
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return user.Record{}, err
	}

	var rec user.Record
	for i, name := range columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		rec.Set(name, v)
	}
	return rec, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}
