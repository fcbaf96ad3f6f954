// Package postgres manages the application's database and role through an
// administrative connection on the local unix socket.
//
// All mutations follow create-if-absent semantics: existence is queried
// first, creation only happens when the resource is missing, and privilege
// statements are additive so they are safe to re-assert on every run.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultSocketDir is where Debian-family packages place the PostgreSQL
// unix socket.
const DefaultSocketDir = "/var/run/postgresql"

// Admin holds a superuser connection to the local PostgreSQL server.
type Admin struct {
	conn *pgx.Conn
}

// Open connects to the local server as the postgres superuser over the unix
// socket in socketDir.
func Open(ctx context.Context, socketDir string, port int) (*Admin, error) {
	if socketDir == "" {
		socketDir = DefaultSocketDir
	}
	dsn := fmt.Sprintf("host=%s port=%d user=postgres dbname=postgres", socketDir, port)
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres on %s: %w", socketDir, err)
	}
	return &Admin{conn: conn}, nil
}

// Close releases the administrative connection.
func (a *Admin) Close(ctx context.Context) error {
	return a.conn.Close(ctx)
}

// RoleExists reports whether a role with the given name exists.
func (a *Admin) RoleExists(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := a.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role %q: %w", role, err)
	}
	return exists, nil
}

// CreateRole creates a login role with the given password.
func (a *Admin) CreateRole(ctx context.Context, role, password string) error {
	// DDL cannot take bind parameters; identifiers are sanitized and the
	// password is escaped as a literal.
	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'",
		pgx.Identifier{role}.Sanitize(), escapeLiteral(password))
	if _, err := a.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create role %q: %w", role, err)
	}
	return nil
}

// DatabaseExists reports whether a database with the given name exists.
func (a *Admin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := a.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check database %q: %w", name, err)
	}
	return exists, nil
}

// CreateDatabase creates a database owned by the given role.
func (a *Admin) CreateDatabase(ctx context.Context, name, owner string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{owner}.Sanitize())
	if _, err := a.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	return nil
}

// ReassertPrivileges re-applies ownership and grants. Both statements are
// additive and safe to repeat, which makes privilege fixes self-healing
// across runs; nothing here ever narrows existing privileges.
func (a *Admin) ReassertPrivileges(ctx context.Context, name, owner string) error {
	db := pgx.Identifier{name}.Sanitize()
	role := pgx.Identifier{owner}.Sanitize()

	if _, err := a.conn.Exec(ctx, fmt.Sprintf("ALTER DATABASE %s OWNER TO %s", db, role)); err != nil {
		return fmt.Errorf("failed to set owner of %q: %w", name, err)
	}
	if _, err := a.conn.Exec(ctx, fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", db, role)); err != nil {
		return fmt.Errorf("failed to grant privileges on %q: %w", name, err)
	}
	return nil
}

// Ping verifies the administrative connection is usable.
func (a *Admin) Ping(ctx context.Context) error {
	return a.conn.Ping(ctx)
}

// escapeLiteral doubles single quotes for embedding a value in a SQL string
// literal. Generated passwords are alphanumeric, so this is belt and braces
// for operator-supplied values.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
