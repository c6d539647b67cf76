package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/config"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore reads and soft-deletes identities in a Roundcube database
// (users and identities tables).
type SQLStore struct {
	db       *sqlx.DB
	driver   string
	users    string
	idents   string
	mailHost string
	now      func() time.Time
}

func driverName(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "mysql", "mariadb":
		return "mysql", nil
	case "postgres", "postgresql", "pgsql":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "mssql", "sqlserver", "sqlsrv":
		return "sqlserver", nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", driver)
}

func OpenSQL(cfg config.SQLConfig) (*SQLStore, error) {
	driver, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLStore(db, cfg.TablePrefix, cfg.MailHost), nil
}

func NewSQLStore(db *sqlx.DB, tablePrefix, mailHost string) *SQLStore {
	return &SQLStore{
		db:       db,
		driver:   db.DriverName(),
		users:    tablePrefix + "users",
		idents:   tablePrefix + "identities",
		mailHost: mailHost,
		now:      time.Now,
	}
}

func (s *SQLStore) quote(ident string) string {
	switch s.driver {
	case "mysql":
		return "`" + ident + "`"
	case "sqlserver":
		return "[" + ident + "]"
	default:
		return `"` + ident + `"`
	}
}

func (s *SQLStore) userFilter(login string) (string, []any) {
	if s.mailHost == "" {
		return "u.username = ?", []any{login}
	}
	return "u.username = ? AND u.mail_host = ?", []any{login, s.mailHost}
}

func (s *SQLStore) ListIdentities(ctx context.Context, login string) ([]identity.StoredIdentity, error) {
	where, args := s.userFilter(login)
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT i.identity_id,
			COALESCE(i.email, '') AS email,
			COALESCE(i.name, '') AS name,
			COALESCE(i.organization, '') AS organization,
			COALESCE(i.%s, '') AS reply_to,
			COALESCE(i.bcc, '') AS bcc,
			COALESCE(i.signature, '') AS signature,
			i.html_signature
		FROM %s i
		INNER JOIN %s u ON u.user_id = i.user_id
		WHERE %s AND i.del <> 1
		ORDER BY i.standard DESC, i.identity_id`,
		s.quote("reply-to"), s.idents, s.users, where))

	var rows []identity.StoredIdentity
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list identities for %s: %w", login, err)
	}
	return rows, nil
}

// lockUserQuery selects the account row and holds it until the transaction
// ends, so concurrent deletes for one account count identities one at a time.
// sqlite needs no hint: OpenSQL pins it to a single connection.
func (s *SQLStore) lockUserQuery(where string) string {
	switch s.driver {
	case "mysql", "postgres":
		return fmt.Sprintf("SELECT u.user_id FROM %s u WHERE %s FOR UPDATE", s.users, where)
	case "sqlserver":
		return fmt.Sprintf("SELECT u.user_id FROM %s u WITH (UPDLOCK, HOLDLOCK) WHERE %s", s.users, where)
	default:
		return fmt.Sprintf("SELECT u.user_id FROM %s u WHERE %s", s.users, where)
	}
}

// DeleteIdentity flags the identity as deleted, the way Roundcube does. The
// last remaining identity of an account is never deleted.
func (s *SQLStore) DeleteIdentity(ctx context.Context, login, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	where, args := s.userFilter(login)
	var userID int64
	err = tx.GetContext(ctx, &userID, tx.Rebind(s.lockUserQuery(where)), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s: %w", login, ErrIdentityNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve user %s: %w", login, err)
	}

	var count int
	err = tx.GetContext(ctx, &count, tx.Rebind(fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE user_id = ? AND del <> 1", s.idents)), userID)
	if err != nil {
		return fmt.Errorf("failed to count identities: %w", err)
	}
	if count <= 1 {
		return ErrLastIdentity
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf(
		"UPDATE %s SET del = 1, changed = ? WHERE user_id = ? AND identity_id = ? AND del <> 1", s.idents)),
		s.now().UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrIdentityNotFound)
	}

	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
