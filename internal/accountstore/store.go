// Package accountstore persists login-capable accounts: credentials,
// freeze state, cloaks, and impersonation privileges. It is the broker's
// external collaborator for everything spec.md's Non-goals exclude from
// the session store -- accounts survive restarts, sessions never do.
package accountstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	glebarezsqlite "github.com/glebarez/sqlite"

	pgmigrate "github.com/ircservices/saslbroker/internal/accountstore/postgres"
	"github.com/ircservices/saslbroker/internal/accountstore/model"
	"github.com/ircservices/saslbroker/internal/policy"
)

// Driver selects the backing database engine.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config configures a Store.
type Config struct {
	Driver Driver
	DSN    string

	MaxOpenConns int
	MaxIdleConns int
}

// Store implements plain.Verifier, external.Resolver, policy.AccountLookup
// and finalizer.Directory against a GORM-backed SQL database, supporting
// both SQLite (embedded, for local/dev and unit tests) and Postgres
// (the primary production backend), exactly as the teacher's control
// plane store picks a dialector from configuration.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database, running Postgres migrations
// (or SQLite AutoMigrate) before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = glebarezsqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("accountstore: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("accountstore: connect: %w", err)
	}

	if cfg.Driver == DriverPostgres {
		if err := pgmigrate.RunMigrations(ctx, cfg.DSN, nil); err != nil {
			return nil, fmt.Errorf("accountstore: migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("accountstore: underlying db handle: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	} else {
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			return nil, fmt.Errorf("accountstore: automigrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// ErrUnknownAccount is returned where the interface contract permits a
// distinct "not found" signal beyond the plain bool.
var ErrUnknownAccount = errors.New("accountstore: unknown account")

func (s *Store) byName(ctx context.Context, name string) (*model.Account, error) {
	var acct model.Account
	err := s.db.WithContext(ctx).
		Preload("Credentials").
		Preload("Privileges").
		Where("name = ?", name).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// Verify satisfies plain.Verifier: it checks authcid's password against
// the account's "plain" credential, which stores a bcrypt hash.
func (s *Store) Verify(ctx context.Context, authcid, password string) (bool, error) {
	acct, err := s.byName(ctx, authcid)
	if errors.Is(err, ErrUnknownAccount) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, cred := range acct.Credentials {
		if cred.Kind != "plain" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(cred.Secret), []byte(password)) == nil {
			return true, nil
		}
	}
	return false, nil
}

// ResolveFingerprint satisfies external.Resolver: it looks up which
// account, if any, has bound the given certificate fingerprint as an
// "external" credential.
func (s *Store) ResolveFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	var cred model.Credential
	err := s.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = credentials.account_id").
		Where("credentials.kind = ? AND credentials.secret = ?", "external", fingerprint).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var acct model.Account
	if err := s.db.WithContext(ctx).First(&acct, cred.AccountID).Error; err != nil {
		return "", false, err
	}
	return acct.Name, true, nil
}

// Lookup satisfies policy.AccountLookup.
func (s *Store) Lookup(ctx context.Context, accountID string) (policy.AccountInfo, bool, error) {
	acct, err := s.byName(ctx, accountID)
	if errors.Is(err, ErrUnknownAccount) {
		return policy.AccountInfo{}, false, nil
	}
	if err != nil {
		return policy.AccountInfo{}, false, err
	}

	privileges := make([]policy.Privilege, len(acct.Privileges))
	for i, p := range acct.Privileges {
		privileges[i] = policy.Privilege{Kind: policy.PrivilegeKind(p.Kind), Param: p.Param}
	}

	return policy.AccountInfo{
		EID:        strconv.FormatUint(uint64(acct.ID), 10),
		Name:       acct.Name,
		Frozen:     acct.Frozen,
		Class:      acct.Class,
		Privileges: privileges,
	}, true, nil
}

// Cloak satisfies finalizer.Directory.
func (s *Store) Cloak(ctx context.Context, accountID string) (string, error) {
	acct, err := s.byName(ctx, accountID)
	if errors.Is(err, ErrUnknownAccount) {
		return "*", nil
	}
	if err != nil {
		return "", err
	}
	if acct.Cloak == "" {
		return "*", nil
	}
	return acct.Cloak, nil
}

// AwaitsExternalAuth satisfies finalizer.Directory: it reports the
// account's WaitAuth flag, the original's MU_WAITAUTH. When it is set,
// finalizer.Login returns no early SVSLOGIN directive, and none is sent
// when the user_add hook later completes the login.
func (s *Store) AwaitsExternalAuth(ctx context.Context, accountID string) (bool, error) {
	acct, err := s.byName(ctx, accountID)
	if errors.Is(err, ErrUnknownAccount) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.WaitAuth, nil
}

// AccountExists satisfies finalizer.Directory: it re-resolves accountID,
// used by CompleteUserAdd to detect an account dropped between Login and
// the arrival of user_add.
func (s *Store) AccountExists(ctx context.Context, accountID string) (bool, error) {
	_, err := s.byName(ctx, accountID)
	if errors.Is(err, ErrUnknownAccount) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CompleteLogin satisfies finalizer.Directory. The account store has no
// session state of its own to update; it only stamps UpdatedAt as a
// record of last-login activity.
func (s *Store) CompleteLogin(ctx context.Context, uid, accountID string) error {
	return s.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("name = ?", accountID).
		Update("updated_at", time.Now()).Error
}
