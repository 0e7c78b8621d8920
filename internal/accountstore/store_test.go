package accountstore

import (
	"context"
	"testing"

	"github.com/ircservices/saslbroker/internal/accountstore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    "file:" + t.Name() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	return store
}

func seedAccount(t *testing.T, s *Store, acct model.Account) {
	t.Helper()
	require.NoError(t, s.db.Create(&acct).Error)
}

func TestVerifyAcceptsCorrectPassword(t *testing.T) {
	s := newTestStore(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	seedAccount(t, s, model.Account{
		Name:        "alice",
		Credentials: []model.Credential{{Kind: "plain", Secret: string(hash)}},
	})

	ok, err := s.Verify(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	s := newTestStore(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	seedAccount(t, s, model.Account{
		Name:        "alice",
		Credentials: []model.Credential{{Kind: "plain", Secret: string(hash)}},
	})

	ok, err := s.Verify(context.Background(), "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUnknownAccountIsFalseNotError(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Verify(context.Background(), "ghost", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveFingerprintFindsBoundCertificate(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{
		Name:        "alice",
		Credentials: []model.Credential{{Kind: "external", Secret: "fp:abc123"}},
	})

	authcid, ok, err := s.ResolveFingerprint(context.Background(), "fp:abc123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", authcid)
}

func TestResolveFingerprintUnknownReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.ResolveFingerprint(context.Background(), "fp:nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupReturnsFrozenAndPrivileges(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{
		Name:       "admin",
		Frozen:     false,
		Class:      "staff",
		Privileges: []model.Privilege{{Kind: 1, Param: "helpdesk"}},
	})

	info, ok, err := s.Lookup(context.Background(), "admin")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, info.Frozen)
	assert.Equal(t, "staff", info.Class)
	assert.Equal(t, "admin", info.Name)
	assert.NotEmpty(t, info.EID)
	require.Len(t, info.Privileges, 1)
	assert.Equal(t, "helpdesk", info.Privileges[0].Param)
}

func TestCloakFallsBackToAsteriskWhenUnset(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{Name: "alice"})

	cloak, err := s.Cloak(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "*", cloak)
}

func TestCloakReturnsConfiguredValue(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{Name: "alice", Cloak: "user/alice"})

	cloak, err := s.Cloak(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "user/alice", cloak)
}

func TestCloakUnknownAccountFallsBackToAsterisk(t *testing.T) {
	s := newTestStore(t)
	cloak, err := s.Cloak(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "*", cloak)
}

func TestCompleteLoginUpdatesAccount(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{Name: "alice"})

	err := s.CompleteLogin(context.Background(), "42AAAAAAA", "alice")
	assert.NoError(t, err)
}

func TestAwaitsExternalAuthReflectsWaitAuthFlag(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{Name: "alice", WaitAuth: true})
	seedAccount(t, s, model.Account{Name: "bob"})

	waits, err := s.AwaitsExternalAuth(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, waits)

	waits, err = s.AwaitsExternalAuth(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, waits)
}

func TestAwaitsExternalAuthUnknownAccountIsFalse(t *testing.T) {
	s := newTestStore(t)
	waits, err := s.AwaitsExternalAuth(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, waits)
}

func TestAccountExistsReportsPresence(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, model.Account{Name: "alice"})

	exists, err := s.AccountExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.AccountExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}
