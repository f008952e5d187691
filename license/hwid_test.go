package license_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdklabs/license-server/account"
	"github.com/vdklabs/license-server/license"
)

func TestAuthorizeHardware_BindsOnFirstUse(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")
	require.Nil(t, acc.HardwareID)

	binding, err := licenses.AuthorizeHardware(context.Background(), acc, "H1")
	require.NoError(t, err)
	assert.True(t, binding.NewlyBound)
	assert.Equal(t, "H1", binding.HardwareID)

	// The binding is persisted, not just held in memory.
	stored, err := accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HardwareID)
	assert.Equal(t, "H1", *stored.HardwareID)
}

func TestAuthorizeHardware_RejectsOtherMachine(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")

	_, err := licenses.AuthorizeHardware(context.Background(), acc, "H1")
	require.NoError(t, err)

	_, err = licenses.AuthorizeHardware(context.Background(), acc, "H2")
	assert.ErrorIs(t, err, license.ErrHardwareMismatch)

	// The bound machine keeps working.
	binding, err := licenses.AuthorizeHardware(context.Background(), acc, "H1")
	require.NoError(t, err)
	assert.False(t, binding.NewlyBound)
	assert.Equal(t, "H1", binding.HardwareID)
}

func TestAuthorizeHardware_LockIsPerAccount(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	alice := newTestAccount(t, accounts, "alice")
	bob := newTestAccount(t, accounts, "bob")

	// Two accounts may bind the same machine.
	_, err := licenses.AuthorizeHardware(context.Background(), alice, "H1")
	require.NoError(t, err)
	binding, err := licenses.AuthorizeHardware(context.Background(), bob, "H1")
	require.NoError(t, err)
	assert.True(t, binding.NewlyBound)
}

func TestResetHardware_AllowsRebinding(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")

	_, err := licenses.AuthorizeHardware(context.Background(), acc, "H1")
	require.NoError(t, err)

	require.NoError(t, licenses.ResetHardware(context.Background(), acc.ID))
	// Resetting an already-unbound account is fine too.
	require.NoError(t, licenses.ResetHardware(context.Background(), acc.ID))

	fresh, err := accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Nil(t, fresh.HardwareID)

	binding, err := licenses.AuthorizeHardware(context.Background(), fresh, "H2")
	require.NoError(t, err)
	assert.True(t, binding.NewlyBound)
	assert.Equal(t, "H2", binding.HardwareID)
}

func TestLauncherAuthenticate_FullFlow(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")
	key, err := licenses.IssueKey(context.Background(), "monthly", 30)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = licenses.Redeem(context.Background(), key.Code, acc.ID, now)
	require.NoError(t, err)

	decision, err := licenses.LauncherAuthenticate(context.Background(), "alice", "secret1", "H1", now)
	require.NoError(t, err)
	assert.True(t, decision.HasSubscription)
	assert.True(t, decision.Subscription.Active)
	require.NotNil(t, decision.Subscription.Type)
	assert.Equal(t, "monthly", *decision.Subscription.Type)
	assert.Equal(t, "H1", decision.HardwareID)
	assert.Equal(t, acc.ID, decision.Account.ID)
}

func TestLauncherAuthenticate_BadCredentialsBeforeBinding(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")

	// A wrong password never binds the machine.
	_, err := licenses.LauncherAuthenticate(context.Background(), "alice", "wrongpw", "H1", time.Now())
	assert.ErrorIs(t, err, account.ErrAuthFailure)

	stored, err := accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.HardwareID)
}

func TestLauncherAuthenticate_MismatchBeforeSubscription(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")
	key, err := licenses.IssueKey(context.Background(), "monthly", 30)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = licenses.Redeem(context.Background(), key.Code, acc.ID, now)
	require.NoError(t, err)

	_, err = licenses.LauncherAuthenticate(context.Background(), "alice", "secret1", "H1", now)
	require.NoError(t, err)

	// A valid subscription does not rescue a wrong machine.
	_, err = licenses.LauncherAuthenticate(context.Background(), "alice", "secret1", "H2", now)
	assert.ErrorIs(t, err, license.ErrHardwareMismatch)
}

func TestLauncherAuthenticate_NoSubscription(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	newTestAccount(t, accounts, "alice")

	// Authentication and binding succeed even without a subscription; the
	// decision just says so.
	decision, err := licenses.LauncherAuthenticate(context.Background(), "alice", "secret1", "H1", time.Now())
	require.NoError(t, err)
	assert.False(t, decision.HasSubscription)
	assert.False(t, decision.Subscription.Active)
	assert.Nil(t, decision.Subscription.Type)
	assert.Equal(t, "H1", decision.HardwareID)
}

func TestLauncherAuthenticate_ExpiredSubscription(t *testing.T) {
	licenses, accounts, _ := newServices(t)
	acc := newTestAccount(t, accounts, "alice")
	key, err := licenses.IssueKey(context.Background(), "monthly", 30)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = licenses.Redeem(context.Background(), key.Code, acc.ID, now)
	require.NoError(t, err)

	decision, err := licenses.LauncherAuthenticate(context.Background(), "alice", "secret1", "H1", now.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.False(t, decision.HasSubscription)
	require.NotNil(t, decision.Subscription.Type)
	assert.Equal(t, "monthly", *decision.Subscription.Type)
}
