package auth_test

import (
	"testing"

	"ShareVault/internal/auth"
	"ShareVault/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000000100")
	agentAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	otherAgent   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newRegistry() *auth.Registry {
	r := auth.NewRegistry(registryAddr)
	r.WhitelistAgent(agentAddr, true)
	return r
}

func TestSetApproval_Direct(t *testing.T) {
	r := newRegistry()
	user := common.HexToAddress("0x0000000000000000000000000000000000000011")

	require.NoError(t, r.SetApproval(user, user, agentAddr, true))
	assert.True(t, r.IsApproved(user, agentAddr))

	require.NoError(t, r.SetApproval(user, user, agentAddr, false))
	assert.False(t, r.IsApproved(user, agentAddr))
}

func TestSetApproval_CallerMustBeUser(t *testing.T) {
	r := newRegistry()
	user := common.HexToAddress("0x0000000000000000000000000000000000000011")
	mallory := common.HexToAddress("0x0000000000000000000000000000000000000099")

	err := r.SetApproval(mallory, user, agentAddr, true)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.False(t, r.IsApproved(user, agentAddr))
}

func TestSetApproval_GrantRequiresWhitelist(t *testing.T) {
	r := newRegistry()
	user := common.HexToAddress("0x0000000000000000000000000000000000000011")

	err := r.SetApproval(user, user, otherAgent, true)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSetApproval_RevokeAlwaysAllowed(t *testing.T) {
	r := newRegistry()
	user := common.HexToAddress("0x0000000000000000000000000000000000000011")
	require.NoError(t, r.SetApproval(user, user, agentAddr, true))

	// De-whitelist, then the user can still revoke.
	r.WhitelistAgent(agentAddr, false)
	require.NoError(t, r.SetApproval(user, user, agentAddr, false))
	assert.False(t, r.IsApproved(user, agentAddr))
}

func TestSetApprovalSigned_Roundtrip(t *testing.T) {
	r := newRegistry()
	key, user := testutil.GenerateKey(t)

	digest := r.ApprovalDigest(user, agentAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	require.NoError(t, r.SetApprovalSigned(user, agentAddr, true, 0, sig))
	assert.True(t, r.IsApproved(user, agentAddr))
	assert.Equal(t, uint64(1), r.Nonce(user))
}

func TestSetApprovalSigned_Replay(t *testing.T) {
	r := newRegistry()
	key, user := testutil.GenerateKey(t)

	digest := r.ApprovalDigest(user, agentAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	require.NoError(t, r.SetApprovalSigned(user, agentAddr, true, 0, sig))

	err := r.SetApprovalSigned(user, agentAddr, true, 0, sig)
	assert.ErrorIs(t, err, auth.ErrNonceMismatch)
	assert.Equal(t, uint64(1), r.Nonce(user))
}

func TestSetApprovalSigned_WrongSigner(t *testing.T) {
	r := newRegistry()
	_, user := testutil.GenerateKey(t)
	malloryKey, _ := testutil.GenerateKey(t)

	digest := r.ApprovalDigest(user, agentAddr, true, 0)
	sig := testutil.SignApproval(t, malloryKey, digest)

	err := r.SetApprovalSigned(user, agentAddr, true, 0, sig)
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)
	assert.False(t, r.IsApproved(user, agentAddr))
}

func TestSetApprovalSigned_BadRecoveryID(t *testing.T) {
	r := newRegistry()
	key, user := testutil.GenerateKey(t)

	digest := r.ApprovalDigest(user, agentAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)
	sig.V = 31

	err := r.SetApprovalSigned(user, agentAddr, true, 0, sig)
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)
}

func TestSetApprovalSigned_DomainBinding(t *testing.T) {
	r1 := newRegistry()
	r2 := auth.NewRegistry(common.HexToAddress("0x0000000000000000000000000000000000000200"))
	r2.WhitelistAgent(agentAddr, true)

	key, user := testutil.GenerateKey(t)

	// A signature minted for r1 must not validate on r2.
	digest := r1.ApprovalDigest(user, agentAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	err := r2.SetApprovalSigned(user, agentAddr, true, 0, sig)
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)

	require.NoError(t, r1.SetApprovalSigned(user, agentAddr, true, 0, sig))
}

func TestSetApprovalSigned_GrantThenSignedRevoke(t *testing.T) {
	r := newRegistry()
	key, user := testutil.GenerateKey(t)

	grant := testutil.SignApproval(t, key, r.ApprovalDigest(user, agentAddr, true, 0))
	require.NoError(t, r.SetApprovalSigned(user, agentAddr, true, 0, grant))

	// Revoke signs the revoke message and the incremented nonce.
	revoke := testutil.SignApproval(t, key, r.ApprovalDigest(user, agentAddr, false, 1))
	require.NoError(t, r.SetApprovalSigned(user, agentAddr, false, 1, revoke))
	assert.False(t, r.IsApproved(user, agentAddr))
	assert.Equal(t, uint64(2), r.Nonce(user))
}

func TestSetApprovalSigned_GrantRequiresWhitelist(t *testing.T) {
	r := newRegistry()
	key, user := testutil.GenerateKey(t)

	digest := r.ApprovalDigest(user, otherAgent, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	err := r.SetApprovalSigned(user, otherAgent, true, 0, sig)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	// Rejected grants must not consume the nonce.
	assert.Equal(t, uint64(0), r.Nonce(user))
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := newRegistry()
	user := common.HexToAddress("0x0000000000000000000000000000000000000011")
	require.NoError(t, r.SetApproval(user, user, agentAddr, true))

	snap := r.Snapshot()

	require.NoError(t, r.SetApproval(user, user, agentAddr, false))
	r.WhitelistAgent(otherAgent, true)

	r.Restore(snap)
	assert.True(t, r.IsApproved(user, agentAddr))
	assert.False(t, r.IsWhitelisted(otherAgent))
}
