package batch_test

import (
	"testing"

	"ShareVault/internal/auth"
	"ShareVault/internal/batch"
	"ShareVault/internal/ledger"
	"ShareVault/internal/testutil"
	"ShareVault/internal/token"
	"ShareVault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000000100")
	vaultAddr    = common.HexToAddress("0x0000000000000000000000000000000000000101")
	clientAddr   = common.HexToAddress("0x0000000000000000000000000000000000000102")
	usdt         = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

type fixture struct {
	tokens   *token.Set
	registry *auth.Registry
	vault    *vault.Vault
	client   *ledger.Client
	executor *batch.Executor
	ledger   *token.Ledger
}

// checkpointer mirrors the engine's checkpoint wiring for tests.
type checkpointer struct{ f *fixture }

func (c *checkpointer) Checkpoint() func() {
	tokenSnap := c.f.tokens.Snapshot()
	registrySnap := c.f.registry.Snapshot()
	vaultSnap := c.f.vault.Snapshot()
	clientSnap := c.f.client.Snapshot()
	return func() {
		c.f.tokens.Restore(tokenSnap)
		c.f.registry.Restore(registrySnap)
		c.f.vault.Restore(vaultSnap)
		c.f.client.Restore(clientSnap)
	}
}

func newFixture(t *testing.T, funded common.Address) *fixture {
	t.Helper()
	f := &fixture{}
	f.tokens = token.NewSet()
	f.ledger = token.NewLedger("USDT")
	f.ledger.Mint(funded, 1_000_000)
	f.tokens.Register(usdt, f.ledger)

	f.registry = auth.NewRegistry(registryAddr)
	f.vault = vault.New(vaultAddr, f.tokens, f.registry)
	f.client = ledger.NewClient(clientAddr, f.vault, f.registry)
	f.registry.WhitelistAgent(clientAddr, true)
	f.ledger.Approve(funded, vaultAddr, 1_000_000)

	f.executor = batch.NewExecutor(f.vault, f.client, &checkpointer{f})
	return f
}

func TestStrictBatch_ApprovalThenDeposit(t *testing.T) {
	key, user := testutil.GenerateKey(t)
	f := newFixture(t, user)

	digest := f.registry.ApprovalDigest(user, clientAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	ops := []batch.Operation{
		{Type: batch.OpSetVaultApproval, User: user, Approved: true, Nonce: 0, Signature: sig},
		{Type: batch.OpClientDeposit, Token: usdt, Amount: 1000},
	}

	results, err := f.executor.Execute(user, ops, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.Equal(t, int64(0), results[1].EntryID)

	entry, err := f.client.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, f.vault.ToShare(usdt, 1000, true), entry.DepositedShares)
	assert.Equal(t, int64(999_000), f.ledger.BalanceOf(user))
	assert.True(t, f.registry.IsApproved(user, clientAddr))
}

func TestStrictBatch_InvalidSignatureRollsBack(t *testing.T) {
	key, user := testutil.GenerateKey(t)
	_, stranger := testutil.GenerateKey(t)
	f := newFixture(t, user)

	// Signature binds the wrong user.
	digest := f.registry.ApprovalDigest(stranger, clientAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	ops := []batch.Operation{
		{Type: batch.OpSetVaultApproval, User: user, Approved: true, Nonce: 0, Signature: sig},
		{Type: batch.OpClientDeposit, Token: usdt, Amount: 1000},
	}

	results, err := f.executor.Execute(user, ops, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)
	assert.ErrorIs(t, err, batch.ErrBatchOperationFailed)

	var opErr *batch.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 0, opErr.Index)
	assert.Equal(t, batch.OpSetVaultApproval, opErr.Op)

	// The batch stopped at the failing op.
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)

	// No state survived.
	assert.Equal(t, int64(0), f.client.TotalDeposits())
	assert.Equal(t, int64(1_000_000), f.ledger.BalanceOf(user))
	assert.False(t, f.registry.IsApproved(user, clientAddr))
	assert.Equal(t, uint64(0), f.registry.Nonce(user))
}

func TestStrictBatch_MidBatchFailureRestoresEarlierOps(t *testing.T) {
	key, user := testutil.GenerateKey(t)
	f := newFixture(t, user)

	digest := f.registry.ApprovalDigest(user, clientAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	ops := []batch.Operation{
		{Type: batch.OpSetVaultApproval, User: user, Approved: true, Nonce: 0, Signature: sig},
		{Type: batch.OpClientDeposit, Token: usdt, Amount: 1000},
		// Withdraws more than the entry holds.
		{Type: batch.OpClientWithdraw, EntryID: 0, Amount: 2000},
	}

	results, err := f.executor.Execute(user, ops, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientEntryBalance)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.False(t, results[2].OK)

	// The succeeded approval and deposit were rolled back too.
	assert.Equal(t, int64(0), f.client.TotalDeposits())
	assert.Equal(t, int64(1_000_000), f.ledger.BalanceOf(user))
	assert.False(t, f.registry.IsApproved(user, clientAddr))
}

func TestBestEffortBatch_ContinuesPastFailure(t *testing.T) {
	key, user := testutil.GenerateKey(t)
	f := newFixture(t, user)

	digest := f.registry.ApprovalDigest(user, clientAddr, true, 0)
	sig := testutil.SignApproval(t, key, digest)

	ops := []batch.Operation{
		{Type: batch.OpSetVaultApproval, User: user, Approved: true, Nonce: 0, Signature: sig},
		// Fails: zero amount.
		{Type: batch.OpClientDeposit, Token: usdt, Amount: 0},
		{Type: batch.OpClientDeposit, Token: usdt, Amount: 500},
	}

	results, err := f.executor.Execute(user, ops, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].OK)

	// The failed op left nothing behind; the rest stuck.
	assert.Equal(t, int64(1), f.client.TotalDeposits())
	assert.Equal(t, int64(999_500), f.ledger.BalanceOf(user))
}

func TestBatch_VaultOpsRunAsCaller(t *testing.T) {
	_, user := testutil.GenerateKey(t)
	f := newFixture(t, user)
	other := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	ops := []batch.Operation{
		{Type: batch.OpDeposit, Token: usdt, From: user, To: user, Amount: 1000},
		{Type: batch.OpTransfer, Token: usdt, From: user, To: other, Shares: 400},
		{Type: batch.OpWithdraw, Token: usdt, From: user, To: user, Amount: 600},
	}

	results, err := f.executor.Execute(user, ops, true)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int64(1000), results[0].SharesOut)
	assert.Equal(t, int64(600), results[2].AmountOut)
	assert.Equal(t, int64(400), f.vault.BalanceOf(usdt, other))
	assert.Equal(t, int64(0), f.vault.BalanceOf(usdt, user))
}

func TestBatch_UnknownOpType(t *testing.T) {
	_, user := testutil.GenerateKey(t)
	f := newFixture(t, user)

	results, err := f.executor.Execute(user, []batch.Operation{{Type: "siphon"}}, true)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
}
