package testutil

import (
	"crypto/ecdsa"
	"os"
	"testing"

	"ShareVault/internal/auth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TestNATSURL returns the NATS URL for integration tests.
func TestNATSURL() string {
	if url := os.Getenv("TEST_NATS_URL"); url != "" {
		return url
	}
	return "nats://localhost:4223"
}

// RequireIntegration skips the test if not running integration tests.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test (set INTEGRATION_TEST=1 to run)")
	}
}

// GenerateKey creates a fresh secp256k1 key and its address.
func GenerateKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// SignApproval signs an approval digest and returns the signature in
// the registry's v/r/s form.
func SignApproval(t *testing.T, key *ecdsa.PrivateKey, digest [32]byte) auth.Signature {
	t.Helper()
	raw, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	var sig auth.Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig
}
