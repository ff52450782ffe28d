package auth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceMismatch    = errors.New("nonce mismatch")
)

// Signature is a secp256k1 signature in the (v, r, s) form wallets emit.
// V is 27 or 28.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

const (
	approveMessage = "Grant FULL access to funds held in ShareVault?"
	revokeMessage  = "Revoke access to ShareVault?"
)

var (
	domainTypeHash   = crypto.Keccak256Hash([]byte("EIP712Domain(string name,address verifyingContract)"))
	approvalTypeHash = crypto.Keccak256Hash([]byte("SetAgentApproval(string warning,address user,address agent,bool approved,uint256 nonce)"))
	registryName     = crypto.Keccak256Hash([]byte("ShareVault Registry V1"))
)

type pairKey struct {
	User  common.Address
	Agent common.Address
}

// Registry is the per-user table of agents approved to move a user's
// vault balance. Approvals arrive either from the user directly or as
// an off-chain signed message bound to this registry instance and to
// the user's current nonce.
//
// Not safe for concurrent use; all mutation is serialized by the core.
type Registry struct {
	instance    common.Address
	domain      [32]byte
	whitelisted map[common.Address]bool
	approvals   map[pairKey]bool
	nonces      map[common.Address]uint64
}

func NewRegistry(instance common.Address) *Registry {
	return &Registry{
		instance:    instance,
		domain:      domainSeparator(instance),
		whitelisted: make(map[common.Address]bool),
		approvals:   make(map[pairKey]bool),
		nonces:      make(map[common.Address]uint64),
	}
}

// domainSeparator binds signed approvals to one registry instance so a
// signature captured here can never authorize anything elsewhere.
func domainSeparator(instance common.Address) [32]byte {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		registryName.Bytes(),
		addressWord(instance),
	)
}

// WhitelistAgent flips the contract-level whitelist for an agent. This
// is the coarse gate set by deployment wiring; per-user approval is
// still required on top.
func (r *Registry) WhitelistAgent(agent common.Address, allowed bool) {
	if allowed {
		r.whitelisted[agent] = true
	} else {
		delete(r.whitelisted, agent)
	}
}

func (r *Registry) IsWhitelisted(agent common.Address) bool {
	return r.whitelisted[agent]
}

func (r *Registry) IsApproved(user, agent common.Address) bool {
	return r.approvals[pairKey{user, agent}]
}

func (r *Registry) Nonce(user common.Address) uint64 {
	return r.nonces[user]
}

// SetApproval applies a direct approval change: the caller must be the
// user, and grants require a whitelisted agent. Revocations are always
// allowed so a de-whitelisted agent can still be cut off.
func (r *Registry) SetApproval(caller, user, agent common.Address, approved bool) error {
	if caller != user {
		return fmt.Errorf("caller %s is not user %s: %w", caller.Hex(), user.Hex(), ErrUnauthorized)
	}
	if approved && !r.whitelisted[agent] {
		return fmt.Errorf("agent %s not whitelisted: %w", agent.Hex(), ErrUnauthorized)
	}
	r.approvals[pairKey{user, agent}] = approved
	return nil
}

// SetApprovalSigned applies an approval change authorized by an
// off-chain signature instead of a live call from the user. The signed
// payload binds (registry identity, user, agent, approved, nonce); the
// nonce must equal the user's current nonce and is consumed on success,
// so the same signed message can never be replayed.
func (r *Registry) SetApprovalSigned(user, agent common.Address, approved bool, nonce uint64, sig Signature) error {
	if approved && !r.whitelisted[agent] {
		return fmt.Errorf("agent %s not whitelisted: %w", agent.Hex(), ErrUnauthorized)
	}

	digest := r.ApprovalDigest(user, agent, approved, nonce)
	signer, err := recoverSigner(digest, sig)
	if err != nil {
		return fmt.Errorf("recover approval signer: %w", err)
	}
	if signer != user {
		return fmt.Errorf("signer %s is not user %s: %w", signer.Hex(), user.Hex(), ErrInvalidSignature)
	}
	if current := r.nonces[user]; nonce != current {
		return fmt.Errorf("signed nonce %d, current %d: %w", nonce, current, ErrNonceMismatch)
	}

	r.approvals[pairKey{user, agent}] = approved
	r.nonces[user] = nonce + 1
	return nil
}

// ApprovalDigest returns the 32-byte digest a user signs to approve or
// revoke an agent at the given nonce.
func (r *Registry) ApprovalDigest(user, agent common.Address, approved bool, nonce uint64) [32]byte {
	message := revokeMessage
	if approved {
		message = approveMessage
	}
	structHash := crypto.Keccak256Hash(
		approvalTypeHash.Bytes(),
		crypto.Keccak256(([]byte)(message)),
		addressWord(user),
		addressWord(agent),
		boolWord(approved),
		uintWord(nonce),
	)
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		r.domain[:],
		structHash.Bytes(),
	)
}

func recoverSigner(digest [32]byte, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("recovery id %d: %w", sig.V, ErrInvalidSignature)
	}
	var raw [65]byte
	copy(raw[0:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - 27

	pub, err := crypto.Ecrecover(digest[:], raw[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("%v: %w", err, ErrInvalidSignature)
	}
	// Uncompressed pubkey: 0x04 prefix, then 64 bytes of coordinates.
	return common.BytesToAddress(crypto.Keccak256(pub[1:])[12:]), nil
}

// ABI-style 32-byte words for hashing.

func addressWord(a common.Address) []byte {
	var w [32]byte
	copy(w[12:], a.Bytes())
	return w[:]
}

func boolWord(b bool) []byte {
	var w [32]byte
	if b {
		w[31] = 1
	}
	return w[:]
}

func uintWord(v uint64) []byte {
	var w [32]byte
	w[24] = byte(v >> 56)
	w[25] = byte(v >> 48)
	w[26] = byte(v >> 40)
	w[27] = byte(v >> 32)
	w[28] = byte(v >> 24)
	w[29] = byte(v >> 16)
	w[30] = byte(v >> 8)
	w[31] = byte(v)
	return w[:]
}

// RegistrySnapshot is a deep copy of all approval state.
type RegistrySnapshot struct {
	Whitelisted map[common.Address]bool
	Approvals   map[pairKey]bool
	Nonces      map[common.Address]uint64
}

func (r *Registry) Snapshot() *RegistrySnapshot {
	snap := &RegistrySnapshot{
		Whitelisted: make(map[common.Address]bool, len(r.whitelisted)),
		Approvals:   make(map[pairKey]bool, len(r.approvals)),
		Nonces:      make(map[common.Address]uint64, len(r.nonces)),
	}
	for k, v := range r.whitelisted {
		snap.Whitelisted[k] = v
	}
	for k, v := range r.approvals {
		snap.Approvals[k] = v
	}
	for k, v := range r.nonces {
		snap.Nonces[k] = v
	}
	return snap
}

func (r *Registry) Restore(snap *RegistrySnapshot) {
	r.whitelisted = make(map[common.Address]bool, len(snap.Whitelisted))
	r.approvals = make(map[pairKey]bool, len(snap.Approvals))
	r.nonces = make(map[common.Address]uint64, len(snap.Nonces))
	for k, v := range snap.Whitelisted {
		r.whitelisted[k] = v
	}
	for k, v := range snap.Approvals {
		r.approvals[k] = v
	}
	for k, v := range snap.Nonces {
		r.nonces[k] = v
	}
}
