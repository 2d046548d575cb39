package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// BaseFee is the inclusion fee per operation, before resource fees.
const BaseFee int64 = 100

// Build constructs an unsigned single-operation envelope for call from acct.
// The next sequence number is consumed here; timeout becomes the envelope's
// validity bound.
func Build(acct domain.Account, network string, call domain.LedgerCall, timeout time.Duration, now time.Time) domain.Envelope {
	return domain.Envelope{
		Source:   acct.ID,
		Sequence: acct.Sequence + 1,
		Fee:      BaseFee,
		Network:  network,
		MaxTime:  now.Add(timeout).Unix(),
		Call:     call,
	}
}

// Assemble applies a successful simulation's resource requirements to env.
func Assemble(env domain.Envelope, sim domain.SimulateResult) (domain.Envelope, error) {
	if !sim.Success() {
		return domain.Envelope{}, fmt.Errorf("ledger: simulation failed: %s", sim.Error)
	}
	env.ResourceFee = sim.MinResourceFee
	env.Fee = BaseFee + sim.MinResourceFee
	env.Footprint = sim.Footprint
	env.Signatures = nil
	return env, nil
}

// Hash returns the 32-byte digest a signer signs: keccak256 over the network
// passphrase and the envelope body without signatures.
func Hash(env domain.Envelope) ([]byte, error) {
	env.Signatures = nil
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode envelope: %w", err)
	}
	return ethcrypto.Keccak256([]byte(env.Network), body), nil
}

// Sign hashes env and appends signer's signature.
func Sign(env domain.Envelope, signer domain.Signer) (domain.Envelope, error) {
	digest, err := Hash(env)
	if err != nil {
		return domain.Envelope{}, err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return domain.Envelope{}, err
	}
	env.Signatures = append(append([]domain.Signature(nil), env.Signatures...), domain.Signature{
		PublicKey: signer.PublicKey(),
		Signature: hexutil.Encode(sig),
	})
	return env, nil
}
