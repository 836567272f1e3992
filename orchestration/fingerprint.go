package orchestration

import "github.com/halcyonlabs/patternflow/core"

// Fingerprint computes the execution-cache key for one step: the hex
// SHA-256 of the canonical serialization of the identifying tuple. The pack
// id and ledger hash are part of the tuple, so a restatement that produces a
// D1 pack keys differently from its D0 predecessor and stale entries simply
// never match. There is no invalidation API because none is needed.
func Fingerprint(patternID, version, stepName, capability string, args map[string]interface{}, packID, ledgerHash string) (string, error) {
	tuple := []interface{}{patternID, version, stepName, capability, args, packID, ledgerHash}
	return core.Hash256(tuple)
}
