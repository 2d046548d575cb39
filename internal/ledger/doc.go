// Package ledger talks to the contract network: it builds and hashes call
// envelopes, encodes typed contract arguments, decodes contract return
// values into canonical types, and implements domain.LedgerRPC over
// JSON-RPC 2.0.
package ledger
