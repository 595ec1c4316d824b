// Package ir defines the compiled representation shared by every layer of
// the emulator: the sealed value types canister cells may hold, compiled
// canister specs (cells, methods, op lists), principal identities, and the
// journal record types the store persists.
//
// All identity computation goes through canonical JSON (RFC 8785) so that
// record IDs are stable across runs and replays.
package ir
