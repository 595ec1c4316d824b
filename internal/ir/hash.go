package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration without colliding with old IDs.
const (
	DomainCall       = "cansim/call/v1"
	DomainSegment    = "cansim/segment/v1"
	DomainCheckpoint = "cansim/checkpoint/v1"
	DomainWrite      = "cansim/write/v1"
	DomainOutcome    = "cansim/outcome/v1"
	DomainSpec       = "cansim/spec/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain || 0x00 || data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CallID computes the content-addressed ID of a call. Stable across
// restarts and replays given the same token, target, args, and seq.
//
// The caller principal is intentionally excluded: the ID names what was
// invoked, not who invoked it. The principal is still stored on the call
// record for audit.
func CallID(token string, method MethodRef, args Record, seq int64) (string, error) {
	obj := Record{
		"token":  Text(token),
		"method": Text(string(method)),
		"args":   args,
		"seq":    Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CallID: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// SegmentID computes the content-addressed ID of an execution segment.
// Derived purely from the owning call and the segment's position, so the
// same call always yields the same segment IDs on replay.
func SegmentID(callID string, index int) (string, error) {
	obj := Record{
		"call_id": Text(callID),
		"index":   Int(int64(index)),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SegmentID: %w", err)
	}
	return hashWithDomain(DomainSegment, canonical), nil
}

// CheckpointID computes the content-addressed ID of a commit checkpoint.
func CheckpointID(segmentID, reason string, seq int64) (string, error) {
	obj := Record{
		"segment_id": Text(segmentID),
		"reason":     Text(reason),
		"seq":        Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CheckpointID: %w", err)
	}
	return hashWithDomain(DomainCheckpoint, canonical), nil
}

// OutcomeID computes the content-addressed ID of a call outcome,
// linked to the call it resolves.
func OutcomeID(callID, outcomeCase string, reply Record, seq int64) (string, error) {
	obj := Record{
		"call_id": Text(callID),
		"case":    Text(outcomeCase),
		"reply":   reply,
		"seq":     Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OutcomeID: %w", err)
	}
	return hashWithDomain(DomainOutcome, canonical), nil
}

// SpecHash computes a digest over a set of compiled canister specs.
// Journal records carry it so a trace can be tied to the exact specs
// that produced it.
func SpecHash(specs []CanisterSpec) (string, error) {
	names := make(Vec, 0, len(specs))
	for _, spec := range specs {
		digest, err := spec.digest()
		if err != nil {
			return "", fmt.Errorf("SpecHash: canister %q: %w", spec.Name, err)
		}
		names = append(names, Text(digest))
	}
	canonical, err := MarshalCanonical(names)
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}
