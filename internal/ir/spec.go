package ir

// CanisterSpec is a compiled canister definition: the named state cells
// it owns (with install-time initial values) and its entry-point methods.
type CanisterSpec struct {
	Name    string       `json:"name"`
	Cells   Record       `json:"cells"`
	Methods []MethodSpec `json:"methods"`
}

// Method returns the named method spec, or false if absent.
func (s *CanisterSpec) Method(name string) (MethodSpec, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// CanonicalRecord renders the spec as a Record suitable for canonical
// JSON encoding. SpecHash and compiled-IR output both go through it so
// the hash always covers exactly what was emitted.
func (s *CanisterSpec) CanonicalRecord() Record {
	methods := make(Vec, 0, len(s.Methods))
	for _, m := range s.Methods {
		ops := make(Vec, 0, len(m.Ops))
		for _, op := range m.Ops {
			ops = append(ops, op.record())
		}
		methods = append(methods, Record{
			"name":             Text(m.Name),
			"kind":             Text(string(m.Kind)),
			"reject_anonymous": Bool(m.RejectAnonymous),
			"ops":              ops,
		})
	}
	return Record{
		"name":    Text(s.Name),
		"cells":   s.Cells,
		"methods": methods,
	}
}

// digest produces a canonical digest of the spec for SpecHash.
func (s *CanisterSpec) digest() (string, error) {
	canonical, err := MarshalCanonical(s.CanonicalRecord())
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// MethodKind distinguishes read-only queries from state-mutating updates.
type MethodKind string

const (
	// MethodQuery is read-only: it never reaches a commit checkpoint and
	// may not contain mutating or suspending ops.
	MethodQuery MethodKind = "query"
	// MethodUpdate may mutate cells and issue inter-canister calls.
	MethodUpdate MethodKind = "update"
)

// ValidMethodKinds lists the accepted method kinds.
var ValidMethodKinds = map[MethodKind]bool{
	MethodQuery:  true,
	MethodUpdate: true,
}

// MethodSpec is a compiled entry point: an ordered op list executed as
// one or more segments split at suspending call ops.
type MethodSpec struct {
	Name            string     `json:"name"`
	Kind            MethodKind `json:"kind"`
	RejectAnonymous bool       `json:"reject_anonymous,omitempty"`
	Ops             []Op       `json:"ops"`
}
