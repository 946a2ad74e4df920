package fsstate

// TargetKind distinguishes the production and test scopes of a module.
type TargetKind string

const (
	KindProduction TargetKind = "production"
	KindTest       TargetKind = "test"
)

// Target identifies one unit of compilation output, e.g. the production or
// test scope of a module. It is comparable and used directly as a map key.
type Target struct {
	ID   string
	Kind TargetKind
}

// Key returns a stable string identity for the target, suitable for
// persistent storage keys.
func (t Target) Key() string {
	return t.ID + "/" + string(t.Kind)
}

func (t Target) String() string {
	return t.Key()
}

// Chunk is a group of mutually dependent targets compiled together, enabling
// round-based regeneration. The caller hands chunks over already ordered.
type Chunk struct {
	Name    string
	Targets []Target
}
