package testutil

// FixedRunID returns the same run ID every time.
//
// Unlike solver.FixedGenerator, which hands out IDs in sequence, this
// generator never runs out, so every run of a harness case archives under
// one predictable ID.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. An empty id means
// "harness-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "harness-run"
	}
	return &FixedRunID{id: id}
}

// Generate implements solver.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
