package engine

import "github.com/roach88/habitsync/internal/model"

// statePath tracks the state ids on the current recursion path of one
// state score computation.
//
// A state that references itself, directly or through nested states,
// would otherwise recurse forever. Entering a state that is already on
// the path is a revisit, and a revisit contributes 0 to its parent's mean.
//
// Example cycle:
//
//	mind → focus → mind  ← revisit, contributes 0
//
// Only the current path is tracked, not every state seen so far: a
// diamond (A → B, A → C, B → D, C → D) legitimately visits D twice.
//
// Not safe for concurrent use; each computation owns its own path.
type statePath struct {
	onPath map[model.EntityID]bool
}

func newStatePath() *statePath {
	return &statePath{onPath: make(map[model.EntityID]bool)}
}

// Enter pushes id onto the path. Returns false if id is already on it.
func (p *statePath) Enter(id model.EntityID) bool {
	if p.onPath[id] {
		return false
	}
	p.onPath[id] = true
	return true
}

// Leave pops id from the path.
func (p *statePath) Leave(id model.EntityID) {
	delete(p.onPath, id)
}

// Depth returns the number of states on the path.
func (p *statePath) Depth() int {
	return len(p.onPath)
}
