package undo

// Guard is a scoped suppression flag. It is held while at least one
// acquisition has not been released, so nested scopes compose.
//
// The zero value is ready to use.
type Guard struct {
	depth int
}

// Acquire raises the guard and returns the function that lowers it again.
// Calling the release function more than once has no further effect.
func (g *Guard) Acquire() (release func()) {
	g.depth++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.depth--
	}
}

// Active reports whether the guard is held.
func (g *Guard) Active() bool {
	return g != nil && g.depth > 0
}

// Do runs fn with the guard held and releases it even if fn panics.
func (g *Guard) Do(fn func() error) error {
	release := g.Acquire()
	defer release()
	return fn()
}
