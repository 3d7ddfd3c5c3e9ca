// Package path implements the opaque, equality- and hash-comparable
// identifier used throughout fiberize to name fibers and events.
//
// The core treats Path as something it only ever compares and hashes; it
// never inspects one. A plain comparable Go string already gives us both for
// free as a map key, so Path is defined directly on top of it instead of
// carrying a hand-rolled hash function.
package path

import "github.com/google/uuid"

// Path identifies a fiber or an event. Two Paths are equal, and hash
// identically, iff they were derived from the same name or the same
// anonymous identifier.
type Path string

// Named returns the Path for a globally-named event or fiber, e.g. "ping" or
// "init". Two calls with the same name always produce equal Paths.
func Named(name string) Path {
	return Path("named:" + name)
}

// NewAnonymous mints a fresh Path guaranteed not to collide with any other
// anonymous or named Path. Used to address a fiber that doesn't have (or
// doesn't need) a stable, human-chosen name, mirroring how the teacher's
// core.TaskID mints a fresh identifier per task.
func NewAnonymous() Path {
	return Path("anon:" + uuid.NewString())
}

// IsZero reports whether p is the zero value (no Path at all).
func (p Path) IsZero() bool {
	return p == ""
}

// String returns the textual form of the path.
func (p Path) String() string {
	return string(p)
}
