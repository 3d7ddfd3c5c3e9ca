package core

import "github.com/pawel-n/fiberize/path"

// CrashReport is the payload of the terminal event sent to a spawned
// fiber's parent when its body panics past recovery. The event's Path is
// the crashed fiber's own identity, exactly as if the crashed fiber had
// sent one last message on its own path before dying; a parent that
// bound a handler there to track a child it spawned learns about the
// crash the same way it would learn about anything else that child sent.
type CrashReport struct {
	Path      path.Path
	Recovered any
}
