package collector

import (
	"fmt"

	"github.com/EternisAI/vconnector/internal/session"
)

// Absent marks a requested property the server did not return for an
// object. Err carries the server's reason when one was given.
type Absent struct {
	Err error
}

func (a Absent) String() string {
	if a.Err != nil {
		return fmt.Sprintf("<absent: %v>", a.Err)
	}
	return "<absent>"
}

// PropertyRecord holds one object's values keyed by the exact requested
// property paths. Every requested path is present as a key.
type PropertyRecord struct {
	Object session.ObjectRef
	Values map[string]any
}

// Get returns the value at path, or false if the path was absent or never
// requested.
func (r PropertyRecord) Get(path string) (any, bool) {
	v, ok := r.Values[path]
	if !ok {
		return nil, false
	}
	if _, absent := v.(Absent); absent {
		return nil, false
	}
	return v, true
}

func (r PropertyRecord) IsAbsent(path string) bool {
	_, absent := r.Values[path].(Absent)
	return absent
}
