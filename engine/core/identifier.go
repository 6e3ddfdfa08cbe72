package core

import "github.com/google/uuid"

// Identifier tags long lived objects (scenes, resource arenas) so their log
// lines can be correlated across reloads.
type Identifier string

func NewIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

// Short returns the first block of the identifier, enough for log output.
func (id Identifier) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}
