// Package session holds the identifiers handed out to engine.io sessions and
// to the sockets multiplexed over them.
package session

import (
	"crypto/rand"
	"encoding/base64"
)

const idLength = 15

type ID string

func (id ID) String() string { return string(id) }

// Room is the name of the room every socket joins for its own id.
func (id ID) Room() string { return string(id) }

// GenerateID returns a random url-safe id. It is a variable so tests can
// make ids predictable.
var GenerateID = func() ID {
	b := make([]byte, idLength)
	rand.Read(b)

	return ID(base64.RawURLEncoding.EncodeToString(b))
}
