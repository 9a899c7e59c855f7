package session

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	seen := map[ID]struct{}{}
	for i := 0; i < 1000; i++ {
		id := GenerateID()

		b, err := base64.RawURLEncoding.DecodeString(id.String())
		assert.NoError(t, err)
		assert.Len(t, b, idLength)

		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}
