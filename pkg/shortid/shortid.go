package shortid

import (
	"strings"

	"github.com/google/uuid"
)

const idLength = 10

// New returns a prefixed short identifier, e.g. "TEMP-1f9a04c2de".
// Entropy comes from a v4 UUID so collisions are as unlikely as the
// underlying generator allows.
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + raw[:idLength]
}
