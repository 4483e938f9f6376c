package chat

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/varunkrunch/opennotebook/internal/models"
)

// IDs generates temporary and client-confirmed message ids.
type IDs struct {
	seq atomic.Uint64
}

// Temp returns a new temporary id of the form optimistic:<seq>-<8 hex>.
func (g *IDs) Temp() string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%s%d-%s", models.TempPrefix, n, uuid.NewString()[:8])
}

// Message returns a new message id in the server's msg_<hex> form. It is sent
// with the request so the stored user message carries it.
func (g *IDs) Message() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsTemp reports whether id was produced by Temp.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, models.TempPrefix)
}
