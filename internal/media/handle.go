package media

import (
	"strings"

	"github.com/google/uuid"
)

// Kind identifies what a handle refers to.
type Kind string

const (
	KindTab        Kind = "tab"
	KindMicrophone Kind = "microphone"
)

// Handle is an opaque reference to a resolved audio source. The controller
// mints handles; the worker turns them into live sources.
type Handle struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Source string `json:"source"`
}

// NewHandle mints a handle with a fresh identifier.
func NewHandle(kind Kind, source string) Handle {
	return Handle{ID: uuid.NewString(), Kind: kind, Source: strings.TrimSpace(source)}
}

// Valid reports whether h names a source of the expected kind.
func (h Handle) Valid(kind Kind) bool {
	return h.ID != "" && h.Kind == kind && h.Source != ""
}
