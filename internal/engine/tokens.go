package engine

import "github.com/google/uuid"

// TokenGenerator issues operation tokens. A token ties together the log
// lines, the change notification, and any error of one operation.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues UUIDv7 tokens, which sort by creation time in logs.
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. It panics only if the system
// random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
