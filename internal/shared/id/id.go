// Package id provides ULID-based identifier generation for the runtime.
//
// Identifiers are prefixed per kind (sess_*, req_*, krn_*) so logs stay
// readable and a value can never be mistaken for the wrong kind.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a terminal session.
type SessionID string

// RequestID identifies an API request.
type RequestID string

// KernelID identifies a Python kernel connection.
type KernelID string

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
	KernelPrefix  = "krn"
)

// Generator produces ULIDs from a shared entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source, useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewKernelID generates a new kernel ID.
func NewKernelID() KernelID {
	return KernelID(Default().GenerateWithPrefix(KernelPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id KernelID) String() string  { return string(id) }

// IsValid reports whether s carries a parseable ULID after its prefix.
func IsValid(s string) bool {
	for i := range s {
		if s[i] == '_' {
			s = s[i+1:]
			break
		}
	}
	_, err := ulid.Parse(s)
	return err == nil
}
