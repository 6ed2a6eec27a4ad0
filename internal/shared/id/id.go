// Package id provides centralized ID generation for the chat client and relay.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: IDs created later always compare greater
//   - Prefixed types: Type-specific prefixes for debugging (conv_*, req_*, sock_*)
//   - Type safety: Separate types prevent ID misuse
//   - Monotonic entropy: IDs minted within the same millisecond still increase
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// ConversationID identifies a conversation thread
type ConversationID string

// RequestID identifies one outbound prompt request
type RequestID string

// SocketID identifies a relay-side socket session
type SocketID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	ConversationPrefix = "conv"
	RequestPrefix      = "req"
	SocketPrefix       = "sock"
)

// ============================================================================
// ULID Generator (Primary)
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by monotonic crypto entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewConversationID generates a new conversation ID
func NewConversationID() ConversationID {
	return ConversationID(Default().GenerateWithPrefix(ConversationPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSocketID generates a new socket ID
func NewSocketID() SocketID {
	return SocketID(Default().GenerateWithPrefix(SocketPrefix))
}

// ============================================================================
// Type Conversion and Validation
// ============================================================================

func (id ConversationID) String() string { return string(id) }
func (id RequestID) String() string      { return string(id) }
func (id SocketID) String() string       { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsValidPrefixed checks that id has the form prefix_ULID
func IsValidPrefixed(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && IsValid(rest)
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID, with or without a prefix
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
