package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixedIDs(t *testing.T) {
	sess := NewSessionID()
	req := NewRequestID()
	krn := NewKernelID()

	assert.True(t, strings.HasPrefix(sess.String(), "sess_"))
	assert.True(t, strings.HasPrefix(req.String(), "req_"))
	assert.True(t, strings.HasPrefix(krn.String(), "krn_"))

	assert.True(t, IsValid(sess.String()))
	assert.True(t, IsValid(req.String()))
	assert.True(t, IsValid(krn.String()))
}

func TestGenerateIsUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		u := g.Generate().String()
		assert.False(t, seen[u], "duplicate ULID %s", u)
		seen[u] = true
	}
}

func TestIsValidRejectsGarbage(t *testing.T) {
	assert.False(t, IsValid("sess_not-a-ulid"))
	assert.False(t, IsValid("no-prefix-here"))
	assert.False(t, IsValid(""))
}
