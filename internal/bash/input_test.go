package bash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		bytes   []byte
		control bool
	}{
		{"literal text", "yes", []byte("yes\n"), false},
		{"interrupt token", "C-c", []byte{0x03}, true},
		{"eof token", "c-d", []byte{0x04}, true},
		{"suspend token", "C-z", []byte{0x1a}, true},
		{"token with spaces", "  c-c  ", []byte{0x03}, true},
		{"non-token passes literally", "c-x", []byte("c-x\n"), false},
		{"empty literal", "", []byte("\n"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ParseInput(tt.text)
			assert.Equal(t, tt.control, in.IsControl())
			assert.Equal(t, tt.bytes, in.Bytes())
		})
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(HistoryEntry{Seq: uint64(i)})
	}

	assert.Equal(t, 3, h.Len())
	recent := h.Recent(10)
	assert.Len(t, recent, 3)
	// Newest first, oldest two evicted.
	assert.Equal(t, uint64(5), recent[0].Seq)
	assert.Equal(t, uint64(4), recent[1].Seq)
	assert.Equal(t, uint64(3), recent[2].Seq)
}
