package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, log.Logger)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "shouty"})
	assert.Error(t, err)
}

func TestConstructorsNeverReturnNil(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewDevelopment())
	assert.NotNil(t, NewNop())
}
