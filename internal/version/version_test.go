package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String("decode")
	assert.Contains(t, s, "decode v"+Version)
	assert.Contains(t, s, GitCommit)
}
