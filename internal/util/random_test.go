package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRandomStringHasRequestedLength(t *testing.T) {
	assert.Len(t, GenerateRandomString(8), 8)
	assert.Len(t, GenerateRandomString(1), 1)
	assert.Len(t, GenerateRandomString(16), 16)
}

func TestGenerateRandomStringIsNotConstant(t *testing.T) {
	a := GenerateRandomString(16)
	b := GenerateRandomString(16)
	assert.NotEqual(t, a, b)
}
