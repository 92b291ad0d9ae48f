package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"json", "spatial"}, splitList(" json, ,spatial,"))
	assert.Empty(t, splitList(""))
}
