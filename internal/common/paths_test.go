package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"dot", ".", ""},
		{"root", "/", "/"},
		{"trailing slash", "/tmp/photos/", "/tmp/photos"},
		{"double slash", "/tmp//photos", "/tmp/photos"},
		{"relative", "photos/cats", "photos/cats"},
		{"dot segments", "/tmp/./photos/../archive", "/tmp/archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestParentAndBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/photos", ParentPath("/tmp/photos/cat.png"))
	assert.Equal(t, "cat.png", BaseName("/tmp/photos/cat.png"))
	assert.Equal(t, "", ParentPath("/"))
	assert.Equal(t, "/tmp/photos/cat.png", JoinLocation("/tmp/photos", "cat.png"))
}

func TestIsUnder(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUnder("/tmp/photos/cat.png", "/tmp/photos"))
	assert.True(t, IsUnder("/tmp/photos", "/tmp/photos"))
	assert.False(t, IsUnder("/tmp/photoshoot", "/tmp/photos"))
	assert.True(t, IsUnder("/anything", ""))
}

func TestReplacePrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/archive/cat.png",
		ReplacePrefix("/tmp/photos/cat.png", "/tmp/photos", "/tmp/archive"))
	assert.Equal(t, "/tmp/archive",
		ReplacePrefix("/tmp/photos", "/tmp/photos", "/tmp/archive"))
	// Sibling with a shared name prefix must not be rewritten.
	assert.Equal(t, "/tmp/photoshoot/a.png",
		ReplacePrefix("/tmp/photoshoot/a.png", "/tmp/photos", "/tmp/archive"))
}
