package binaryrepo

import (
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name unchanged", "frame_001.png", "frame_001.png"},
		{"spaces replaced", "my frame.png", "my_frame.png"},
		{"path separators replaced", "../../etc/passwd", ".._.._etc_passwd"},
		{"unicode letters kept", "képkocka.png", "képkocka.png"},
		{"symbols replaced", "a+b=c?.png", "a_b_c_.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilenameNormalizes(t *testing.T) {
	// NFKC folds the ﬁ ligature into "fi".
	assert.Equal(t, "file.png", sanitizeFilename("ﬁle.png"))
}

func TestUniqueFilename(t *testing.T) {
	first := uniqueFilename("frame.png")
	second := uniqueFilename("frame.png")

	assert.NotEqual(t, first, second)
	assert.Equal(t, ".png", path.Ext(first))
	assert.True(t, strings.HasPrefix(first, "frame_"))
}

func TestUniqueFilenameWithoutExtension(t *testing.T) {
	name := uniqueFilename("weights")
	assert.True(t, strings.HasPrefix(name, "weights_"))
	assert.Empty(t, path.Ext(name))
}
