package keypath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain key unchanged",
			input: "photos/2024/beach.jpg",
			want:  "photos/2024/beach.jpg",
		},
		{
			name:  "collapses repeated delimiters",
			input: "photos//2024///beach.jpg",
			want:  "photos/2024/beach.jpg",
		},
		{
			name:  "strips leading delimiter",
			input: "/photos/beach.jpg",
			want:  "photos/beach.jpg",
		},
		{
			name:  "trims whitespace per segment",
			input: " photos / 2024 /beach.jpg",
			want:  "photos/2024/beach.jpg",
		},
		{
			name:  "preserves trailing delimiter",
			input: "photos/2024/",
			want:  "photos/2024/",
		},
		{
			name:    "empty input rejected",
			input:   "",
			wantErr: true,
		},
		{
			name:    "whitespace-only input rejected",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "dot segment rejected",
			input:   "photos/./beach.jpg",
			wantErr: true,
		},
		{
			name:    "traversal rejected",
			input:   "photos/../../etc/passwd",
			wantErr: true,
		},
		{
			name:    "control character rejected",
			input:   "photos/bea\x00ch.jpg",
			wantErr: true,
		},
		{
			name:    "backslash rejected",
			input:   `photos\beach.jpg`,
			wantErr: true,
		},
		{
			name:    "overlong key rejected",
			input:   strings.Repeat("a/", 600) + "x",
			wantErr: true,
		},
		{
			name:    "overlong segment rejected",
			input:   strings.Repeat("a", 300),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalidPath(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Traversal inputs must never sanitize into a valid key that escapes
// the intended prefix.
func TestSanitizeNeverRepairsTraversal(t *testing.T) {
	inputs := []string{
		"../secret",
		"a/../../b",
		"..",
		"a/..",
		"./a",
	}
	for _, input := range inputs {
		_, err := Sanitize(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, errors.IsInvalidPath(err), "input %q", input)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"photos//2024/ beach .jpg",
		"/a/b/c/",
		"  x  //  y  ",
		"simple.txt",
		"",
	}
	for _, input := range inputs {
		once := Clean(input)
		twice := Clean(once)
		assert.Equal(t, once, twice, "Clean not idempotent for %q", input)
	}
}

func TestSanitizeFolder(t *testing.T) {
	got, err := SanitizeFolder("photos/2024")
	require.NoError(t, err)
	assert.Equal(t, "photos/2024/", got)

	got, err = SanitizeFolder("photos/2024/")
	require.NoError(t, err)
	assert.Equal(t, "photos/2024/", got)

	_, err = SanitizeFolder("..")
	require.Error(t, err)
}

func TestValidateNames(t *testing.T) {
	assert.True(t, ValidateFileName("report.pdf"))
	assert.True(t, ValidateFolderName("projects"))
	assert.False(t, ValidateFileName(""))
	assert.False(t, ValidateFileName(".."))
	assert.False(t, ValidateFolderName("a/b"))
	assert.False(t, ValidateFileName(strings.Repeat("x", 300)))
}

func TestHasWellFormedExtension(t *testing.T) {
	assert.True(t, HasWellFormedExtension("report.pdf"))
	assert.True(t, HasWellFormedExtension("archive.7z"))
	assert.False(t, HasWellFormedExtension("report"))
	assert.False(t, HasWellFormedExtension("report."))
	assert.False(t, HasWellFormedExtension("weird.exte nsion"))
	assert.False(t, HasWellFormedExtension("too.verylongextensn"))
}
