package runid

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKeepsSanitizedLabel(t *testing.T) {
	id := New("upload-resume")
	assert.True(t, strings.HasSuffix(id, "-upload-resume"), "got %q", id)
	assert.Len(t, id, PrefixLength+1+len("upload-resume"))
}

func TestNewSanitizesLabel(t *testing.T) {
	id := New("weird label!!/with  chars")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{5}-weird-labelwith-chars$`), id)
}

func TestNewEmptyLabelFallsBackToUUID(t *testing.T) {
	for _, label := range []string{"", "!!!", "---"} {
		id := New(label)
		assert.Len(t, id, 36, "label %q", label)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f-]{36}$`), id)
	}
}

func TestNewTruncatesLongLabels(t *testing.T) {
	id := New(strings.Repeat("a", 100))
	assert.Len(t, id, MaxLength)
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New("suite")
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}
