package delegation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootTrie_Longest(t *testing.T) {
	trie := newRootTrie()
	trie.Add(".", 1)
	trie.Add("test", 2)
	trie.Add("sub.test.", 3)
	trie.Add("Example.COM", 4)

	tests := []struct {
		name       string
		query      string
		wantID     int64
		wantDomain string
	}{
		{"exact root", ".", 1, "."},
		{"unknown tld falls back to root", "www.org", 1, "."},
		{"exact domain", "test", 2, "test"},
		{"child of domain", "a.test", 2, "test"},
		{"deeper server wins", "a.sub.test", 3, "sub.test"},
		{"exact deeper server", "sub.test.", 3, "sub.test"},
		{"similar label does not match", "notsub.test", 2, "test"},
		{"case insensitive", "WWW.example.com", 4, "example.com"},
		{"missing middle label", "com", 1, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, domain, ok := trie.Longest(tt.query)
			assert.True(t, ok)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantDomain, domain)
		})
	}
	assert.Equal(t, 4, trie.Size())
}

func TestRootTrie_NoRoot(t *testing.T) {
	trie := newRootTrie()
	trie.Add("test", 2)

	_, _, ok := trie.Longest("example.com")
	assert.False(t, ok)

	id, _, ok := trie.Longest("x.test")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestReversedLabels(t *testing.T) {
	assert.Equal(t, []string{"com", "example", "ads"}, reversedLabels("ads.example.com"))
	assert.Nil(t, reversedLabels("."))
	assert.Equal(t, ".", normalizeDomain(""))
	assert.Equal(t, ".", normalizeDomain("."))
	assert.Equal(t, "test", normalizeDomain(" Test. "))
}
