package delegation

import "strings"

// rootTrie maps authoritative root domains to server ids for longest-suffix
// lookup.
//
// Domains are stored with labels in reverse order, so "a.example.com" is
// stored as ["com", "example", "a"]. The root domain "." is the trie root
// itself. Lookup walks at most one node per label of the query.
//
// The trie is rebuilt from the store for each operation and is not
// safe for concurrent mutation.
type rootTrie struct {
	root *trieNode
	size int
}

type trieNode struct {
	children map[string]*trieNode
	serverID int64 // 0 when no server owns this domain
	domain   string
}

func newRootTrie() *rootTrie {
	return &rootTrie{root: newTrieNode()}
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode, 4)}
}

// Add records that serverID is authoritative for domain.
func (t *rootTrie) Add(domain string, serverID int64) {
	domain = normalizeDomain(domain)
	node := t.root
	for _, label := range reversedLabels(domain) {
		child, exists := node.children[label]
		if !exists {
			child = newTrieNode()
			node.children[label] = child
		}
		node = child
	}
	if node.serverID == 0 {
		t.size++
	}
	node.serverID = serverID
	node.domain = domain
}

// Longest returns the server owning the longest root domain that is equal
// to or a parent of name.
func (t *rootTrie) Longest(name string) (serverID int64, domain string, ok bool) {
	name = normalizeDomain(name)
	node := t.root
	if node.serverID != 0 {
		serverID, domain, ok = node.serverID, node.domain, true
	}
	for _, label := range reversedLabels(name) {
		child, exists := node.children[label]
		if !exists {
			break
		}
		node = child
		if node.serverID != 0 {
			serverID, domain, ok = node.serverID, node.domain, true
		}
	}
	return serverID, domain, ok
}

// Size returns the number of domains in the trie.
func (t *rootTrie) Size() int {
	return t.size
}

// normalizeDomain lowercases domain and strips the trailing dot. The root
// domain normalizes to ".".
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return "."
	}
	return domain
}

// reversedLabels splits a domain into labels in reverse order.
// "ads.example.com" -> ["com", "example", "ads"]; "." -> [].
func reversedLabels(domain string) []string {
	if domain == "." {
		return nil
	}
	labels := strings.Split(domain, ".")
	n := len(labels)
	for i := range n / 2 {
		labels[i], labels[n-1-i] = labels[n-1-i], labels[i]
	}
	return labels
}
