package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// closeMatchCutoff is the minimum similarity for a fuzzy knowledge-base hit.
const closeMatchCutoff = 0.6

// Entry is one knowledge-base definition.
type Entry struct {
	Term       string   `json:"term"`
	Definition string   `json:"definition"`
	Aliases    []string `json:"aliases"`
}

// KnowledgeBase answers definition questions from a fixed set of entries, indexed by their
// normalized term and aliases.
type KnowledgeBase struct {
	index map[string]Entry
	keys  []string
}

// NewKnowledgeBase indexes entries. The map key is used as the term when an entry has none.
func NewKnowledgeBase(entries map[string]Entry) *KnowledgeBase {
	kb := &KnowledgeBase{index: make(map[string]Entry)}
	names := make([]string, 0, len(entries))
	for k := range entries {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		e := entries[k]
		term := e.Term
		if term == "" {
			term = k
		}
		kb.add(normalize(term), e)
		for _, a := range e.Aliases {
			kb.add(normalize(a), e)
		}
	}
	sort.Strings(kb.keys)
	return kb
}

func (kb *KnowledgeBase) add(key string, e Entry) {
	if key == "" {
		return
	}
	if _, ok := kb.index[key]; !ok {
		kb.keys = append(kb.keys, key)
	}
	kb.index[key] = e
}

// LoadKnowledgeBase reads a JSON object of entries. A missing file yields an empty base.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewKnowledgeBase(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}
	return NewKnowledgeBase(entries), nil
}

// Len returns the number of indexed terms and aliases.
func (kb *KnowledgeBase) Len() int {
	return len(kb.keys)
}

// Lookup finds the entry whose term or alias best matches query: the closest key with
// similarity at least closeMatchCutoff, otherwise the first key containing the query.
func (kb *KnowledgeBase) Lookup(query string) (Entry, bool) {
	q := normalize(query)
	if q == "" || len(kb.keys) == 0 {
		return Entry{}, false
	}

	best, bestScore := "", 0.0
	for _, k := range kb.keys {
		score := similarity(k, q)
		// Ties go to the lexically greater key.
		if score >= closeMatchCutoff && (score > bestScore || score == bestScore && k > best) {
			best, bestScore = k, score
		}
	}
	if best != "" {
		return kb.index[best], true
	}

	for _, k := range kb.keys {
		if strings.Contains(k, q) {
			return kb.index[k], true
		}
	}
	return Entry{}, false
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// normalize lowercases, trims and strips punctuation.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return punctuation.ReplaceAllString(s, "")
}

// similarity returns 2*M/T where M is the number of characters in the matching blocks found
// by recursively taking the longest common substring, and T is the combined length.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	i, j, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingChars(a[:i], b[:j]) + matchingChars(a[i+size:], b[j+size:])
}

// longestMatch returns the longest common substring of a and b, preferring the earliest
// start in a and then in b.
func longestMatch(a, b []rune) (besti, bestj, bestSize int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if k := cur[j]; k > bestSize {
					besti, bestj, bestSize = i-k, j-k, k
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestSize
}
