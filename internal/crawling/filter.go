package crawling

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// KeywordFilter accepts listings whose text approximately contains one of
// the keywords.
type KeywordFilter struct {
	keywords  []string
	threshold int
}

// NewKeywordFilter builds a filter. threshold is a 0-100 similarity score;
// an empty keyword list accepts everything.
func NewKeywordFilter(keywords []string, threshold int) *KeywordFilter {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &KeywordFilter{keywords: kw, threshold: threshold}
}

// Match reports whether the joined, lowercased texts score at least the
// threshold against any keyword.
func (f *KeywordFilter) Match(texts ...string) bool {
	if len(f.keywords) == 0 {
		return true
	}
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			parts = append(parts, strings.ToLower(t))
		}
	}
	combined := strings.Join(parts, " ")
	for _, k := range f.keywords {
		if PartialRatio(k, combined) >= f.threshold {
			return true
		}
	}
	return false
}

// PartialRatio scores 0-100 how well the shorter string matches its best
// aligned substring of the longer one.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratio(a, b string) int {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(float64(maxLen-d) * 100 / float64(maxLen))
}
