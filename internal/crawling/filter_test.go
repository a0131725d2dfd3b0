package crawling

import (
	"testing"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100, PartialRatio("iphone", "apple iphone 13 pro max"))
	assert.Equal(t, 100, PartialRatio("apple iphone 13 pro max", "iphone"))
	assert.Equal(t, 83, PartialRatio("iphone", "iphon 14 for sale"))
	assert.Equal(t, 100, PartialRatio("", ""))
	assert.Equal(t, 0, PartialRatio("iphone", ""))
	assert.Less(t, PartialRatio("iphone", "samsung galaxy s21"), 70)
}

func TestKeywordFilter_Match(t *testing.T) {
	f := NewKeywordFilter(config.DefaultKeywords, 70)

	tests := []struct {
		title string
		want  bool
	}{
		{"Apple iPhone 13 Pro 256GB", true},
		{"IPHONE 15", true},
		{"i phone 12 used", true},
		{"Iphon 14 mint", true},
		{"Samsung Galaxy S21", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.title))
		})
	}
}

func TestKeywordFilter_NoKeywordsAcceptsAll(t *testing.T) {
	f := NewKeywordFilter([]string{"  ", ""}, 70)
	assert.True(t, f.Match("anything"))
}

func TestKeywordFilter_CombinesTexts(t *testing.T) {
	f := NewKeywordFilter([]string{"iphone"}, 90)
	assert.True(t, f.Match("Phone case", "fits iPhone"))
	assert.False(t, f.Match("Phone case", ""))
}
