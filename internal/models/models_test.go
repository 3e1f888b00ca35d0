package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorMetadataMatches(t *testing.T) {
	m := VectorMetadata{
		ChatbotID:  "bot-1",
		SourceType: SourceTypeDocument,
		DocumentID: "doc-1",
		Page:       3,
		Position:   0,
	}

	tests := []struct {
		name   string
		filter map[string]string
		want   bool
	}{
		{"empty", nil, true},
		{"tenant", map[string]string{MetaChatbotID: "bot-1"}, true},
		{"page", map[string]string{MetaChatbotID: "bot-1", MetaPage: "3"}, true},
		{"wrong page", map[string]string{MetaPage: "4"}, false},
		{"first position", map[string]string{MetaPosition: "0"}, true},
		{"unknown key", map[string]string{"color": "red"}, false},
		{"other tenant", map[string]string{MetaChatbotID: "bot-2", MetaPage: "3"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Matches(tc.filter))
		})
	}
}

func TestUnsetPageNeverMatches(t *testing.T) {
	m := VectorMetadata{ChatbotID: "bot-1"}
	assert.False(t, m.Matches(map[string]string{MetaPage: "0"}))
}

func TestNumericMetaValue(t *testing.T) {
	n, ok := NumericMetaValue(MetaPage, "12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = NumericMetaValue(MetaPage, "twelve")
	assert.False(t, ok)
	_, ok = NumericMetaValue(MetaDocumentID, "12")
	assert.False(t, ok)
}
