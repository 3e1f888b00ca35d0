package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/markdave123-py/botwise/internal/models"
)

// Dedupe drops chunks whose content repeats an earlier chunk. Order is kept.
func Dedupe(chunks []models.Chunk) []models.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]models.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if _, ok := seen[ch.Content]; ok {
			continue
		}
		seen[ch.Content] = struct{}{}
		out = append(out, ch)
	}
	return out
}

// dropBlank removes chunks with no visible text.
func dropBlank(chunks []models.Chunk) []models.Chunk {
	out := chunks[:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) != "" {
			out = append(out, ch)
		}
	}
	return out
}

// VectorID is the stable vector id of content inside a tenant namespace.
// Re-ingesting identical content for the same bot overwrites instead of duplicating.
func VectorID(content, namespace string) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
