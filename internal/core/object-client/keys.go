package objectclient

import (
	"path"
	"strings"
)

// Originals are laid out per bot and per document:
//
//	bots/<botID>/documents/<docID>/<filename>
//
// so one prefix delete clears a document or a whole bot.

// BotPrefix is the key prefix holding every original of a bot.
func BotPrefix(botID string) string {
	return path.Join("bots", botID) + "/"
}

// DocumentPrefix is the key prefix holding one document's original.
func DocumentPrefix(botID, docID string) string {
	return path.Join("bots", botID, "documents", docID) + "/"
}

// DocumentKey is the object key for a document's original file. Spaces in the
// name become underscores and any directory part is dropped.
func DocumentKey(botID, docID, filename string) string {
	name := strings.ReplaceAll(strings.TrimSpace(filename), " ", "_")
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "original"
	}
	return DocumentPrefix(botID, docID) + name
}

// ParseURL splits an object URL returned by UploadFile into bucket and key.
// Accepts virtual-hosted S3 URLs (https://bucket.s3.region.amazonaws.com/key)
// and mem://bucket/key.
func ParseURL(u string) (bucket, key string) {
	if rest, ok := strings.CutPrefix(u, "mem://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		return bucket, key
	}
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	bucket, _, _ = strings.Cut(host, ".")
	return bucket, key
}
