package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Document is a named raw-text source. Book is derived from the file name.
type Document struct {
	Book string
	Path string
	Text string
}

// Chunk is a contiguous span of a document's text.
type Chunk struct {
	Book  string
	Index int
	Text  string
}

// RecordID derives the index id for the chunk at localIndex of book.
// The first 16 hex characters of sha256(book) keep ids stable across runs.
func RecordID(book string, localIndex int) string {
	sum := sha256.Sum256([]byte(book))
	return hex.EncodeToString(sum[:])[:16] + "-" + strconv.Itoa(localIndex)
}
