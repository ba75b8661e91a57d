package domain

// MetadataBook is the metadata key carrying the source book of a record.
const MetadataBook = "book"

// IndexRecord is one entry written to the vector index.
type IndexRecord struct {
	ID       string
	Vector   Vector
	Document string
	Metadata map[string]string
}

// QueryResult is one nearest-neighbour hit. Lower distance is more similar.
type QueryResult struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// StoredRecord is what a point lookup returns for an id.
type StoredRecord struct {
	Document  string            `json:"document"`
	Embedding Vector            `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
