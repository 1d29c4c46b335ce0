package docstore

import "time"

type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Chunks     []string  `json:"chunks"`
	UploadedAt time.Time `json:"uploadedAt"`
	// Source is the inbox path the document was picked up from, empty for
	// direct uploads.
	Source string `json:"source,omitempty"`
}

// ScoredChunk is produced while ranking and never persisted.
type ScoredChunk struct {
	Chunk      string
	Score      float64
	DocumentID string
	Filename   string
}
