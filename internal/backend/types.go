package backend

// SearchResult is one retrieval hit as returned by the search service.
// Results arrive ordered by descending relevance; callers must not re-sort.
type SearchResult struct {
	Chapter   string  `json:"chapter"`
	Page      string  `json:"page"`
	Paragraph string  `json:"paragraph"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// HistoryMessage is the chat-history shape the generation service expects.
type HistoryMessage struct {
	Text      string `json:"text"`
	IsUser    bool   `json:"isUser"`
	Source    string `json:"source,omitempty"`
	Timestamp string `json:"timestamp"`
}
