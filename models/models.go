package models

// Item is one fetched piece of external content: a news headline with its
// description, a daily price line, or a web search hit.
type Item struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Match is a similarity hit returned by the vector index.
type Match struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Vector is an embedded chunk ready for upsert into the vector index.
type Vector struct {
	DocID    string
	ChunkID  string
	Text     string
	Source   string
	Provider string
	Values   []float32
}
