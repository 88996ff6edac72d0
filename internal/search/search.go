// Package search provides text search over posts. Meilisearch serves the
// queries when it is reachable; otherwise a linear scan of the post tree
// answers them.
package search

// PostRecord is the data indexed for a post.
type PostRecord struct {
	Key        string `json:"key"`
	PostID     int64  `json:"postId"`
	Text       string `json:"text"`
	AuthorID   int64  `json:"userID"`
	CategoryID int    `json:"Catid"`
}

// Query describes a post search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []PostRecord `json:"results"`
	Total   int          `json:"total"`
	Query   string       `json:"query"`
}

// Searcher can execute a post search.
type Searcher interface {
	Search(q Query) ([]PostRecord, int, error)
	Healthy() bool
}

// Indexer can push posts into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	DeletePost(key string) error
}
