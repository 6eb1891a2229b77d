package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	ItemTypeID  string `json:"itemTypeId"`
	ItemTypeKey string `json:"itemTypeKey"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Status      string `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterItemType string // item type api key, empty = all
	FilterStatus   string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over items.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ItemRecord is the data we index for an item. Title is the first string
// field of the item; Body is the plain text of every textual field,
// structured text fields included.
type ItemRecord struct {
	ID          string `json:"id"`
	ItemTypeID  string `json:"itemTypeId"`
	ItemTypeKey string `json:"itemTypeKey"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Status      string `json:"status"`
}
