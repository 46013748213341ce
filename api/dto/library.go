package dto

type CollectionSummary struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	TotalChapters int    `json:"total_chapters"`
	CoverPath     string `json:"cover_path,omitempty"`
	HasColored    bool   `json:"has_colored"`
}

type CollectionListResponse struct {
	Collections []CollectionSummary `json:"collections"`
	Total       int                 `json:"total"`
}

type ChapterSummary struct {
	Name       string `json:"name"`
	Pages      int    `json:"pages"`
	HasColored bool   `json:"has_colored"`
	LastPage   int    `json:"last_page"`
}

type ChapterListResponse struct {
	Collection string           `json:"collection"`
	Chapters   []ChapterSummary `json:"chapters"`
	Total      int              `json:"total"`
}

type PageRef struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type PageListResponse struct {
	Collection string    `json:"collection"`
	Chapter    string    `json:"chapter"`
	Colored    bool      `json:"colored"`
	Pages      []PageRef `json:"pages"`
	Total      int       `json:"total"`
}

type SaveProgressRequest struct {
	Collection string `json:"collection"`
	Chapter    string `json:"chapter"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages,omitempty"`
}

type ProgressEntry struct {
	Chapter    string `json:"chapter"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Percentage int    `json:"percentage"`
	LastRead   string `json:"last_read"`
}

type ProgressResponse struct {
	Collection string          `json:"collection"`
	Progress   []ProgressEntry `json:"progress"`
	Total      int             `json:"total"`
}

type BookmarkRequest struct {
	Collection string `json:"collection"`
	Chapter    string `json:"chapter"`
	Page       int    `json:"page"`
}

type BookmarkResponse struct {
	Bookmarked bool `json:"bookmarked"`
}

type BookmarkListResponse struct {
	Collection string `json:"collection"`
	Chapter    string `json:"chapter"`
	Pages      []int  `json:"pages"`
}

type HistoryItem struct {
	Collection string `json:"collection"`
	Chapter    string `json:"chapter"`
	ReadAt     string `json:"read_at"`
}

type HistoryResponse struct {
	History []HistoryItem `json:"history"`
	Total   int           `json:"total"`
}

type StatsResponse struct {
	TotalCollections   int `json:"total_collections"`
	TotalChapters      int `json:"total_chapters"`
	TotalPages         int `json:"total_pages"`
	ChaptersInProgress int `json:"chapters_in_progress"`
	TotalBookmarks     int `json:"total_bookmarks"`
	HistoryEntries     int `json:"history_entries"`
}
