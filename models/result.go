package models

// ContentItem is one structured element of the parsed document.
type ContentItem struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	PageIdx int    `json:"page_idx"`
	Level   int    `json:"text_level,omitempty"`
}

// ParseResult is the parse output returned by sync endpoints and stored
// on completed tasks. Images maps filename to base64 content.
type ParseResult struct {
	Status      string            `json:"status"`
	Markdown    string            `json:"markdown,omitempty"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	PageCount   int               `json:"page_count"`
	Backend     string            `json:"backend"`
	Version     string            `json:"version"`
	ContentList []ContentItem     `json:"content_list,omitempty"`
	Images      map[string]string `json:"images,omitempty"`
}

func (r *ParseResult) Clone() *ParseResult {
	cp := *r
	if r.ContentList != nil {
		cp.ContentList = make([]ContentItem, len(r.ContentList))
		copy(cp.ContentList, r.ContentList)
	}
	if r.Images != nil {
		cp.Images = make(map[string]string, len(r.Images))
		for k, v := range r.Images {
			cp.Images[k] = v
		}
	}
	return &cp
}
