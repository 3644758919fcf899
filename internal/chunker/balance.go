package chunker

import "sort"

// balance selects a per-page-balanced subset when a document produced
// more chunks than the global cap. Every page keeps at least MinPerPage
// chunks (quality permitting) so no single page dominates the index.
func (c *Chunker) balance(chunks []Chunk) []Chunk {
	if len(chunks) <= c.opts.MaxPerDoc {
		return chunks
	}

	byPage := make(map[int][]Chunk)
	pages := make([]int, 0)
	for _, ch := range chunks {
		if _, ok := byPage[ch.Page]; !ok {
			pages = append(pages, ch.Page)
		}
		byPage[ch.Page] = append(byPage[ch.Page], ch)
	}
	sort.Ints(pages)

	// Rank within each page by chunk quality.
	for _, p := range pages {
		page := byPage[p]
		sort.SliceStable(page, func(i, j int) bool {
			return quality(page[i]) > quality(page[j])
		})
	}

	selected := make([]Chunk, 0, c.opts.MaxPerDoc)
	taken := make(map[int]int)

	// Guarantee floor per page first.
	for _, p := range pages {
		page := byPage[p]
		n := c.opts.MinPerPage
		if n > len(page) {
			n = len(page)
		}
		selected = append(selected, page[:n]...)
		taken[p] = n
		if len(selected) >= c.opts.MaxPerDoc {
			break
		}
	}

	// Backfill remaining slots with the best leftovers regardless of page.
	if len(selected) < c.opts.MaxPerDoc {
		var rest []Chunk
		for _, p := range pages {
			page := byPage[p]
			if taken[p] < len(page) {
				rest = append(rest, page[taken[p]:]...)
			}
		}
		sort.SliceStable(rest, func(i, j int) bool {
			return quality(rest[i]) > quality(rest[j])
		})
		room := c.opts.MaxPerDoc - len(selected)
		if room > len(rest) {
			room = len(rest)
		}
		selected = append(selected, rest[:room]...)
	}

	if len(selected) > c.opts.MaxPerDoc {
		selected = selected[:c.opts.MaxPerDoc]
	}

	// Restore source order for stable indexing.
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Page != selected[j].Page {
			return selected[i].Page < selected[j].Page
		}
		return selected[i].Index < selected[j].Index
	})
	return selected
}

// quality is the selection key for page balancing: dense, structured,
// context-coherent chunks win.
func quality(c Chunk) float64 {
	return c.Density + 0.5*c.Structural + 0.3*c.Relevance + 0.2*c.Readability
}
