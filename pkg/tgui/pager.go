package tgui

import "fmt"

// PaginateSlice cuts one page out of items. Pages are 0-based; size falls
// back to 10 when non-positive. A page past the end yields an empty sub-slice
// with from == to == len(items), which callers render as an empty page rather
// than an error.
func PaginateSlice[T any](items []T, page, size int) (sub []T, page2 int, size2 int, from int, to int, hasPrev bool, hasNext bool) {
	if size <= 0 {
		size = 10
	}
	if page < 0 {
		page = 0
	}
	total := len(items)

	from = min(page*size, total)
	to = min(from+size, total)

	return items[from:to], page, size, from, to, page > 0, to < total
}

// PageLabel renders "Page 2/5 • 11–20 of 47" for a 0-based page. Out-of-range
// pages clamp into [0, pages).
func PageLabel(page, size, total int) string {
	if size <= 0 {
		size = 10
	}
	if total <= 0 {
		return "Page 1/1"
	}

	pages := (total + size - 1) / size
	switch {
	case page < 0:
		page = 0
	case page >= pages:
		page = pages - 1
	}

	lo := page*size + 1
	hi := min(lo+size-1, total)
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", page+1, pages, lo, hi, total)
}
