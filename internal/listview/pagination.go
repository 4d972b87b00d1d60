package listview

// PaginationState tracks the current page of a list and the total row count
// reported by the backend.
type PaginationState struct {
	Page  int
	Limit int
	Total int
}

// TotalPages is ceil(Total/Limit), zero when the list is empty.
func (p PaginationState) TotalPages() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasPrev reports whether a previous page exists.
func (p PaginationState) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a following page exists.
func (p PaginationState) HasNext() bool {
	return p.Page < p.TotalPages()
}

// From is the 1-based index of the first row on the page, 0 when empty.
func (p PaginationState) From() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Page-1)*p.Limit + 1
}

// To is the 1-based index of the last row on the page.
func (p PaginationState) To() int {
	return min(p.Page*p.Limit, p.Total)
}

// Window returns up to size page numbers centred on the current page, for
// rendering numbered links.
func (p PaginationState) Window(size int) []int {
	total := p.TotalPages()
	if total == 0 || size <= 0 {
		return nil
	}
	start := max(p.Page-size/2, 1)
	end := min(start+size-1, total)
	start = max(end-size+1, 1)
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}
