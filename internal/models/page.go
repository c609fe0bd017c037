package models

// Pagination metadata for paginated listings
type Pagination struct {
	Current int
	Pages   int
	Count   int64
	HasNext bool
	HasPrev bool
}

func NewPagination(page int, limit int, count int64) Pagination {
	pages := int((count + int64(limit) - 1) / int64(limit))

	return Pagination{
		Current: page,
		Pages:   pages,
		Count:   count,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}
