package core

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// DBOrdering specifies a sort on a repository query.
type DBOrdering struct {
	Field     string
	Ascending bool
}

// ListArgs carries pagination and ordering for list queries.
type ListArgs struct {
	Page      int64
	Limit     int64
	Orderings []DBOrdering
}

func (a ListArgs) PageOrDefault() int64 {
	if a.Page < 1 {
		return defaultPage
	}
	return a.Page
}

func (a ListArgs) LimitOrDefault() int64 {
	if a.Limit < 1 {
		return defaultLimit
	}
	if a.Limit > maxLimit {
		return maxLimit
	}
	return a.Limit
}

func (a ListArgs) Skip() int64 {
	return (a.PageOrDefault() - 1) * a.LimitOrDefault()
}

type Pagination struct {
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int64 `json:"totalPages"`
}

func NewPagination(args ListArgs, total int64) Pagination {
	limit := args.LimitOrDefault()
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return Pagination{
		Page:       args.PageOrDefault(),
		Limit:      limit,
		TotalItems: total,
		TotalPages: pages,
	}
}

// PaginatedResponse is the envelope returned by every list endpoint.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}
