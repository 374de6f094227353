package listview

import "sort"

// paginationWindow is how many pages are shown on each side of the current one.
const paginationWindow = 2

// PageLink is one entry of the page-number list. Ellipsis entries carry no number.
type PageLink struct {
	Number   int
	Active   bool
	Ellipsis bool
}

// NavLink is the previous or next button.
type NavLink struct {
	Page     int
	Disabled bool
}

// PaginationControl is the compact pager rendered under the table.
type PaginationControl struct {
	Current int
	Total   int
	Prev    NavLink
	Next    NavLink
	Links   []PageLink
}

// BuildPagination shows page 1, the last page and a window of two pages
// around current, with an ellipsis for every gap.
func BuildPagination(current, total int) PaginationControl {
	if total < 0 {
		total = 0
	}
	if current < 1 {
		current = 1
	}
	pc := PaginationControl{
		Current: current,
		Total:   total,
		Prev:    NavLink{Page: current - 1, Disabled: current <= 1},
		Next:    NavLink{Page: current + 1, Disabled: current >= total},
	}
	if total == 0 {
		return pc
	}

	shown := map[int]struct{}{1: {}, total: {}}
	for n := current - paginationWindow; n <= current+paginationWindow; n++ {
		if n >= 1 && n <= total {
			shown[n] = struct{}{}
		}
	}
	numbers := make([]int, 0, len(shown))
	for n := range shown {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	prev := 0
	for _, n := range numbers {
		if prev != 0 && n-prev > 1 {
			pc.Links = append(pc.Links, PageLink{Ellipsis: true})
		}
		pc.Links = append(pc.Links, PageLink{Number: n, Active: n == current})
		prev = n
	}
	return pc
}

// Numbers returns the page numbers shown, without ellipses.
func (pc PaginationControl) Numbers() []int {
	out := make([]int, 0, len(pc.Links))
	for _, l := range pc.Links {
		if !l.Ellipsis {
			out = append(out, l.Number)
		}
	}
	return out
}
