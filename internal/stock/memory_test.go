package stock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
)

type memoryRepo struct {
	mu        sync.Mutex
	stocks    map[int64]Stock
	nextID    int64
	statsHits int
	listErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[int64]Stock)}
}

func (r *memoryRepo) seed(in ...Input) {
	for _, i := range in {
		_, _ = r.Create(context.Background(), i)
	}
}

func (r *memoryRepo) List(_ context.Context, f ListFilters) ([]Stock, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	var matched []Stock
	needle := strings.ToLower(f.Search)
	for _, s := range r.stocks {
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(s.ProductCode+" "+s.ProductName+" "+s.Description), needle) {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		less := matched[i].ID < matched[j].ID
		switch f.SortBy {
		case "product_code":
			less = matched[i].ProductCode < matched[j].ProductCode
		case "quantity":
			less = matched[i].Quantity < matched[j].Quantity
		}
		if f.SortOrder == "desc" {
			return !less
		}
		return less
	})
	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memoryRepo) Statistics(context.Context) (Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsHits++
	var s Statistics
	for _, st := range r.stocks {
		s.TotalItems++
		s.TotalValue += float64(st.Quantity) * st.Price
		switch {
		case st.Quantity == 0:
			s.OutOfStockItems++
		case st.Quantity < LowStockThreshold:
			s.LowStockItems++
		}
	}
	return s, nil
}

func (r *memoryRepo) Categories(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := map[string]struct{}{}
	for _, s := range r.stocks {
		set[s.Category] = struct{}{}
	}
	var out []string
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stocks[id]
	if !ok {
		return Stock{}, fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	return s, nil
}

func (r *memoryRepo) Create(_ context.Context, in Input) (Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stocks {
		if s.ProductCode == in.ProductCode {
			return Stock{}, fmt.Errorf("product code %s already exists: %w", in.ProductCode, httpx.ErrDuplicate)
		}
	}
	r.nextID++
	now := time.Now()
	s := fromInput(r.nextID, in, now)
	r.stocks[s.ID] = s
	return s, nil
}

func (r *memoryRepo) Update(_ context.Context, id int64, in Input) (Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.stocks[id]
	if !ok {
		return Stock{}, fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	s := fromInput(id, in, time.Now())
	s.CreatedAt = old.CreatedAt
	r.stocks[id] = s
	return s, nil
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stocks[id]; !ok {
		return fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	delete(r.stocks, id)
	return nil
}

func (r *memoryRepo) All(ctx context.Context) ([]Stock, error) {
	stocks, _, err := r.List(ctx, ListFilters{Page: 1, Limit: 1 << 20, SortBy: "product_code"})
	return stocks, err
}

func (r *memoryRepo) Upsert(_ context.Context, rows []Input) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, in := range rows {
		var id int64
		for _, s := range r.stocks {
			if s.ProductCode == in.ProductCode {
				id = s.ID
			}
		}
		if id == 0 {
			r.nextID++
			id = r.nextID
		}
		r.stocks[id] = fromInput(id, in, now)
	}
	return len(rows), nil
}

func fromInput(id int64, in Input, now time.Time) Stock {
	return Stock{
		ID:          id,
		ProductCode: in.ProductCode,
		ProductName: in.ProductName,
		Category:    in.Category,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		Price:       in.Price,
		Location:    in.Location,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func input(code string, qty int, price float64) Input {
	return Input{
		ProductCode: code,
		ProductName: "Item " + code,
		Category:    "Hardware",
		Quantity:    qty,
		Unit:        "pcs",
		Price:       price,
	}
}
