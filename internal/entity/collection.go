package entity

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/entitykit/internal/domain"
)

// Collection is a lazily evaluated query over one entity type. Builder methods return a new
// Collection and never modify the receiver. A malformed condition or order is recorded and
// reported by the first terminal call (Count, Items, GetFirst, Paginate).
type Collection struct {
	mgr       *Manager
	typ       *Type
	condition domain.Condition
	order     []domain.OrderTerm
	limit     int
	offset    int
	err       error
}

// Page is one window of a paginated collection.
type Page struct {
	Items    []*Entity
	Total    int
	Page     int
	PageSize int
	Pages    int
}

func (c *Collection) clone() *Collection {
	out := *c
	out.order = append([]domain.OrderTerm(nil), c.order...)
	return &out
}

// Err returns the first builder error, if any.
func (c *Collection) Err() error { return c.err }

// Where narrows the collection conjunctively.
func (c *Collection) Where(condition domain.Condition) *Collection {
	out := c.clone()
	if out.err == nil {
		out.err = out.checkCondition(condition)
	}
	out.condition = domain.And(out.condition, condition)
	return out
}

// OrWhere extends the collection disjunctively: rows matching either the existing condition
// or the new one. On an unconditioned collection it behaves like Where.
func (c *Collection) OrWhere(condition domain.Condition) *Collection {
	out := c.clone()
	if out.err == nil {
		out.err = out.checkCondition(condition)
	}
	out.condition = domain.Or(out.condition, condition)
	return out
}

// AddOrder appends a sort key. Keys apply in call order; the default is primary key ascending.
func (c *Collection) AddOrder(field string, direction domain.SortDirection) *Collection {
	out := c.clone()
	if out.err == nil && out.typ != nil && !out.known(field) {
		out.err = &domain.InvalidConditionError{EntityType: out.typ.name, Field: field, Reason: "unknown order field"}
	}
	out.order = append(out.order, domain.OrderTerm{Field: field, Direction: direction})
	return out
}

// Limit sets the result window. A zero count means no limit.
func (c *Collection) Limit(count, offset int) *Collection {
	out := c.clone()
	out.limit = max(count, 0)
	out.offset = max(offset, 0)
	return out
}

// Count returns the number of rows matching the condition, ignoring the window.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	count, err := c.mgr.store.Count(ctx, c.typ.table, c.condition)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.typ.name, err)
	}
	return count, nil
}

// Items materializes the window. An empty result is an empty slice, not an error.
func (c *Collection) Items(ctx context.Context) ([]*Entity, error) {
	if c.err != nil {
		return nil, c.err
	}
	rows, err := c.mgr.store.FetchWhere(ctx, c.typ.table, c.condition, c.order, c.limit, c.offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.typ.name, err)
	}
	items := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		e := c.mgr.newEntity(c.typ)
		if err := e.hydrate(row); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}

// GetFirst returns the first entity of the collection, or nil when it is empty.
func (c *Collection) GetFirst(ctx context.Context) (*Entity, error) {
	items, err := c.Limit(1, c.offset).Items(ctx)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Paginate returns the zero-based page of the given size along with the total count. The
// window is [page*size, page*size+size). A non-positive size uses the manager default and a
// negative page is treated as 0; pages past the end are empty, including pages whose window
// would not fit in an int.
func (c *Collection) Paginate(ctx context.Context, pageSize, page int) (Page, error) {
	if c.err != nil {
		return Page{}, c.err
	}
	if pageSize <= 0 {
		pageSize = c.mgr.pageSize
	}
	page = max(page, 0)

	total, err := c.Count(ctx)
	if err != nil {
		return Page{}, err
	}
	result := Page{
		Items:    []*Entity{},
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    total / pageSize,
	}
	if total%pageSize != 0 {
		result.Pages++
	}
	if page > (math.MaxInt-pageSize)/pageSize {
		return result, nil
	}
	items, err := c.Limit(pageSize, page*pageSize).Items(ctx)
	if err != nil {
		return Page{}, err
	}
	result.Items = items
	return result, nil
}

// ParsePage reads a page parameter. Missing, unparsable or negative input yields page 0.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func (c *Collection) checkCondition(condition domain.Condition) error {
	if c.typ == nil || condition == nil {
		return nil
	}
	for _, field := range condition.ReferencedFields() {
		if !c.known(field) {
			return &domain.InvalidConditionError{EntityType: c.typ.name, Field: field}
		}
	}
	return nil
}

func (c *Collection) known(field string) bool {
	if field == "" {
		return false
	}
	return c.typ.schemaless() || c.typ.HasField(field)
}
