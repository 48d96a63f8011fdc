package pkg

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/domain"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	// An empty sort keeps the source order.
	defaultSort = ""
)

// reservedParams lists query parameter names used for pagination/sorting, not for filtering.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"sort":      true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Field reads the value a listing is sorted or filtered on.
type Field[T any] func(T) string

// ParsePageRequest extracts pagination, sorting, and filtering parameters from query params.
func ParsePageRequest(c *gin.Context) domain.PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if page < 1 {
		page = defaultPage
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sort := c.DefaultQuery("sort", defaultSort)

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     sort,
		Filter:   filter,
	}
}

// Sort returns a copy of items ordered by req.Sort ("field:asc" or
// "field:desc"). Only fields present in fields are accepted; anything else
// keeps the input order. Ties keep their input order.
func Sort[T any](items []T, req domain.PageRequest, fields map[string]Field[T]) []T {
	parts := strings.SplitN(req.Sort, ":", 2)
	if len(parts) != 2 {
		return items
	}

	field := strings.TrimSpace(parts[0])
	direction := strings.TrimSpace(strings.ToLower(parts[1]))

	if direction != "asc" && direction != "desc" {
		return items
	}

	if !validFieldName.MatchString(field) {
		return items
	}

	key, ok := fields[field]
	if !ok {
		return items
	}

	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int {
		c := strings.Compare(key(a), key(b))
		if direction == "desc" {
			return -c
		}
		return c
	})
	return out
}

type filterCond[T any] struct {
	key   Field[T]
	value string
	like  bool
}

// Filter returns the items matching every filter in req. Filter keys not
// present in fields are ignored. Keys ending with "__like" match a
// case-insensitive substring; others use exact match.
func Filter[T any](items []T, req domain.PageRequest, fields map[string]Field[T]) []T {
	var conds []filterCond[T]
	for key, value := range req.Filter {
		field, like := strings.CutSuffix(key, "__like")
		if !validFieldName.MatchString(field) {
			continue
		}
		get, ok := fields[field]
		if !ok {
			continue
		}
		if like {
			value = strings.ToLower(value)
		}
		conds = append(conds, filterCond[T]{key: get, value: value, like: like})
	}
	if len(conds) == 0 {
		return items
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		keep := true
		for _, c := range conds {
			v := c.key(item)
			if c.like {
				keep = strings.Contains(strings.ToLower(v), c.value)
			} else {
				keep = v == c.value
			}
			if !keep {
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out
}
