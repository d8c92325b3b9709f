package filters

import (
	"net/url"
	"strconv"

	"blango/internal/models"
)

// MaxPageSize caps page_size regardless of what the client asks for.
const MaxPageSize = 100

// Page is a 1-based page-number window.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// ParsePage reads page and page_size. A page beyond the last one is detected
// by the caller once the total count is known.
func ParsePage(values url.Values, defaultSize int) (Page, error) {
	if defaultSize <= 0 || defaultSize > MaxPageSize {
		defaultSize = MaxPageSize
	}
	p := Page{Number: 1, Size: defaultSize}

	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, models.NewNotFoundMessage("Invalid page.")
		}
		p.Number = n
	}
	if raw := values.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			p.Size = min(n, MaxPageSize)
		}
	}
	return p, nil
}

// HasNext reports whether rows remain after this page.
func (p Page) HasNext(total int64) bool {
	return int64(p.Number*p.Size) < total
}

// Beyond reports whether the page starts past the last row. Page 1 is always valid.
func (p Page) Beyond(total int64) bool {
	return p.Number > 1 && int64(p.Offset()) >= total
}
