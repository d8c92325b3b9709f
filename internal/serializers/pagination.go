package serializers

import (
	"net/url"
	"strconv"

	"blango/internal/filters"
)

// Page is the page-number pagination envelope.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Paginate wraps results. requestURL must be absolute; next and previous keep
// its other query parameters.
func Paginate[T any](results []T, total int64, page filters.Page, requestURL *url.URL) Page[T] {
	if results == nil {
		results = []T{}
	}
	out := Page[T]{Count: total, Results: results}
	if page.HasNext(total) {
		next := pageURL(requestURL, page.Number+1)
		out.Next = &next
	}
	if page.Number > 1 {
		prev := pageURL(requestURL, page.Number-1)
		out.Previous = &prev
	}
	return out
}

func pageURL(base *url.URL, number int) string {
	u := *base
	q := u.Query()
	if number <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
