package shared

import (
	"net/http"
	"net/url"
	"strconv"
)

const TotalCountHeader = "X-Total-Count"

type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset from the query. Malformed values are
// reported on v; a limit above maxLimit is clamped.
func ParsePage(query url.Values, v *Validator, defaultLimit, maxLimit int) Page {
	page := Page{Limit: defaultLimit}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			v.Add("limit", "must be a positive integer")
		} else {
			page.Limit = n
		}
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or a positive integer")
		} else {
			page.Offset = n
		}
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

func SetTotalCount(w http.ResponseWriter, total int) {
	w.Header().Set(TotalCountHeader, strconv.Itoa(total))
}
