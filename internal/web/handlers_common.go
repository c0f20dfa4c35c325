package web

import (
	"net/http"
	"strconv"
)

// defaultRejectionsLimit is used when ?limit is absent or invalid.
const defaultRejectionsLimit = 100

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
