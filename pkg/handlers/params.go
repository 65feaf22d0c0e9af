package handlers

import (
	"net/http"
	"strconv"
)

// ParseSentenceID extracts the sentence ID from the request path.
// Expects path parameter: id
func ParseSentenceID(r *http.Request) (int, bool) {
	return parsePositiveInt(r, "id")
}

// ParseTokenIndex extracts the zero-based token position from the request path.
// Expects path parameter: idx
func ParseTokenIndex(r *http.Request) (int, bool) {
	raw := r.PathValue("idx")
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// ParseUserID extracts the user ID from the request path.
// Expects path parameter: id
func ParseUserID(r *http.Request) (int, bool) {
	return parsePositiveInt(r, "id")
}

// parsePositiveInt is the internal helper that does the actual parsing work.
func parsePositiveInt(r *http.Request, pathParam string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(pathParam))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
