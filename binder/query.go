package binder

import "net/http"

// BindQuery binds URL query parameters into struct fields.
//
// Field names come from the `query` tag; `query:"-"` skips a field and an
// untagged field uses its lowercased name. Strings, integers, floats, bools,
// pointers and slices (repeated or comma separated) are supported.
func BindQuery() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrInvalidQuery)
	}
}
