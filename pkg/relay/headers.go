package relay

import (
	"net/http"
	"sort"
)

// Pairs converts a multi-valued header collection into an ordered sequence
// of single name/value pairs. A header with N values expands to N pairs in
// value order; names are emitted in sorted order so the result is
// deterministic. Names and values are not validated or rewritten.
func Pairs(h http.Header) []HeaderPair {
	if len(h) == 0 {
		return nil
	}

	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]HeaderPair, 0, len(h))
	for _, name := range names {
		for _, value := range h[name] {
			pairs = append(pairs, HeaderPair{Name: name, Value: value})
		}
	}
	return pairs
}

// Header performs the inverse conversion: pairs are appended in sequence
// order, so duplicate names become multi-valued entries with their order
// intact. Names are kept verbatim, without MIME canonicalization, so that
// whatever arrived on the wire is what goes back out.
func Header(pairs []HeaderPair) http.Header {
	h := make(http.Header, len(pairs))
	for _, p := range pairs {
		h[p.Name] = append(h[p.Name], p.Value)
	}
	return h
}
