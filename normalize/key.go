package normalize

import "strings"

// QueryKey derives the storage key for a search query: normalized,
// lowercased, whitespace collapsed and joined with underscores. Two raw
// queries that differ only in casing, punctuation or whitespace derive
// the same key and therefore share one cache entry. An empty key means
// the query carries no relevance signal at all.
func QueryKey(query string) string {
	return strings.Join(
		strings.Fields(strings.ToLower(StripBare(query))), "_",
	)
}

// QueryFromKey recovers the normalized query text from a storage key.
func QueryFromKey(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
