package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/barshelf/internal/search"
)

// FilterDigest hashes the normalized predicates of q.
func FilterDigest(q search.Query) uint64 {
	n := q.Normalize()
	d := xxhash.New()
	for _, part := range []string{n.Text, n.Tag, n.Category, n.Mood} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// ListKey is the key of a list page.
func ListKey(fingerprint string, q search.Query, page, size int) string {
	var sb strings.Builder
	sb.WriteString("list:")
	sb.WriteString(fingerprint)
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(FilterDigest(q), 16))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(page))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(size))
	return sb.String()
}

// ItemKey is the key of a single item.
func ItemKey(fingerprint, slug string) string {
	return "item:" + fingerprint + ":" + slug
}
