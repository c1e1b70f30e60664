package copier

import "strings"

// The listing escapes exactly these three entities.
var entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// Unescape reverses the listing's entity escaping in a single pass, so
// "&amp;lt;" becomes "&lt;", not "<".
func Unescape(s string) string {
	return entityReplacer.Replace(s)
}
