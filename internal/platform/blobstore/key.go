package blobstore

import (
	"encoding/base32"
	"strings"
	"time"
)

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// StorageKey derives the content-addressed key for a blob:
// "<yyyy>/<mm>/<dd>/<base32-lowercase-hash>[.ext]".
//
// The date partition exists only to keep directory fan-out bounded; it is
// fixed at first-write time and carries no semantic meaning. Identical
// hash + ext always produce the same key for the same date.
func StorageKey(hash []byte, ext string, t time.Time) string {
	var b strings.Builder
	b.WriteString(t.UTC().Format("2006/01/02"))
	b.WriteByte('/')
	b.WriteString(strings.ToLower(keyEncoding.EncodeToString(hash)))
	if ext = normalizeExt(ext); ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	return strings.TrimPrefix(ext, ".")
}
