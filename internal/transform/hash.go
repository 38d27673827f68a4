package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Fingerprint returns the non-cryptographic fingerprint of a record: its
// canonical JSON form (object keys sorted) folded with h = h*31 + c over
// UTF-16 code units in 32-bit signed arithmetic, rendered as signed hex
// ("-1f3a" for negative values). Identical records always produce the
// same fingerprint; distinct records may collide.
func Fingerprint(r Record) string {
	return strconv.FormatInt(int64(foldString(canonicalString(r))), 16)
}

// canonicalString serializes v with sorted object keys and without HTML
// escaping. Values encoding/json rejects (NaN, channels) fall back to
// fmt formatting, which also sorts map keys.
func canonicalString(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func foldString(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}
