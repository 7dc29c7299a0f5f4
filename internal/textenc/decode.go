// Package textenc normalizes inbound user text of uncertain encoding.
package textenc

import (
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Decode attempts to recover legible text from user input that may arrive
// percent-encoded or as raw bytes in a regional encoding. Attempts are made in
// a fixed order, short-circuiting on the first success:
//
//  1. percent-decode
//  2. already valid UTF-8 passes through unchanged; otherwise the bytes are
//     reinterpreted as GBK
//  3. Latin-1 reinterpretation
//  4. the raw string as a last resort
//
// Valid UTF-8 is checked before the GBK attempt because GBK would happily
// mis-decode multi-byte UTF-8 sequences. Decode never fails; an input no
// strategy can handle is returned as-is and logged.
func Decode(raw string) string {
	if raw == "" {
		return ""
	}

	// PathUnescape rather than QueryUnescape: '+' in chat text is literal.
	s := raw
	if unescaped, err := url.PathUnescape(raw); err == nil {
		s = unescaped
	} else {
		slog.Warn("failed to percent-decode input", "error", err)
	}

	if utf8.ValidString(s) {
		return s
	}

	// The GBK decoder substitutes U+FFFD for invalid sequences instead of
	// failing, so a replacement rune means the input was not really GBK.
	if decoded, err := simplifiedchinese.GBK.NewDecoder().String(s); err == nil &&
		utf8.ValidString(decoded) && !strings.ContainsRune(decoded, utf8.RuneError) {
		slog.Info("decoded input as GBK")
		return decoded
	}

	if decoded, err := charmap.ISO8859_1.NewDecoder().String(s); err == nil && utf8.ValidString(decoded) {
		slog.Info("decoded input as Latin-1")
		return decoded
	}

	slog.Warn("failed to decode input, returning raw string")
	return s
}
