// Package fsutil contains filesystem helpers: cross-OS filename sanitizing
// and media extension repair.
package fsutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxComponentBytes caps a sanitized path component. The cap is applied at a
// UTF-8 boundary so a multi-byte rune is never split.
const MaxComponentBytes = 200

// forbidden maps the nine characters no supported OS accepts in filenames to
// visually similar fullwidth forms.
var forbidden = map[rune]rune{
	'<':  '＜',
	'>':  '＞',
	':':  '：',
	'"':  '＂',
	'/':  '／',
	'\\': '＼',
	'|':  '｜',
	'?':  '？',
	'*':  '＊',
}

// SanitizeFilename produces a path component safe on Windows, macOS and Linux:
// NFC-normalized, whitespace runs collapsed, forbidden characters replaced,
// trailing dot/dash/semicolon/space stripped, capped at 200 bytes.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			if !inSpace {
				b.WriteRune(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if repl, ok := forbidden[r]; ok {
			b.WriteRune(repl)
			continue
		}
		// Control characters have no place in a filename.
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	out = truncateUTF8(out, MaxComponentBytes)
	out = strings.TrimRight(out, ". -;")
	return out
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
