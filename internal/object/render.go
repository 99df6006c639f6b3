package object

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// RenderOptions controls render's output form.
type RenderOptions struct {
	IncludeContext bool
	IncludePath    bool
	LineNumbers    bool
}

// CanonicalOptions is the rendering configuration whose output's SHA-256
// is the Object's content_hash (§4.1): context included, path and line
// numbers excluded.
var CanonicalOptions = RenderOptions{IncludeContext: true, IncludePath: false, LineNumbers: false}

// Render produces the canonical text form of an Object: an optional path
// header, its context lines (outer to inner), then its body lines,
// start_row to end_row inclusive.
func Render(obj Object, fileLines []string, opts RenderOptions) string {
	var b strings.Builder

	if opts.IncludePath {
		b.WriteString(obj.Path)
		b.WriteString("\n\n")
	}

	if opts.IncludeContext {
		for _, row := range obj.ContextBefore {
			writeLine(&b, fileLines, row, opts.LineNumbers)
		}
	}

	for row := obj.Coords.Start.Row; row <= obj.Coords.End.Row; row++ {
		writeLine(&b, fileLines, row, opts.LineNumbers)
	}

	return b.String()
}

func writeLine(b *strings.Builder, lines []string, row int, numbered bool) {
	if row < 0 || row >= len(lines) {
		return
	}
	if numbered {
		fmt.Fprintf(b, "%6d  %s\n", row+1, lines[row])
		return
	}
	b.WriteString(lines[row])
	b.WriteString("\n")
}

// SplitLines splits file content into lines the way Render expects:
// newline-terminated segments, without the trailing newline itself.
func SplitLines(content []byte) []string {
	text := string(content)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ContentHash is SHA-256 of the canonically rendered object, the
// embedding input and dedup key (§3 Embedding, §4.1).
func ContentHash(obj Object, fileLines []string) [32]byte {
	rendered := Render(obj, fileLines, CanonicalOptions)
	return sha256.Sum256([]byte(rendered))
}

// IsText reports whether content decodes as UTF-8 or UTF-16, and has no
// NUL byte in its first 8KiB (the binary-detection heuristic of §4.1).
func IsText(content []byte) bool {
	probe := content
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return false
	}
	if utf8.Valid(content) {
		return true
	}
	return isValidUTF16(content)
}

func isValidUTF16(content []byte) bool {
	if len(content) < 2 || len(content)%2 != 0 {
		return false
	}
	var units []uint16
	little := content[0] == 0xFF && content[1] == 0xFE
	big := content[0] == 0xFE && content[1] == 0xFF
	if !little && !big {
		return false
	}
	for i := 2; i+1 < len(content); i += 2 {
		if little {
			units = append(units, uint16(content[i])|uint16(content[i+1])<<8)
		} else {
			units = append(units, uint16(content[i+1])|uint16(content[i])<<8)
		}
	}
	decoded := utf16.Decode(units)
	for _, r := range decoded {
		if r == utf8.RuneError {
			return false
		}
	}
	return true
}
