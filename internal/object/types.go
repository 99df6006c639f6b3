// Package object implements the Object Parser (spec §4.1): turning a
// (relative_path, file_bytes) pair into an ordered list of semantic
// Objects using language-specific tree-sitter queries, plus the
// canonical render() function used as both the embedding input and the
// content-hash preimage.
package object

// Kind tags an Object's syntactic category.
type Kind string

const (
	KindFile             Kind = "file"
	KindFunction         Kind = "definition.function"
	KindMethod           Kind = "definition.method"
	KindClass            Kind = "definition.class"
	KindStruct           Kind = "definition.struct"
	KindInterface        Kind = "definition.interface"
	KindType             Kind = "definition.type"
	KindModule           Kind = "definition.module"
	KindMacro            Kind = "definition.macro"
	KindConstant         Kind = "definition.constant"
	KindField            Kind = "definition.field"
	KindTraitImpl        Kind = "definition.trait.impl"
	KindStructImpl       Kind = "definition.struct.impl"
)

// Point is a 0-based (row, column) position.
type Point struct {
	Row    int
	Column int
}

// ByteRange is a half-open [Start, End) range over a file's bytes.
type ByteRange struct {
	Start int
	End   int
}

// Coordinates pairs the half-open start/end points of an Object.
type Coordinates struct {
	Start Point
	End   Point
}

// Object is a syntactic entity discovered in a file (spec §3).
type Object struct {
	// ID is assigned by the store on insert; zero until persisted.
	ID int64

	Path      string
	Name      string
	Language  string
	Kind      Kind
	ByteRange ByteRange
	Coords    Coordinates

	// ContextBefore/ContextAfter hold the row indices of strictly
	// enclosing named ancestors: outermost-to-innermost in
	// ContextBefore (start rows), innermost-to-outermost in
	// ContextAfter (end rows). See computeContextBefore and
	// computeContextAfter.
	ContextBefore []int
	ContextAfter  []int
}

// FileObject builds the mandatory kind=file Object spanning a file's
// entire byte range.
func FileObject(path, language string, size int, lineCount int) Object {
	endRow := 0
	if lineCount > 0 {
		endRow = lineCount - 1
	}
	return Object{
		Path:     path,
		Name:     path,
		Language: language,
		Kind:     KindFile,
		ByteRange: ByteRange{
			Start: 0,
			End:   size,
		},
		Coords: Coordinates{
			Start: Point{Row: 0, Column: 0},
			End:   Point{Row: endRow, Column: 0},
		},
	}
}
