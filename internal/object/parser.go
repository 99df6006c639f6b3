package object

import (
	"bytes"
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser turns (path, bytes) into Objects, per spec §4.1.
type Parser struct {
	registry *Registry
	parser   *sitter.Parser
}

func NewParser() *Parser {
	return &Parser{registry: DefaultRegistry(), parser: sitter.NewParser()}
}

func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// LanguageForPath resolves the language tag for path by extension,
// defaulting to "text" for unrecognized extensions.
func (p *Parser) LanguageForPath(path string) string {
	ext := extOf(path)
	if name, ok := p.registry.ByExtension(ext); ok {
		return name
	}
	return "text"
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// Parse returns the ordered list of Objects for (path, content): the
// file object first, followed by one Object per query match, sorted by
// starting byte offset.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) ([]Object, error) {
	language := p.LanguageForPath(path)
	lineCount := bytes.Count(content, []byte("\n")) + 1
	file := FileObject(path, language, len(content), lineCount)

	if language == "text" {
		return []Object{file}, nil
	}

	cfg, _ := p.registry.config(language)
	lang, ok := p.registry.language(language)
	if !ok {
		return []Object{file}, nil
	}
	query, ok := p.registry.query(language)
	if !ok {
		return []Object{file}, nil
	}

	p.parser.SetLanguage(lang)
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return []Object{file}, nil
	}

	root := tree.RootNode()
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	objects := []Object{file}
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}

		var nameNode *sitter.Node
		var defNode *sitter.Node
		var kind Kind

		for _, capture := range match.Captures {
			capName := query.CaptureNameForId(capture.Index)
			if capName == "name" {
				nameNode = capture.Node
				continue
			}
			if strings.HasPrefix(capName, "definition.") {
				defNode = capture.Node
				kind = Kind(capName)
			}
		}
		if nameNode == nil || defNode == nil {
			continue
		}

		if kind == KindFunction && isNestedIn(defNode, cfg.MethodContainers) {
			kind = KindMethod
		}

		objects = append(objects, Object{
			Path:     path,
			Name:     nameNode.Content(content),
			Language: language,
			Kind:     kind,
			ByteRange: ByteRange{
				Start: int(defNode.StartByte()),
				End:   int(defNode.EndByte()),
			},
			Coords: Coordinates{
				Start: Point{Row: int(defNode.StartPoint().Row), Column: int(defNode.StartPoint().Column)},
				End:   Point{Row: int(defNode.EndPoint().Row), Column: int(defNode.EndPoint().Column)},
			},
			ContextBefore: computeContextBefore(defNode),
			ContextAfter:  computeContextAfter(defNode),
		})
	}

	sort.SliceStable(objects[1:], func(i, j int) bool {
		return objects[i+1].ByteRange.Start < objects[j+1].ByteRange.Start
	})

	return objects, nil
}

func isNestedIn(node *sitter.Node, containerTypes []string) bool {
	if len(containerTypes) == 0 {
		return false
	}
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		for _, t := range containerTypes {
			if parent.Type() == t {
				return true
			}
		}
	}
	return false
}

// computeContextBefore walks named ancestors (ignoring the root),
// collecting each strictly-enclosing ancestor's start row, outer to
// inner, only when the row tightens the current bracket (monotonic
// narrowing).
func computeContextBefore(node *sitter.Node) []int {
	var ancestors []*sitter.Node
	for parent := node.Parent(); parent != nil && parent.Parent() != nil; parent = parent.Parent() {
		ancestors = append(ancestors, parent)
	}
	// ancestors is innermost-first; reverse to outer-to-inner.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}

	var rows []int
	bound := -1
	for _, a := range ancestors {
		row := int(a.StartPoint().Row)
		if row > bound {
			rows = append(rows, row)
			bound = row
		}
	}
	return rows
}

// computeContextAfter mirrors computeContextBefore for end rows, but
// presents them innermost-first: ancestors are narrowed outer-to-inner
// (each kept end row must be tighter than every enclosing ancestor's),
// the same direction as computeContextBefore, then the result is
// reversed for presentation.
func computeContextAfter(node *sitter.Node) []int {
	var ancestors []*sitter.Node
	for parent := node.Parent(); parent != nil && parent.Parent() != nil; parent = parent.Parent() {
		ancestors = append(ancestors, parent)
	}
	// ancestors is innermost-first; reverse to outer-to-inner.
	for i, j := 0, len(ancestors)-1; i < j; i, j = i+1, j-1 {
		ancestors[i], ancestors[j] = ancestors[j], ancestors[i]
	}

	var rows []int
	bound := int(^uint(0) >> 1) // max int
	for _, a := range ancestors {
		row := int(a.EndPoint().Row)
		if row < bound {
			rows = append(rows, row)
			bound = row
		}
	}
	// rows is outer-to-inner; reverse to innermost-first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}
