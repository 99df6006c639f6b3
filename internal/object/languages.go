package object

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig binds a language name to its tree-sitter grammar and the
// query that captures *name* anchors and *definition.<kind>* anchors, per
// spec §4.1. MethodContainers names node types whose descendants captured
// as KindFunction should be relabeled KindMethod (Python puts methods
// inside a class rather than giving them a distinct node type; Go's
// method_declaration is captured as a method directly).
type LanguageConfig struct {
	Name             string
	Extensions       []string
	Query            string
	MethodContainers []string
}

// Registry holds the compiled tree-sitter Language + Query singletons.
// Some grammar bindings return opaque language handles whose memory must
// outlive the parser, so these are cached for the registry's lifetime
// rather than recreated per parse.
type Registry struct {
	mu        sync.RWMutex
	configs   map[string]LanguageConfig
	extToLang map[string]string
	languages map[string]*sitter.Language
	queries   map[string]*sitter.Query
}

func NewRegistry() *Registry {
	r := &Registry{
		configs:   make(map[string]LanguageConfig),
		extToLang: make(map[string]string),
		languages: make(map[string]*sitter.Language),
		queries:   make(map[string]*sitter.Query),
	}
	r.register(goConfig, golang.GetLanguage())
	r.register(pythonConfig, python.GetLanguage())
	r.register(javascriptConfig, javascript.GetLanguage())
	r.register(jsxConfig, javascript.GetLanguage())
	r.register(typescriptConfig, typescript.GetLanguage())
	r.register(tsxConfig, tsx.GetLanguage())
	return r
}

func (r *Registry) register(cfg LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.Name] = cfg
	r.languages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}

	if cfg.Query != "" {
		q, err := sitter.NewQuery([]byte(cfg.Query), lang)
		if err == nil {
			r.queries[cfg.Name] = q
		}
	}
}

// ByExtension returns the language name registered for ext ("" unknown).
func (r *Registry) ByExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.extToLang[strings.ToLower(ext)]
	return name, ok
}

func (r *Registry) config(name string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

func (r *Registry) language(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.languages[name]
	return l, ok
}

func (r *Registry) query(name string) (*sitter.Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[name]
	return q, ok
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// Query captures mirror the widely used "tags.scm" convention: one @name
// capture per match, paired with one @definition.<kind> capture on the
// enclosing node.
var goConfig = LanguageConfig{
	Name:       "go",
	Extensions: []string{".go"},
	Query: `
(function_declaration name: (identifier) @name) @definition.function
(method_declaration name: (field_identifier) @name) @definition.method
(type_declaration (type_spec name: (type_identifier) @name type: (struct_type))) @definition.struct
(type_declaration (type_spec name: (type_identifier) @name type: (interface_type))) @definition.interface
(type_declaration (type_spec name: (type_identifier) @name)) @definition.type
(const_declaration (const_spec name: (identifier) @name)) @definition.constant
`,
}

var pythonConfig = LanguageConfig{
	Name:       "python",
	Extensions: []string{".py"},
	Query: `
(function_definition name: (identifier) @name) @definition.function
(class_definition name: (identifier) @name) @definition.class
`,
	MethodContainers: []string{"class_definition"},
}

var javascriptConfig = LanguageConfig{
	Name:       "javascript",
	Extensions: []string{".js", ".mjs"},
	Query: `
(function_declaration name: (identifier) @name) @definition.function
(method_definition name: (property_identifier) @name) @definition.method
(class_declaration name: (identifier) @name) @definition.class
`,
}

var jsxConfig = LanguageConfig{
	Name:       "jsx",
	Extensions: []string{".jsx"},
	Query:      javascriptConfig.Query,
}

var typescriptConfig = LanguageConfig{
	Name:       "typescript",
	Extensions: []string{".ts"},
	Query: `
(function_declaration name: (identifier) @name) @definition.function
(method_definition name: (property_identifier) @name) @definition.method
(class_declaration name: (type_identifier) @name) @definition.class
(interface_declaration name: (type_identifier) @name) @definition.interface
(type_alias_declaration name: (type_identifier) @name) @definition.type
`,
}

var tsxConfig = LanguageConfig{
	Name:       "tsx",
	Extensions: []string{".tsx"},
	Query:      typescriptConfig.Query,
}
