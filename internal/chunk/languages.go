package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry holds the closed set of languages the Chunker
// recognizes: rust (.rs), python (.py), javascript (.js, .mjs, .jsx),
// typescript (.ts) and tsx (.tsx). The Scanner only hands over files in
// {rs, py, js, ts}, so the other extensions are reached only by callers
// that use the Chunker directly. Go itself is never registered here —
// it is the host language, not an indexing target.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds a registry with the five supported grammars.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerRust()
	r.registerPython()
	r.registerJavaScript()
	r.registerTypeScript()

	return r
}

func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// registerRust registers the chunkable set from spec.md §4.1: function_item,
// impl_item, struct_item, enum_item, trait_item, mod_item (when non-empty).
func (r *LanguageRegistry) registerRust() {
	config := &LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		Chunkable: map[string]Kind{
			"function_item": KindFunction,
			"impl_item":     KindImpl,
			"struct_item":   KindStruct,
			"enum_item":     KindEnum,
			"trait_item":    KindTrait,
			"mod_item":      KindModule,
		},
		Containers: map[string]bool{
			"impl_item":  true,
			"trait_item": true,
			"mod_item":   true,
		},
	}
	r.registerLanguage(config, rust.GetLanguage())
}

// registerPython registers function_definition, class_definition, and
// decorated_definition per spec.md §4.1.
func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		Chunkable: map[string]Kind{
			"function_definition":  KindFunction,
			"class_definition":     KindClass,
			"decorated_definition": KindFunction, // refined to KindClass by walk if it wraps a class
		},
		Containers: map[string]bool{
			"class_definition": true,
		},
	}
	r.registerLanguage(config, python.GetLanguage())
}

// registerJavaScript registers function_declaration, method_definition,
// class_declaration; interface/type-alias are TypeScript-only.
func (r *LanguageRegistry) registerJavaScript() {
	config := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".jsx"},
		Chunkable: map[string]Kind{
			"function_declaration": KindFunction,
			"method_definition":    KindMethod,
			"class_declaration":    KindClass,
		},
		Containers: map[string]bool{
			"class_declaration": true,
		},
	}
	r.registerLanguage(config, javascript.GetLanguage())
}

// registerTypeScript registers the JavaScript set plus
// interface_declaration and type_alias_declaration; TSX shares the
// grammar and node-type surface.
func (r *LanguageRegistry) registerTypeScript() {
	chunkable := map[string]Kind{
		"function_declaration":   KindFunction,
		"method_definition":      KindMethod,
		"class_declaration":      KindClass,
		"interface_declaration":  KindInterface,
		"type_alias_declaration": KindType,
	}
	containers := map[string]bool{"class_declaration": true}

	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		Chunkable:  chunkable,
		Containers: containers,
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		Chunkable:  chunkable,
		Containers: containers,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the package-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
