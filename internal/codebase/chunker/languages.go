package chunker

import (
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// DefaultRegistry returns a registry with every bundled grammar registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterJava(r)
	RegisterRust(r)
	RegisterRuby(r)
	return r
}

func RegisterGo(r *Registry) {
	r.Register("go", &LanguageSpec{
		Language: golang.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(method_declaration name: (field_identifier) @name) @chunk
			(type_declaration (type_spec name: (type_identifier) @name)) @chunk
		`,
		Extensions: []string{"go"},
	})
}

func RegisterPython(r *Registry) {
	r.Register("python", &LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
		Extensions: []string{"py", "pyi"},
	})
}

func RegisterJavaScript(r *Registry) {
	r.Register("javascript", &LanguageSpec{
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
	})
}

const typeScriptQuery = `
	(function_declaration name: (identifier) @name) @chunk
	(class_declaration name: (type_identifier) @name) @chunk
	(method_definition name: (property_identifier) @name) @chunk
	(export_statement (function_declaration name: (identifier) @name)) @chunk
	(export_statement (class_declaration name: (type_identifier) @name)) @chunk
	(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
	(interface_declaration name: (type_identifier) @name) @chunk
	(type_alias_declaration name: (type_identifier) @name) @chunk
`

// RegisterTypeScript registers both grammars; tsx needs its own parser for JSX syntax.
func RegisterTypeScript(r *Registry) {
	r.Register("typescript", &LanguageSpec{
		Language:   typescript.GetLanguage(),
		Query:      typeScriptQuery,
		Extensions: []string{"ts", "mts", "cts"},
	})
	r.Register("tsx", &LanguageSpec{
		Language:   tsx.GetLanguage(),
		Query:      typeScriptQuery,
		Extensions: []string{"tsx"},
	})
}

func RegisterJava(r *Registry) {
	r.Register("java", &LanguageSpec{
		Language: java.GetLanguage(),
		Query: `
			(class_declaration name: (identifier) @name) @chunk
			(interface_declaration name: (identifier) @name) @chunk
			(enum_declaration name: (identifier) @name) @chunk
			(method_declaration name: (identifier) @name) @chunk
			(constructor_declaration name: (identifier) @name) @chunk
		`,
		Extensions: []string{"java"},
	})
}

func RegisterRust(r *Registry) {
	r.Register("rust", &LanguageSpec{
		Language: rust.GetLanguage(),
		Query: `
			(function_item name: (identifier) @name) @chunk
			(struct_item name: (type_identifier) @name) @chunk
			(enum_item name: (type_identifier) @name) @chunk
			(trait_item name: (type_identifier) @name) @chunk
			(impl_item type: (type_identifier) @name) @chunk
			(mod_item name: (identifier) @name) @chunk
		`,
		Extensions: []string{"rs"},
	})
}

func RegisterRuby(r *Registry) {
	r.Register("ruby", &LanguageSpec{
		Language: ruby.GetLanguage(),
		Query: `
			(method name: (identifier) @name) @chunk
			(singleton_method name: (identifier) @name) @chunk
			(class name: (constant) @name) @chunk
			(module name: (constant) @name) @chunk
		`,
		Extensions: []string{"rb"},
	})
}
