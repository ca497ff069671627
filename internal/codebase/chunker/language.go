package chunker

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSupportedExtensions lists the file extensions accepted for ingestion.
var DefaultSupportedExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cpp", ".c", ".h",
	".cs", ".php", ".rb", ".go", ".rs", ".swift", ".kt", ".html",
	".css", ".sql", ".json", ".yaml", ".yml", ".md", ".txt",
}

var languageByExt = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".cs":    "csharp",
	".php":   "php",
	".rb":    "ruby",
	".go":    "go",
	".rs":    "rust",
	".swift": "swift",
	".kt":    "kotlin",
	".html":  "html",
	".css":   "css",
	".sql":   "sql",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".md":    "markdown",
}

// DetectLanguage maps a file path to a language label by extension.
// Unknown extensions map to "text".
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// ExtensionSet normalizes a list of extensions into a lookup set.
// Entries without a leading dot get one.
func ExtensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// SortedExtensions returns the set members in stable order for messages.
func SortedExtensions(set map[string]bool) []string {
	exts := make([]string, 0, len(set))
	for ext := range set {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
