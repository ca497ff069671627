package chunker

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	importScanLines = 50
	maxImports      = 10
)

// Metadata is the structural summary of one source file.
type Metadata struct {
	Language  string   `json:"language"`
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
	Imports   []string `json:"imports"`
}

var (
	pyFuncRegexp  = regexp.MustCompile(`(?m)^[ \t]*(?:async[ \t]+)?def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	pyClassRegexp = regexp.MustCompile(`(?m)^[ \t]*class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	jsFuncRegexps = []*regexp.Regexp{
		regexp.MustCompile(`function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\(`),
		regexp.MustCompile(`const\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*=\s*(?:async\s+)?\(`),
		regexp.MustCompile(`([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:\s*(?:async\s+)?function`),
		regexp.MustCompile(`([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\([^)]*\)\s*=>`),
	}
	jsClassRegexp = regexp.MustCompile(`class\s+([a-zA-Z_$][a-zA-Z0-9_$]*)`)

	javaMethodRegexp = regexp.MustCompile(`(?:public|private|protected|static|\s)+[\w<>\[\]]+\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	javaClassRegexp  = regexp.MustCompile(`(?:public|private|protected|\s)*class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	cppFuncRegexp  = regexp.MustCompile(`(?m)^\s*(?:[\w:*&<>]+\s+)*([a-zA-Z_][a-zA-Z0-9_]*)\s*\([^)]*\)\s*[{;]`)
	cppClassRegexp = regexp.MustCompile(`class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	goFuncRegexp = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([a-zA-Z_][a-zA-Z0-9_]*)\s*[\[(]`)
	goTypeRegexp = regexp.MustCompile(`(?m)^type\s+([a-zA-Z_][a-zA-Z0-9_]*)\s+(?:struct|interface)\b`)

	controlKeywords = map[string]bool{
		"if": true, "for": true, "while": true, "switch": true, "return": true, "catch": true,
	}
)

// ExtractMetadata extracts function names, class names and imports from content.
func ExtractMetadata(path, content string) Metadata {
	ext := strings.ToLower(filepath.Ext(path))
	md := Metadata{Language: DetectLanguage(path)}

	switch ext {
	case ".py":
		md.Functions = submatches(content, pyFuncRegexp)
		md.Classes = submatches(content, pyClassRegexp)
	case ".js", ".jsx", ".ts", ".tsx":
		md.Functions = submatches(content, jsFuncRegexps...)
		md.Classes = submatches(content, jsClassRegexp)
	case ".java":
		md.Functions = submatches(content, javaMethodRegexp)
		md.Classes = submatches(content, javaClassRegexp)
	case ".cpp", ".c", ".h":
		md.Functions = submatches(content, cppFuncRegexp)
		md.Classes = submatches(content, cppClassRegexp)
	case ".go":
		md.Functions = submatches(content, goFuncRegexp)
		md.Classes = submatches(content, goTypeRegexp)
	}
	md.Imports = extractImports(ext, content)

	return md
}

func submatches(content string, patterns ...*regexp.Regexp) []string {
	var (
		names []string
		seen  = map[string]bool{}
	)
	for _, pattern := range patterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			name := match[1]
			if controlKeywords[name] || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func extractImports(ext, content string) []string {
	lines := strings.SplitN(content, "\n", importScanLines+1)
	if len(lines) > importScanLines {
		lines = lines[:importScanLines]
	}

	var (
		imports  []string
		inGoList bool
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		matched := false
		switch ext {
		case ".py":
			matched = strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ")
		case ".js", ".jsx", ".ts", ".tsx":
			matched = strings.HasPrefix(line, "import ") ||
				strings.HasPrefix(line, "const ") ||
				strings.HasPrefix(line, "require(")
		case ".java":
			matched = strings.HasPrefix(line, "import ")
		case ".go":
			switch {
			case line == "import (":
				inGoList = true
			case inGoList && line == ")":
				inGoList = false
			case inGoList && line != "":
				matched = true
			default:
				matched = strings.HasPrefix(line, "import ")
			}
		}
		if matched {
			imports = append(imports, line)
			if len(imports) == maxImports {
				break
			}
		}
	}

	return imports
}
