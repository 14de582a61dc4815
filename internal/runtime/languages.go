package runtime

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Document kinds recognized by the indexer.
const (
	KindSource  = "source"
	KindClass   = "class"
	KindArchive = "archive"
)

// extToKind maps file extensions to the kind of document they hold.
var extToKind = map[string]string{
	".java":  KindSource,
	".class": KindClass,
	".jar":   KindArchive,
	".zip":   KindArchive,
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"java": java.GetLanguage(),
		}
	})
}

// KindForFile returns the document kind for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func KindForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	kind, ok := extToKind[ext]
	return kind, ok
}

// ParserForLanguage returns the tree-sitter Language for a language name.
// Returns (nil, false) if the language is not supported.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}
