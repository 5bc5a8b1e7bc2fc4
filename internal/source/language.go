package source

import (
	"path/filepath"
	"strings"
)

// Family selects the lexical rules used to find comments and string
// literals.
type Family int

const (
	FamilyPlain Family = iota
	FamilyCLike
	FamilyPython
	FamilyHash
	FamilySQL
)

func (f Family) String() string {
	switch f {
	case FamilyCLike:
		return "c-like"
	case FamilyPython:
		return "python"
	case FamilyHash:
		return "hash"
	case FamilySQL:
		return "sql"
	default:
		return "plain"
	}
}

type Language struct {
	Name   string
	Family Family
}

const (
	LangJavaScript    = "javascript"
	LangTypeScript    = "typescript"
	LangPython        = "python"
	LangGo            = "go"
	LangJava          = "java"
	LangCSharp        = "csharp"
	LangPHP           = "php"
	LangRuby          = "ruby"
	LangShell         = "shell"
	LangSQL           = "sql"
	LangYAML          = "yaml"
	LangJSON          = "json"
	LangEnv           = "env"
	LangFirebaseRules = "firebase_rules"
	LangHTML          = "html"
	LangText          = "text"
)

var languages = map[string]Language{
	LangJavaScript:    {LangJavaScript, FamilyCLike},
	LangTypeScript:    {LangTypeScript, FamilyCLike},
	LangPython:        {LangPython, FamilyPython},
	LangGo:            {LangGo, FamilyCLike},
	LangJava:          {LangJava, FamilyCLike},
	LangCSharp:        {LangCSharp, FamilyCLike},
	LangPHP:           {LangPHP, FamilyCLike},
	LangRuby:          {LangRuby, FamilyHash},
	LangShell:         {LangShell, FamilyHash},
	LangSQL:           {LangSQL, FamilySQL},
	LangYAML:          {LangYAML, FamilyHash},
	LangJSON:          {LangJSON, FamilyPlain},
	LangEnv:           {LangEnv, FamilyHash},
	LangFirebaseRules: {LangFirebaseRules, FamilyCLike},
	LangHTML:          {LangHTML, FamilyPlain},
	LangText:          {LangText, FamilyPlain},
}

var extensionLanguages = map[string]string{
	".js":     LangJavaScript,
	".jsx":    LangJavaScript,
	".mjs":    LangJavaScript,
	".cjs":    LangJavaScript,
	".vue":    LangJavaScript,
	".svelte": LangJavaScript,
	".ts":     LangTypeScript,
	".tsx":    LangTypeScript,
	".mts":    LangTypeScript,
	".cts":    LangTypeScript,
	".py":     LangPython,
	".pyw":    LangPython,
	".go":     LangGo,
	".java":   LangJava,
	".kt":     LangJava,
	".cs":     LangCSharp,
	".php":    LangPHP,
	".rb":     LangRuby,
	".sh":     LangShell,
	".bash":   LangShell,
	".zsh":    LangShell,
	".sql":    LangSQL,
	".yaml":   LangYAML,
	".yml":    LangYAML,
	".json":   LangJSON,
	".env":    LangEnv,
	".rules":  LangFirebaseRules,
	".html":   LangHTML,
	".htm":    LangHTML,
	".txt":    LangText,
	".md":     LangText,
}

// LanguageByName returns the language registered under name.
func LanguageByName(name string) (Language, bool) {
	lang, ok := languages[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}

// KnownLanguages returns every language tag a rule may name.
func KnownLanguages() []string {
	out := make([]string, 0, len(languages))
	for name := range languages {
		out = append(out, name)
	}
	return out
}

// DetectLanguage resolves a unit's language from an explicit hint, then from
// well-known file names, then from the extension. Unknown files are text.
func DetectLanguage(path, hint string) Language {
	if lang, ok := LanguageByName(hint); ok {
		return lang
	}
	base := strings.ToLower(filepath.Base(path))
	switch {
	case base == ".env" || strings.HasPrefix(base, ".env."):
		return languages[LangEnv]
	case base == "firestore.rules" || base == "storage.rules" || base == "database.rules":
		return languages[LangFirebaseRules]
	case base == "dockerfile" || base == "makefile":
		return languages[LangShell]
	}
	if name, ok := extensionLanguages[filepath.Ext(base)]; ok {
		return languages[name]
	}
	return languages[LangText]
}

// IsJSLike reports whether the language uses JavaScript lexical extras such
// as template literals and regex literals.
func (l Language) IsJSLike() bool {
	return l.Name == LangJavaScript || l.Name == LangTypeScript
}
