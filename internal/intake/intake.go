package intake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"guardian/internal/scan"
)

// IgnoreFileName is read from the root of every scanned directory.
const IgnoreFileName = ".guardianignore"

type Options struct {
	Paths []string
	// Exclude holds extra gitignore-style patterns, applied after the
	// .guardianignore of each root.
	Exclude  []string
	MaxFiles int
	// AllFiles scans every regular file instead of the known source and
	// config extensions.
	AllFiles bool
}

// File is one discovered file. Path is where to read it from; Display is
// the slash-separated name findings are reported under.
type File struct {
	Path    string
	Display string
	Size    int64

	archive *archive
	entry   int
}

type Result struct {
	Files           []File
	SkippedByReason map[string]int
	SkippedFiles    int

	archives []*archive
}

var skipDirNames = map[string]struct{}{
	".git": {}, ".svn": {}, ".hg": {}, ".guardian": {}, "node_modules": {}, "vendor": {}, "dist": {}, "build": {},
	".next": {}, "out": {}, "target": {}, "coverage": {}, ".nyc_output": {}, "__pycache__": {},
	".pytest_cache": {}, ".mypy_cache": {}, ".venv": {}, "venv": {}, ".idea": {}, ".vscode": {}, ".vs": {},
}

var skipFileExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".pdf": {}, ".gz": {}, ".tar": {}, ".tgz": {},
	".mp3": {}, ".wav": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".class": {}, ".jar": {}, ".ico": {}, ".svgz": {},
}

var skipFileNames = map[string]struct{}{
	".DS_Store": {}, "package-lock.json": {}, "yarn.lock": {}, "pnpm-lock.yaml": {}, "poetry.lock": {},
	"Cargo.lock": {}, "go.sum": {}, IgnoreFileName: {},
}

var bundleSuffixes = []string{".min.js", ".bundle.js", ".chunk.js", ".min.css"}

var scannableExts = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".mjs": {}, ".cjs": {},
	".py": {}, ".pyw": {}, ".rb": {}, ".php": {},
	".java": {}, ".kt": {}, ".scala": {}, ".go": {}, ".rs": {},
	".c": {}, ".cpp": {}, ".h": {}, ".hpp": {}, ".cs": {}, ".swift": {},
	".vue": {}, ".svelte": {}, ".html": {}, ".htm": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".xml": {}, ".ini": {}, ".properties": {},
	".env": {}, ".sh": {}, ".bash": {}, ".zsh": {},
	".sql": {}, ".graphql": {}, ".gql": {}, ".tf": {}, ".hcl": {}, ".rules": {},
}

// Discover expands opts.Paths into the files to scan, sorted by display
// path. Each path may be a directory, a file or a .zip archive. Call
// Close on the result when the scan is done.
func Discover(opts Options) (Result, error) {
	if len(opts.Paths) == 0 {
		opts.Paths = []string{"."}
	}
	res := Result{SkippedByReason: map[string]int{}}
	seen := map[string]struct{}{}
	extra := ParseIgnorePatterns(opts.Exclude)

	add := func(f File) error {
		key := f.Path
		if f.archive != nil {
			key = f.Display
		}
		if _, dup := seen[key]; dup {
			return nil
		}
		if opts.MaxFiles > 0 && len(res.Files)+1 > opts.MaxFiles {
			return fmt.Errorf("included file count exceeds limit: %d > %d", len(res.Files)+1, opts.MaxFiles)
		}
		seen[key] = struct{}{}
		res.Files = append(res.Files, f)
		return nil
	}

	for _, raw := range opts.Paths {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		abs, err := filepath.Abs(raw)
		if err != nil {
			_ = res.Close()
			return Result{}, fmt.Errorf("resolve input path: %w", err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			_ = res.Close()
			return Result{}, fmt.Errorf("stat input path: %w", err)
		}
		display := filepath.ToSlash(filepath.Clean(raw))

		switch {
		case st.IsDir():
			ignore, err := LoadIgnoreFile(filepath.Join(abs, IgnoreFileName))
			if err != nil {
				_ = res.Close()
				return Result{}, fmt.Errorf("read %s: %w", IgnoreFileName, err)
			}
			err = walkDir(abs, display, &res, add, opts.AllFiles, ignore, extra)
			if err != nil {
				_ = res.Close()
				return Result{}, err
			}
		case strings.EqualFold(filepath.Ext(abs), ".zip"):
			if err := addArchive(abs, display, &res, add, opts.AllFiles, extra); err != nil {
				_ = res.Close()
				return Result{}, err
			}
		default:
			// Files named explicitly are scanned whatever their extension.
			if !st.Mode().IsRegular() {
				_ = res.Close()
				return Result{}, fmt.Errorf("input must be a folder, regular file or .zip file: %s", raw)
			}
			if err := add(File{Path: abs, Display: display, Size: st.Size()}); err != nil {
				_ = res.Close()
				return Result{}, err
			}
		}
	}

	sort.Slice(res.Files, func(i, j int) bool {
		return res.Files[i].Display < res.Files[j].Display
	})
	return res, nil
}

func walkDir(root, display string, res *Result, add func(File) error, all bool, rules ...*IgnoreRules) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrPermission) && path != root {
				res.skip("unreadable")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return walkErr
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.Type()&os.ModeSymlink != 0 {
			res.skip("symlink")
			return nil
		}

		if d.IsDir() {
			if _, skip := skipDirNames[name]; skip {
				res.SkippedByReason["skip_dir"]++
				return filepath.SkipDir
			}
			if ignored(rules, rel, true) {
				res.SkippedByReason["ignored"]++
				return filepath.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if !info.Mode().IsRegular() {
			res.skip("non_regular")
			return nil
		}
		if reason, skip := skipFile(name, rel, info.Size(), all); skip {
			res.skip(reason)
			return nil
		}
		if ignored(rules, rel, false) {
			res.skip("ignored")
			return nil
		}

		shown := rel
		if display != "." {
			shown = display + "/" + rel
		}
		return add(File{Path: path, Display: shown, Size: info.Size()})
	})
}

func (r *Result) skip(reason string) {
	r.SkippedByReason[reason]++
	r.SkippedFiles++
}

func ignored(rules []*IgnoreRules, rel string, isDir bool) bool {
	for _, r := range rules {
		if r.ShouldIgnore(rel, isDir) {
			return true
		}
	}
	return false
}

func skipFile(name string, rel string, size int64, all bool) (reason string, skip bool) {
	if _, ok := skipFileNames[name]; ok {
		return "skip_name", true
	}
	lower := strings.ToLower(name)
	for _, suffix := range bundleSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "bundle", true
		}
	}
	if size == 0 {
		return "empty", true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := skipFileExts[ext]; ok {
		return "skip_ext", true
	}
	if hasSkippedDirComponent(rel) {
		return "skip_dir", true
	}
	if !all && !isScannable(lower) {
		return "unsupported", true
	}
	return "", false
}

func isScannable(lowerName string) bool {
	switch {
	case lowerName == ".env" || strings.HasPrefix(lowerName, ".env."):
		return true
	case lowerName == "dockerfile" || lowerName == "makefile":
		return true
	}
	_, ok := scannableExts[filepath.Ext(lowerName)]
	return ok
}

// SkipDir reports whether a directory name is always pruned from scans.
func SkipDir(name string) bool {
	_, ok := skipDirNames[name]
	return ok
}

func hasSkippedDirComponent(rel string) bool {
	parts := strings.Split(filepath.ToSlash(strings.TrimSpace(rel)), "/")
	for _, part := range parts[:len(parts)-1] {
		if _, ok := skipDirNames[part]; ok {
			return true
		}
	}
	return false
}

// Inputs turns the discovered files into scan inputs. Files over limit are
// left to the scanner to report.
func (r Result) Inputs(limit int64) []scan.Input {
	out := make([]scan.Input, 0, len(r.Files))
	for _, f := range r.Files {
		if f.archive != nil {
			out = append(out, f.archive.input(f, limit))
			continue
		}
		out = append(out, scan.FileInput(f.Path, f.Display, limit))
	}
	return out
}

// Close releases any archives opened by Discover.
func (r Result) Close() error {
	var errs []error
	for _, a := range r.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
