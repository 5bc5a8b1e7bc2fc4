package intake

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"guardian/internal/safefile"
	"guardian/internal/scan"
)

// Archive bomb limits.
const (
	zipMaxEntries    = 100000
	zipMaxRatio      = 100
	zipMaxEntryBytes = 1 << 30
)

// archive keeps a zip open for the duration of a scan. Entries are read
// lazily and concurrently through the shared reader.
type archive struct {
	*zip.ReadCloser
}

func addArchive(zipPath, display string, res *Result, add func(File) error, all bool, extra *IgnoreRules) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	a := &archive{ReadCloser: r}
	res.archives = append(res.archives, a)

	if len(r.File) > zipMaxEntries {
		return fmt.Errorf("zip holds %d entries, limit is %d", len(r.File), zipMaxEntries)
	}

	var ignore *IgnoreRules
	for _, f := range r.File {
		if name, _ := cleanZipEntryName(f.Name); name == IgnoreFileName {
			lines, err := readZipLines(f)
			if err != nil {
				return fmt.Errorf("read %s from zip: %w", IgnoreFileName, err)
			}
			ignore = ParseIgnorePatterns(lines)
		}
	}

	for i, f := range r.File {
		cleanName, err := cleanZipEntryName(f.Name)
		if err != nil {
			return err
		}
		if cleanName == "" {
			continue
		}
		mode := f.Mode()
		if mode.IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if mode&os.ModeSymlink != 0 {
			res.skip("symlink")
			continue
		}
		if !mode.IsRegular() {
			res.skip("non_regular")
			continue
		}

		if err := checkEntrySize(cleanName, f); err != nil {
			return err
		}
		uncompressed := f.UncompressedSize64

		if reason, skip := skipFile(path.Base(cleanName), cleanName, int64(uncompressed), all); skip {
			res.skip(reason)
			continue
		}
		if ignoredInArchive(cleanName, ignore, extra) {
			res.skip("ignored")
			continue
		}

		if err := add(File{
			Path:    zipPath,
			Display: display + "!/" + cleanName,
			Size:    int64(uncompressed),
			archive: a,
			entry:   i,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ignoredInArchive applies directory rules to every parent of name, the
// way a directory walk would have pruned them.
func ignoredInArchive(name string, rules ...*IgnoreRules) bool {
	parts := strings.Split(name, "/")
	for i := 1; i < len(parts); i++ {
		if ignored(rules, strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return ignored(rules, name, false)
}

func (a *archive) input(f File, limit int64) scan.Input {
	entry := a.File[f.entry]
	return scan.Input{
		Path: f.Display,
		Read: func() ([]byte, error) {
			if limit > 0 && int64(entry.UncompressedSize64) > limit {
				return nil, &safefile.TooLargeError{Path: f.Display, Size: int64(entry.UncompressedSize64), Limit: limit}
			}
			rc, err := entry.Open()
			if err != nil {
				return nil, fmt.Errorf("open zip entry: %w", err)
			}
			defer func() { _ = rc.Close() }()

			var r io.Reader = rc
			if limit > 0 {
				r = io.LimitReader(rc, limit+1)
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, fmt.Errorf("read zip entry: %w", err)
			}
			if limit > 0 && int64(len(data)) > limit {
				return nil, &safefile.TooLargeError{Path: f.Display, Size: int64(len(data)), Limit: limit}
			}
			return data, nil
		},
	}
}

func readZipLines(f *zip.File) ([]string, error) {
	if f.UncompressedSize64 > 64*1024 {
		return nil, fmt.Errorf("ignore file too large")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, 64*1024))
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// checkEntrySize rejects entries whose declared sizes look like an archive
// bomb. Reads are still capped separately because headers can lie.
func checkEntrySize(name string, f *zip.File) error {
	size, packed := f.UncompressedSize64, f.CompressedSize64
	if size > zipMaxEntryBytes {
		return fmt.Errorf("zip entry %s expands to %d bytes, limit is %d", name, size, zipMaxEntryBytes)
	}
	if packed > 0 && size/packed > zipMaxRatio {
		return fmt.Errorf("zip entry %s has compression ratio %d:1, limit is %d:1", name, size/packed, zipMaxRatio)
	}
	return nil
}

// cleanZipEntryName turns an entry name into a clean slash path. Directory
// markers and empty names give "". Names that escape the archive root are
// an error because the whole archive is then untrustworthy.
func cleanZipEntryName(name string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(raw) || (len(raw) > 1 && raw[1] == ':') {
		return "", fmt.Errorf("zip contains absolute path: %s", name)
	}
	clean := path.Clean(raw)
	switch {
	case clean == ".":
		return "", nil
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", fmt.Errorf("zip contains unsafe relative path: %s", name)
	}
	return clean, nil
}
