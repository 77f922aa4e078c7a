// Package samplefile reads and writes the raw per-sample activity files a
// user's metrics are computed from.
package samplefile

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ridemetrics/internal/analysis"
)

// ErrNoTimestamps is returned when a file carries no timestamped sample.
var ErrNoTimestamps = analysis.ErrNoTimestamps

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported sample file format")

// Supported file extensions
const (
	ExtFIT     = ".fit"
	ExtParquet = ".parquet"
)

// Fingerprint identifies the content of a sample file.
type Fingerprint struct {
	Name string
	Size int64
	MD5  string
}

// Supported reports whether the file name has a readable extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtFIT, ExtParquet:
		return true
	}
	return false
}

// Read loads the samples of a file, dispatching on its extension.
func Read(path string) ([]analysis.SamplePoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtFIT:
		return ReadFIT(path)
	case ExtParquet:
		return ReadParquet(path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

// FingerprintFile hashes the full contents of a file.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", path, err)
	}

	return Fingerprint{
		Name: filepath.Base(path),
		Size: size,
		MD5:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// List returns the supported regular files in dir sorted by name. A missing
// directory yields no files.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// FingerprintDir fingerprints every supported file in dir, keyed by name.
func FingerprintDir(dir string) (map[string]Fingerprint, error) {
	files, err := List(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Fingerprint, len(files))
	for _, path := range files {
		fp, err := FingerprintFile(path)
		if err != nil {
			return nil, err
		}
		out[fp.Name] = fp
	}
	return out, nil
}

// CopyInto stores src in dir unless it already lives there, creating dir as
// needed, and returns the stored path. hash is the md5 of src. A different
// file already holding src's name is never overwritten; the copy then gets
// the leading characters of hash appended to its name.
func CopyInto(src, dir, hash string) (string, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	base := filepath.Base(src)
	if filepath.Dir(absSrc) == absDir {
		return filepath.Join(dir, base), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}

	for _, name := range candidateNames(base, hash) {
		dst := filepath.Join(dir, name)
		existing, err := FingerprintFile(dst)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return dst, copyFile(src, dst)
		case err != nil:
			return "", err
		case existing.MD5 == hash:
			return dst, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", base, dir)
}

// candidateNames lists the names tried for a stored file, in order
func candidateNames(base, hash string) []string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	short := hash
	if len(short) > 8 {
		short = short[:8]
	}
	return []string{
		base,
		fmt.Sprintf("%s-%s%s", stem, short, ext),
		fmt.Sprintf("%s-%s%s", stem, hash, ext),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
