package descriptor

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GeneratedRequirementsFile is the archive path of the requirements file
// written from Requirements.Packages when no file is configured.
const GeneratedRequirementsFile = "requirements.txt"

// Archiver packages the source location of a descriptor for inline upload.
type Archiver interface {
	Archive(d *Descriptor) ([]byte, error)
}

// ArchiverFunc adapts a function to the Archiver interface.
type ArchiverFunc func(d *Descriptor) ([]byte, error)

// Archive implements Archiver.
func (f ArchiverFunc) Archive(d *Descriptor) ([]byte, error) { return f(d) }

// TarGzArchiver writes the source location as a gzip compressed tarball.
// Entries are relative to the source directory; hidden files and
// directories (".git", ".venv", ...) are skipped.
type TarGzArchiver struct {
	// ModTime, when set, is used for every entry so archives are reproducible.
	ModTime time.Time
}

// Archive implements Archiver.
func (a TarGzArchiver) Archive(d *Descriptor) ([]byte, error) {
	root := sourceDir(d.SourceLocation)
	single := ""
	if root != d.SourceLocation {
		single = filepath.Base(d.SourceLocation)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	reqPath := d.archivedRequirementsFile()
	generated := d.Requirements.File == "" && len(d.Requirements.Packages) > 0

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		if single != "" && rel != single && rel != reqPath {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if rel == reqPath {
			if generated {
				// replaced by the generated file below
				return nil
			}
			data = appendPackages(data, d.Requirements.Packages)
		}
		return a.writeEntry(tw, rel, data)
	})
	if walkErr != nil {
		return nil, fmt.Errorf("archive %s: %w", d.SourceLocation, walkErr)
	}

	if generated {
		if err := a.writeEntry(tw, reqPath, appendPackages(nil, d.Requirements.Packages)); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a TarGzArchiver) writeEntry(tw *tar.Writer, name string, data []byte) error {
	mod := a.ModTime
	if mod.IsZero() {
		mod = time.Now()
	}
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: mod,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func appendPackages(data []byte, packages []string) []byte {
	if len(packages) == 0 {
		return data
	}
	out := bytes.NewBuffer(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		out.WriteByte('\n')
	}
	for _, p := range packages {
		out.WriteString(p)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// ExtractFile returns the content of name from a tar.gz archive.
func ExtractFile(archive []byte, name string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s not found in archive", name)
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == name {
			return io.ReadAll(tr)
		}
	}
}
