// Package backup archives the ipscan database (last snapshot, device names
// and stored scan configuration) with an optional config file, and restores such
// archives.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseEntry is the archive name of the database file.
const DatabaseEntry = "ipscan.db"

// ErrExists is returned by Restore when a target file exists and force is off.
var ErrExists = errors.New("file exists")

// Backup writes a tar.gz archive to outputPath holding a consistent copy of
// the database at dbPath and, when it exists, the file at configPath. The copy
// is taken with VACUUM INTO, so a running server does not need to stop.
func Backup(ctx context.Context, dbPath, configPath, outputPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "ipscan-backup-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, DatabaseEntry)
	if err := vacuumInto(ctx, dbPath, snapshot); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	if err := addFileToTar(tw, snapshot, DatabaseEntry); err != nil {
		return fmt.Errorf("adding database to archive: %w", err)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := addFileToTar(tw, configPath, filepath.Base(configPath)); err != nil {
				return fmt.Errorf("adding config to archive: %w", err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return outFile.Close()
}

func vacuumInto(ctx context.Context, dbPath, target string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "VACUUM INTO ?", target)
	return err
}

// addFileToTar adds a single file to the tar archive under the given name.
func addFileToTar(tw *tar.Writer, filePath, archiveName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts the archive at inputPath into dir and returns the paths it
// wrote. Existing files are only replaced when force is set. Entries that are
// not plain files or that would land outside dir are rejected.
func Restore(ctx context.Context, inputPath, dir string, force bool) ([]string, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}

	var written []string
	tr := tar.NewReader(gr)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			return written, fmt.Errorf("unsupported entry %q", hdr.Name)
		}
		name := filepath.Base(filepath.Clean(hdr.Name))
		if name != hdr.Name || strings.HasPrefix(name, ".") {
			return written, fmt.Errorf("unsafe entry name %q", hdr.Name)
		}

		target := filepath.Join(dir, name)
		if err := extract(tr, target, hdr.FileInfo().Mode().Perm(), force); err != nil {
			return written, err
		}
		written = append(written, target)
	}

	if len(written) == 0 {
		return nil, errors.New("archive is empty")
	}
	return written, nil
}

func extract(r io.Reader, target string, perm os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(target, flags, perm)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s: %w (use force to overwrite)", target, ErrExists)
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}
