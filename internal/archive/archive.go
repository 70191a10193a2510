// Package archive packs a block's per-mode image directory into a zip file.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"blockflow/internal/logging"
	"blockflow/internal/services"
)

// Result describes a written archive.
type Result struct {
	Path    string
	Entries int
	Bytes   int64
}

// Dir writes <blockDir>/<name>.zip holding the directory entry <name>/ and
// every file below <blockDir>/<name> in lexical order, then removes the
// source directory. An empty directory yields an archive with only the
// directory entry. Entry names are relative to blockDir; the process working
// directory is never changed. On failure the partial archive is removed, the
// source directory is kept and the error is stage-fatal.
func Dir(blockDir, name string, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, "archiver")
	src := filepath.Join(blockDir, name)
	dst := filepath.Join(blockDir, name+".zip")

	info, err := os.Stat(src)
	if err != nil {
		return Result{}, services.Wrap(services.ErrStageFatal, "archive", "stat source", "Archive source directory missing", err)
	}
	if !info.IsDir() {
		return Result{}, services.Wrap(services.ErrStageFatal, "archive", "stat source",
			fmt.Sprintf("Archive source %s is not a directory", src), nil)
	}

	result, err := write(src, dst, name)
	if err != nil {
		_ = os.Remove(dst)
		logging.ErrorWithContext(logger, "archive failed; source directory kept", "archive_failed",
			logging.String("path", dst),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in the block directory"),
		)
		return Result{}, services.Wrap(services.ErrStageFatal, "archive", "write zip",
			fmt.Sprintf("Unable to archive %s", src), err)
	}

	if err := os.RemoveAll(src); err != nil {
		return result, services.Wrap(services.ErrStageFatal, "archive", "remove source",
			fmt.Sprintf("Archive written but %s could not be removed", src), err)
	}

	logger.Debug("block archived",
		logging.String("path", dst),
		logging.Int("entries", result.Entries),
		logging.String("size", humanize.Bytes(uint64(result.Bytes))),
	)
	return result, nil
}

func write(src, dst, name string) (result Result, err error) {
	file, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(file)
	if _, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: modTime(src)}); err != nil {
		return Result{}, err
	}
	entries := 1

	walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		entryName := path.Join(name, filepath.ToSlash(rel))
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, err := zw.CreateHeader(&zip.FileHeader{Name: entryName + "/", Method: zip.Store, Modified: info.ModTime()}); err != nil {
				return err
			}
			entries++
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = entryName
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if err := copyInto(w, p); err != nil {
			return err
		}
		entries++
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		return Result{}, walkErr
	}
	if err := zw.Close(); err != nil {
		return Result{}, err
	}
	stat, err := file.Stat()
	if err != nil {
		return Result{}, err
	}
	return Result{Path: dst, Entries: entries, Bytes: stat.Size()}, nil
}

func copyInto(w io.Writer, p string) error {
	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

func modTime(p string) time.Time {
	if info, err := os.Stat(p); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

// List returns the entry names of an archive in stored order.
func List(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "archive", "open", "Archive missing", err)
		}
		return nil, err
	}
	defer r.Close()
	names := make([]string, len(r.File))
	for i, f := range r.File {
		names[i] = f.Name
	}
	return names, nil
}
