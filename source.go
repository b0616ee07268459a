package ent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Source provides the full contents of a named object. Implementations must
// return a *SourceError when the object can not be analyzed.
type Source interface {
	Kind() string
	ReadAll(ctx context.Context, name string) ([]byte, error)
}

type ErrorKind int

const (
	NotFound ErrorKind = iota + 1
	NotAFile
	ReadFailure
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case NotAFile:
		return "not-a-file"
	case ReadFailure:
		return "read-failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type SourceError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("file does not exist: %s", e.Path)
	case NotAFile:
		return fmt.Sprintf("not a regular file: %s", e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("error reading file %s: %s", e.Path, e.Err)
		}
		return fmt.Sprintf("error reading file: %s", e.Path)
	}
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not a
// SourceError.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}

	return 0
}

func IsNotFound(err error) bool    { return KindOf(err) == NotFound }
func IsNotAFile(err error) bool    { return KindOf(err) == NotAFile }
func IsReadFailure(err error) bool { return KindOf(err) == ReadFailure }

// LocalFileAccess reads files from the local filesystem. When Dir is set,
// names are resolved against it and may not leave it.
type LocalFileAccess struct {
	Dir string
}

func (l *LocalFileAccess) Kind() string {
	return "file"
}

func (l *LocalFileAccess) path(name string) (string, bool) {
	if l.Dir == "" {
		return name, true
	}

	if !filepath.IsLocal(name) {
		return "", false
	}

	return filepath.Join(l.Dir, name), true
}

func (l *LocalFileAccess) ReadAll(ctx context.Context, name string) ([]byte, error) {
	path, ok := l.path(name)
	if !ok {
		return nil, &SourceError{
			Kind: NotFound,
			Path: name,
			Err:  errors.Wrapf(os.ErrNotExist, "outside of %s", l.Dir),
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceError{Kind: NotFound, Path: name, Err: err}
		}

		return nil, &SourceError{Kind: ReadFailure, Path: name, Err: err}
	}

	if !fi.Mode().IsRegular() {
		return nil, &SourceError{Kind: NotAFile, Path: name}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceError{
			Kind: ReadFailure,
			Path: name,
			Err:  errors.Wrapf(err, "reading %s", path),
		}
	}

	return data, nil
}
