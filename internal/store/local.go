package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/zynqcloud/photo-storage/internal/pathutil"
)

const (
	// DefaultDirMode is applied to directories created on demand.
	DefaultDirMode os.FileMode = 0o777
	// DefaultFileMode is applied to uploaded copies unless WithMode overrides it.
	DefaultFileMode os.FileMode = 0o644

	resourcePattern = "photo-"
)

// Local stores photos on a filesystem under projectRoot/savePath.
//
// Paths are handled internally with forward slashes (see package pathutil)
// and converted with filepath.FromSlash only when the filesystem is touched,
// so references returned to callers look the same on every OS.
//
// Local holds no locks. SetSavePath is meant to be called once during
// configuration; changing it while other goroutines use the store races.
type Local struct {
	fs          afero.Fs
	log         logr.Logger
	baseURL     BaseURLProvider
	projectRoot string
	savePath    string
}

// Option configures a Local.
type Option func(*Local)

// WithFs replaces the OS filesystem, typically with afero.NewMemMapFs in tests.
func WithFs(fsys afero.Fs) Option {
	return func(l *Local) { l.fs = fsys }
}

// WithLogger sets the logger used for per-operation debug output.
func WithLogger(log logr.Logger) Option {
	return func(l *Local) { l.log = log }
}

// NewLocal creates a Local rooted at projectRoot, storing photos under the
// savePath subdirectory. A relative projectRoot is resolved against the
// working directory. Nothing is created on disk.
func NewLocal(projectRoot, savePath string, baseURL BaseURLProvider, opts ...Option) (*Local, error) {
	if baseURL == nil {
		return nil, ErrNoBaseURL
	}
	root := projectRoot
	if !pathutil.IsAbs(root) {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve project root %q: %w", projectRoot, err)
		}
		root = filepath.ToSlash(abs)
	}
	l := &Local{
		fs:          afero.NewOsFs(),
		log:         logr.Discard(),
		baseURL:     baseURL,
		projectRoot: pathutil.Normalize(root),
		savePath:    savePath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// UploadOption tunes a single Upload call.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	mode      os.FileMode
	overwrite bool
}

// WithMode sets the permission bits of the stored copy.
func WithMode(mode os.FileMode) UploadOption {
	return func(o *uploadOptions) { o.mode = mode }
}

// WithoutOverwrite makes Upload fail with ErrExists instead of replacing an
// existing file.
func WithoutOverwrite() UploadOption {
	return func(o *uploadOptions) { o.overwrite = false }
}

// Upload copies src into the store and returns its logical reference.
//
// An empty destination stores the file under its own basename; a destination
// ending in a separator is treated as a directory and the basename is
// appended. Missing parent directories are created.
func (l *Local) Upload(src, destination string, opts ...UploadOption) (string, error) {
	o := uploadOptions{mode: DefaultFileMode, overwrite: true}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := l.fs.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("upload %s: %w", src, ErrNotFound)
	}

	name := filepath.Base(src)
	switch {
	case destination == "":
		destination = name
	case strings.HasSuffix(destination, "/"), strings.HasSuffix(destination, `\`):
		destination += name
	}

	target := l.NormalizePath(destination, true, true)
	if _, err := l.VerifyPathExists(path.Dir(target), true); err != nil {
		return "", err
	}
	if !o.overwrite {
		if _, err := l.fs.Stat(osPath(target)); err == nil {
			return "", fmt.Errorf("upload %s: %w", target, ErrExists)
		}
	}
	if err := l.copyFile(src, osPath(target), o.mode); err != nil {
		return "", &OpError{Op: "upload", Path: target, Err: err}
	}

	ref := l.NormalizePath(destination, false, false)
	if rel, ok := pathutil.TrimPrefix(ref, l.Path()); ok {
		ref = rel
	}
	l.log.V(1).Info("photo stored", "src", src, "path", target, "ref", ref)
	return ref, nil
}

// copyFile streams src to dst through a uniquely named temp file in dst's
// directory and an atomic rename, so a failed copy never leaves a truncated
// photo behind and no other stored file is touched.
func (l *Local) copyFile(src, dst string, mode os.FileMode) error {
	in, err := l.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := afero.TempFile(l.fs, filepath.Dir(dst), "."+filepath.Base(dst)+"-*")
	if err != nil {
		return err
	}
	tmp := out.Name()

	_, werr := io.Copy(out, in)
	cerr := out.Close()

	if werr != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return werr
	}
	if cerr != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return cerr
	}
	if err := l.fs.Chmod(tmp, mode); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return err
	}
	if err := l.fs.Rename(tmp, dst); err != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

// DeletePhoto removes file. A file that does not exist counts as deleted.
func (l *Local) DeletePhoto(file string) error {
	ok, err := l.Exists(file)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	p := l.PhotoPath(file)
	if err := l.fs.Remove(osPath(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &OpError{Op: "delete", Path: p, Err: err}
	}
	l.log.V(1).Info("photo deleted", "path", p)
	return nil
}

// Exists reports whether file resolves to a regular file. Directories do not count.
func (l *Local) Exists(file string) (bool, error) {
	p := l.PhotoPath(file)
	info, err := l.fs.Stat(osPath(p))
	// A file standing in for a parent directory (ENOTDIR) also means missing.
	if securejoin.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &OpError{Op: "stat", Path: p, Err: err}
	}
	return info.Mode().IsRegular(), nil
}

// PhotoPath returns the absolute path of file. Existence is not checked.
func (l *Local) PhotoPath(file string) string {
	return l.NormalizePath(file, true, true)
}

// PhotoURL returns the public URL of file under the provider's base URL.
//
// file is relative to the project root, optionally prefixed with the root
// itself; both forms of the same path give the same URL. The result is the
// base URL, then the save path, then file. The root prefix is removed
// segment-wise, so a directory that merely repeats the root's name later in
// the path is left untouched.
func (l *Local) PhotoURL(ctx context.Context, file string) (string, error) {
	ref := pathutil.Normalize(file)
	if rel, ok := pathutil.TrimPrefix(ref, l.projectRoot); ok {
		ref = rel
	} else {
		ref = strings.TrimLeft(ref, "/")
	}

	base := strings.TrimRight(l.baseURL.BaseURL(ctx), "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("photo url %s: parse base url %q: %w", file, base, err)
	}

	elems := strings.Split(pathutil.Join(l.savePath, ref), "/")
	for i, e := range elems {
		elems[i] = url.PathEscape(e)
	}
	return strings.TrimRight(u.JoinPath(elems...).String(), "/"), nil
}

// PhotoResource copies file into a new temporary file in the system temp
// directory and returns the temporary file's path. The caller owns the copy
// and must remove it when done.
func (l *Local) PhotoResource(file string) (string, error) {
	ok, err := l.Exists(file)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("photo resource %s: %w", file, ErrNotFound)
	}

	p := l.PhotoPath(file)
	in, err := l.fs.Open(osPath(p))
	if err != nil {
		return "", &OpError{Op: "open", Path: p, Err: err}
	}
	defer in.Close()

	out, err := afero.TempFile(l.fs, "", resourcePattern)
	if err != nil {
		return "", &OpError{Op: "tempfile", Path: p, Err: err}
	}
	tmp := out.Name()

	_, werr := io.Copy(out, in)
	cerr := out.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		l.fs.Remove(tmp) //nolint:errcheck
		return "", &OpError{Op: "copy", Path: tmp, Err: werr}
	}
	l.log.V(1).Info("photo resource created", "path", p, "resource", tmp)
	return tmp, nil
}

// SavePath returns the configured save subdirectory.
func (l *Local) SavePath() string { return l.savePath }

// SetSavePath changes the save subdirectory. The value is not validated.
func (l *Local) SetSavePath(p string) { l.savePath = p }

// ProjectRoot returns the normalized absolute project root.
func (l *Local) ProjectRoot() string { return l.projectRoot }

// Path returns the absolute save directory (project root plus save path).
// The directory is not required to exist.
func (l *Local) Path() string {
	return l.NormalizePath("", true, true)
}

// Fs returns the filesystem the store operates on.
func (l *Local) Fs() afero.Fs { return l.fs }

// DirectoryExists reports whether dir resolves to an existing directory.
// Relative directories are resolved under the save directory.
func (l *Local) DirectoryExists(dir string) bool {
	info, err := l.fs.Stat(osPath(l.NormalizePath(dir, true, true)))
	return err == nil && info.IsDir()
}

// CreateDirectory creates dir with the given permission bits, including any
// missing parents when recursive is set. An existing directory is a no-op.
func (l *Local) CreateDirectory(dir string, recursive bool, mode os.FileMode) error {
	if l.DirectoryExists(dir) {
		return nil
	}
	p := l.NormalizePath(dir, true, true)
	mkdir := l.fs.Mkdir
	if recursive {
		mkdir = l.fs.MkdirAll
	}
	if err := mkdir(osPath(p), mode); err != nil {
		return &OpError{Op: "mkdir", Path: p, Err: err}
	}
	return nil
}

// VerifyPathExists returns p unchanged when it is a directory. A missing
// directory is created when create is set and is otherwise reported as
// ErrDirectoryNotFound.
func (l *Local) VerifyPathExists(p string, create bool) (string, error) {
	if create {
		if err := l.CreateDirectory(p, true, DefaultDirMode); err != nil {
			return "", err
		}
		return p, nil
	}
	if !l.DirectoryExists(p) {
		return "", fmt.Errorf("%s: %w", p, ErrDirectoryNotFound)
	}
	return p, nil
}

// NormalizePath resolves p against the store. Absolute paths are only
// normalized. Relative paths are prefixed with the project root when
// withRoot is set and with the save path when withBasePath is set.
func (l *Local) NormalizePath(p string, withRoot, withBasePath bool) string {
	if pathutil.IsAbs(p) {
		return pathutil.Normalize(p)
	}
	var elems []string
	if withRoot {
		elems = append(elems, l.projectRoot)
	}
	if withBasePath {
		elems = append(elems, l.savePath)
	}
	return pathutil.Join(append(elems, p)...)
}

// DiskStats returns available and total bytes on the volume holding the
// save directory, or (0, 0) when the platform cannot tell.
func (l *Local) DiskStats() (avail, total uint64) {
	return diskStats(osPath(l.Path()))
}

func osPath(p string) string { return filepath.FromSlash(p) }
