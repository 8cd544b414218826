package walker

import (
	"errors"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// FileKind is the discriminant recovered from a stat result.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindFifo
	KindCharacter
	KindDirectory
	KindBlock
	KindRegular
	KindLink
	KindSocket
	KindWhiteout
)

func (k FileKind) String() string {
	switch k {
	case KindFifo:
		return "fifo"
	case KindCharacter:
		return "character"
	case KindDirectory:
		return "directory"
	case KindBlock:
		return "block"
	case KindRegular:
		return "regular"
	case KindLink:
		return "link"
	case KindSocket:
		return "socket"
	case KindWhiteout:
		return "whiteout"
	default:
		return "unknown"
	}
}

// fileKind maps a stat result's mode (and, for character devices, its
// device number) onto a FileKind. A character device with a zero rdev is
// the overlayfs whiteout convention.
func fileKind(stat *unix.Stat_t) FileKind {
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFIFO:
		return KindFifo
	case unix.S_IFCHR:
		if stat.Rdev == 0 {
			return KindWhiteout
		}
		return KindCharacter
	case unix.S_IFDIR:
		return KindDirectory
	case unix.S_IFBLK:
		return KindBlock
	case unix.S_IFREG:
		return KindRegular
	case unix.S_IFLNK:
		return KindLink
	case unix.S_IFSOCK:
		return KindSocket
	default:
		return KindUnknown
	}
}

// File is an owned, symlink-transparent descriptor: opened with
// O_PATH|O_NOFOLLOW, so it refers to whatever name was passed at open time
// even when that name is itself a symbolic link. An O_PATH descriptor can
// be fstat'd and used as the directory argument to an *at call, but cannot
// be read from directly; Reader and Scan reopen it through
// /proc/self/fd to get a descriptor that can.
type File struct {
	fd   int
	path string
}

// isDescriptorExhausted reports whether err is the "too many open files"
// failure that raiseFileLimit can recover from.
func isDescriptorExhausted(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}

// raiseFileLimit doubles the process's soft RLIMIT_NOFILE, capped at the
// hard limit.
func raiseFileLimit() error {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return err
	}
	next := rlimit.Cur * 2
	if rlimit.Max != unix.RLIM_INFINITY && next > rlimit.Max {
		next = rlimit.Max
	}
	if next <= rlimit.Cur {
		return errors.New("walker: RLIMIT_NOFILE already at its hard limit")
	}
	rlimit.Cur = next
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit)
}

// openPath opens name symlink-transparently, relative to dir's descriptor
// (or the working directory, if dir is nil). On descriptor exhaustion it
// raises the soft limit once and retries.
func openPath(dir *File, name string) (*File, error) {
	dirFd := unix.AT_FDCWD
	if dir != nil {
		dirFd = dir.fd
	}

	open := func() (int, error) {
		return unix.Openat(dirFd, name, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	}

	fd, err := open()
	if isDescriptorExhausted(err) {
		if limitErr := raiseFileLimit(); limitErr == nil {
			fd, err = open()
		}
	}
	if err != nil {
		return nil, &IOError{Op: "openat", Path: name, Err: err}
	}
	return &File{fd: fd, path: name}, nil
}

// Fd returns the raw descriptor number.
func (f *File) Fd() int {
	return f.fd
}

// Close releases the descriptor.
func (f *File) Close() error {
	return unix.Close(f.fd)
}

// Stat fstats the descriptor.
func (f *File) Stat() (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(f.fd, &st); err != nil {
		return st, &IOError{Op: "fstat", Path: f.path, Err: err}
	}
	return st, nil
}

// StatAt stats name relative to f without following a final symlink
// component, returning its FileKind and inode number.
func (f *File) StatAt(name string) (FileKind, uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(f.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return KindUnknown, 0, &IOError{Op: "fstatat", Path: name, Err: err}
	}
	return fileKind(&st), st.Ino, nil
}

// ReadLinkAt reads the target of the symbolic link named name, relative to
// f, growing its buffer until the whole target fits.
func (f *File) ReadLinkAt(name string) (string, error) {
	buf := make([]byte, 256)
	for {
		n, err := unix.Readlinkat(f.fd, name, buf)
		if err != nil {
			return "", &IOError{Op: "readlinkat", Path: name, Err: err}
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		buf = make([]byte, len(buf)*2)
	}
}

// openReadable reopens f through /proc/self/fd, yielding a descriptor that
// can actually be read or enumerated. f's own descriptor is left exactly
// where it was, so reading a file's contents never disturbs the handle the
// tree store holds for it.
func (f *File) openReadable(extraFlags int) (*os.File, error) {
	procPath := "/proc/self/fd/" + strconv.Itoa(f.fd)
	fd, err := unix.Open(procPath, unix.O_RDONLY|extraFlags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &IOError{Op: "open", Path: f.path, Err: err}
	}
	return os.NewFile(uintptr(fd), f.path), nil
}

// Reader returns a fresh, independently-positioned readable handle onto f's
// contents.
func (f *File) Reader() (*os.File, error) {
	return f.openReadable(0)
}

// RawDirent is one name recovered from a raw getdents64 scan. The kernel's
// d_type hint is not kept; StatAt is the source of truth for FileKind.
type RawDirent struct {
	Name string
}

// Scan lists f's directory entries, including "." (dropped only "..").
func (f *File) Scan() ([]RawDirent, error) {
	dirFile, err := f.openReadable(unix.O_DIRECTORY)
	if err != nil {
		return nil, err
	}
	defer dirFile.Close()

	var entries []RawDirent
	var parsed []Dirent
	buf := make([]byte, 32*1024)
	for {
		n, err := unix.Getdents(int(dirFile.Fd()), buf)
		if err != nil {
			return nil, &IOError{Op: "getdents", Path: f.path, Err: err}
		}
		if n == 0 {
			break
		}
		parsed = ParseDirents(buf, n, parsed)
		for _, d := range parsed {
			entries = append(entries, RawDirent{Name: d.Name})
		}
	}
	return entries, nil
}
