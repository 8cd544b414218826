package walker

import "unsafe"

// Linux dirent64 structure layout:
//
//	struct linux_dirent64 {
//	    ino64_t        d_ino;    /* 64-bit inode number */
//	    off64_t        d_off;    /* 64-bit offset to next structure */
//	    unsigned short d_reclen; /* Size of this dirent */
//	    unsigned char  d_type;   /* File type */
//	    char           d_name[]; /* Filename (null-terminated) */
//	};

// Dirent represents a parsed Linux directory entry. Name-based decisions
// (kind, inode) are always re-derived via StatAt; d_type is too unreliable
// across filesystems to be load-bearing here.
type Dirent struct {
	Name string
}

// ParseDirents parses raw getdents64 output into Dirent structs. buf must
// contain the raw bytes returned by unix.Getdents. dst is reused to avoid
// a per-call slice allocation; pass nil on first call.
//
// "." is retained, matching the raw directory stream; only ".." is
// dropped, since the tree builder's hidden-file rule in the ignore stack
// already filters "." before it could ever produce a graph edge.
func ParseDirents(buf []byte, n int, dst []Dirent) []Dirent {
	entries := dst[:0]
	offset := 0

	for offset < n {
		if offset+19 > n {
			break
		}

		reclen := *(*uint16)(unsafe.Pointer(&buf[offset+16]))
		if reclen == 0 {
			break
		}

		nameStart := offset + 19
		nameEnd := offset + int(reclen)
		if nameEnd > n {
			nameEnd = n
		}

		nameBytes := buf[nameStart:nameEnd]
		nameLen := 0
		for nameLen < len(nameBytes) && nameBytes[nameLen] != 0 {
			nameLen++
		}
		name := string(nameBytes[:nameLen])

		if name != ".." {
			entries = append(entries, Dirent{Name: name})
		}

		offset += int(reclen)
	}

	return entries
}
