package walker

// nodeID is the opaque, small-integer identifier the store hands out on
// first insertion. It is stable for the tree's lifetime; index 0 is not
// reserved (the root's ID is tracked separately by Tree).
type nodeID int

// treeEntry pairs an owned, symlink-transparent descriptor with the
// filesystem's inode number for the file it refers to.
type treeEntry struct {
	handle *File
	inode  uint64
}

// treeStore is the dual-indexed table of tree entries backing a Tree: every
// node is reachable both by the inode it was inserted under and, while its
// descriptor stays open, by that descriptor's fd number.
type treeStore struct {
	entries []treeEntry
	byInode map[uint64]nodeID
	byFd    map[int]nodeID
}

func newTreeStore() *treeStore {
	return &treeStore{
		byInode: make(map[uint64]nodeID),
		byFd:    make(map[int]nodeID),
	}
}

// insert registers entry and returns its node ID. If entry is already
// indexed under the same inode and the same descriptor, the existing ID is
// returned instead of allocating a new slot. An index hit under only one of
// the two keys means the store's no-two-entries-share-a-handle-or-inode
// invariant has already been broken elsewhere, and is a programming error.
func (s *treeStore) insert(entry treeEntry) nodeID {
	inodeID, byInode := s.byInode[entry.inode]
	fdID, byFd := s.byFd[entry.handle.fd]

	if byInode && byFd {
		if inodeID != fdID {
			panic("walker: store invariant violated: inode and descriptor indexes disagree")
		}
		return inodeID
	}
	if byInode != byFd {
		panic("walker: store invariant violated: asymmetric index hit")
	}

	id := nodeID(len(s.entries))
	s.entries = append(s.entries, entry)
	s.byInode[entry.inode] = id
	s.byFd[entry.handle.fd] = id
	return id
}

func (s *treeStore) byID(id nodeID) treeEntry {
	return s.entries[id]
}

func (s *treeStore) idByInode(inode uint64) (nodeID, bool) {
	id, ok := s.byInode[inode]
	return id, ok
}

func (s *treeStore) idByFd(fd int) (nodeID, bool) {
	id, ok := s.byFd[fd]
	return id, ok
}

func (s *treeStore) count() int {
	return len(s.entries)
}
