package cache

import (
	"golang.org/x/sys/unix"
)

// Filesystem magic numbers from statfs(2).
var networkFSMagic = map[uint32]string{
	0x6969:     "nfs",
	0x517B:     "smb",
	0xFE534D42: "smb2",
	0xFF534D42: "cifs",
	0x5346414F: "afs",
	0x00C36400: "ceph",
	0x0BD00BD0: "lustre",
	0x47504653: "gpfs",
}

// IsNetworkedFilesystem reports whether path, or its deepest existing ancestor, lives
// on a network filesystem.
func IsNetworkedFilesystem(path string) bool {
	p := existingAncestor(path)
	if p == "" {
		return false
	}
	var st unix.Statfs_t
	if err := unix.Statfs(p, &st); err != nil {
		return false
	}
	_, ok := networkFSMagic[uint32(st.Type)]
	return ok
}
