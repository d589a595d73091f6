//go:build !linux

package cache

// IsNetworkedFilesystem is only implemented on Linux.
func IsNetworkedFilesystem(string) bool { return false }
