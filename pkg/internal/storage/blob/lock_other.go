//go:build !unix

package blob

import "os"

// 非 unix 平台只有进程内互斥.
func lockFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

func unlockFile(f *os.File) error {
	return f.Close()
}
