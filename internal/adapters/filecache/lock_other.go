//go:build !unix

package filecache

// lockFile is a no-op where advisory file locks are unavailable; writers are
// then only serialized within the process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
