//go:build !unix

package activation

// lock is a no-op where flock is unavailable; edits stay atomic via rename.
func lock(string) (func(), error) {
	return func() {}, nil
}
