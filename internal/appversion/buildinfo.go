// Package appversion carries the version string stamped into release
// builds.
package appversion

// version is overridden at build time via -ldflags.
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the version of this build.
func String() string {
	return version
}
