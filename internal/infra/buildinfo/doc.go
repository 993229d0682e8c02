// Package buildinfo exposes version information for AuthMesh binaries.
//
// Release builds inject values via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/authmesh-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Without ldflags, the VCS revision and Go version recorded by the
// toolchain are used when available.
package buildinfo
