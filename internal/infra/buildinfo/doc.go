// Package buildinfo exposes build-time version information.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/slotkeep-go/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not, module information embedded by the Go toolchain is
// used. Version is written into every slot's metadata as AppVersion.
package buildinfo
