// Package bpf holds the kernel-side exit probe and the generated bindings
// for loading it. Run `go generate ./...` after changing exitprobe.c to
// regenerate exitprobe_bpfel.go/exitprobe_bpfeb.go via bpf2go.
package bpf

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -target amd64,arm64 -cc clang exitprobe exitprobe.c -- -I./headers
