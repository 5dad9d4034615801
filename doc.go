// Package main provides the go-provcheck CLI tool for checking iOS
// provisioning profiles.
//
// For the library API, see the provision subpackage:
//
//	import "github.com/aluedeke/go-provcheck/pkg/provision"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/aluedeke/go-provcheck@latest
package main
