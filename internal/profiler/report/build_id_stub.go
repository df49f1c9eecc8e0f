//go:build !linux

package report

import "errors"

// ExtractBuildID only reads ELF executables; elsewhere the build ID is left
// empty.
func ExtractBuildID(string) (string, error) {
	return "", errors.New("build ID extraction requires an ELF executable")
}
