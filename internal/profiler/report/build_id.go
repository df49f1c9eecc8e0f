//go:build linux

package report

import (
	"crypto/sha256"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ELF note types carrying a build ID.
const (
	noteTypeGoBuildID  = 4
	noteTypeGNUBuildID = 3
)

// ExtractBuildID identifies an ELF executable. The Go toolchain note is
// preferred, then the GNU note; executables with neither are identified by
// the SHA-256 of their contents.
func ExtractBuildID(binaryPath string) (string, error) {
	f, err := elf.Open(binaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if desc, ok := sectionNote(f, ".note.go.buildid", "Go", noteTypeGoBuildID); ok {
		return string(desc), nil
	}
	if desc, ok := sectionNote(f, ".note.gnu.build-id", "GNU", noteTypeGNUBuildID); ok {
		return hex.EncodeToString(desc), nil
	}
	return hashFile(binaryPath)
}

func sectionNote(f *elf.File, section, name string, typ uint32) ([]byte, bool) {
	s := f.Section(section)
	if s == nil {
		return nil, false
	}
	data, err := s.Data()
	if err != nil {
		return nil, false
	}
	desc, err := findNote(data, f.ByteOrder, name, typ)
	if err != nil || len(desc) == 0 {
		return nil, false
	}
	return desc, true
}

var errNoNote = errors.New("note not found")

// findNote scans a note section for the first note with the given owner and
// type. Each entry is namesz, descsz, type, then name and desc, both padded
// to 4 bytes.
func findNote(data []byte, order binary.ByteOrder, name string, typ uint32) ([]byte, error) {
	align := func(n uint32) int { return int((n + 3) &^ 3) }
	for len(data) >= 12 {
		namesz := order.Uint32(data[0:4])
		descsz := order.Uint32(data[4:8])
		ntype := order.Uint32(data[8:12])
		data = data[12:]

		if align(namesz) > len(data) {
			return nil, errors.New("truncated note name")
		}
		owner := data[:namesz]
		data = data[align(namesz):]
		if int(descsz) > len(data) {
			return nil, errors.New("truncated note descriptor")
		}
		desc := data[:descsz]
		if align(descsz) <= len(data) {
			data = data[align(descsz):]
		} else {
			data = nil
		}

		if ntype == typ && trimNul(owner) == name {
			return desc, nil
		}
	}
	return nil, errNoNote
}

func trimNul(b []byte) string {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func hashFile(path string) (string, error) {
	// #nosec G304 - path is the profiled executable.
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open binary for hashing: %w", err)
	}
	defer func() { _ = file.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash binary: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
