package report

import (
	"fmt"
	"os"
)

// SelfMapping describes the running executable. The build ID is left empty
// when it cannot be determined.
func SelfMapping() (Mapping, error) {
	exe, err := os.Executable()
	if err != nil {
		return Mapping{}, fmt.Errorf("failed to locate executable: %w", err)
	}
	m := Mapping{File: exe}
	buildID, err := ExtractBuildID(exe)
	if err != nil {
		return m, err
	}
	m.BuildID = buildID
	return m, nil
}
