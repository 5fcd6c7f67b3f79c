package jobconfig

import (
	"fmt"
	"os"
	"path/filepath"

	goccyjson "github.com/goccy/go-json"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

// DumpSuffix and LoadedSuffix name the two states a job-definition file
// passes through in the new-jobs directory: freshly serialized (.job) and
// consumed by the ingest loop (.loaded). Serialization goes through a
// .dumping temp file renamed into place, so a scanner never observes a
// half-written definition.
const (
	DumpSuffix   = ".job"
	LoadedSuffix = ".loaded"
	tempSuffix   = ".dumping"
)

// Save serializes settings to <dir>/<settings.Identifier>.job, writing to a
// temp file first and renaming into place so a reader scanning dir never
// observes a partially written file.
func Save(dir string, settings jobspec.JobSettings) (string, error) {
	final := filepath.Join(dir, settings.Identifier+DumpSuffix)
	tmp := final + tempSuffix

	data, err := goccyjson.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("jobconfig: marshal settings: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("jobconfig: write temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("jobconfig: rename into place: %w", err)
	}
	return final, nil
}

// LoadSerialized reads and decodes a .job file previously written by Save.
func LoadSerialized(path string) (jobspec.JobSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: read %s: %w", path, err)
	}
	var settings jobspec.JobSettings
	if err := goccyjson.Unmarshal(data, &settings); err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: unmarshal %s: %w", path, err)
	}
	if err := settings.Compile(); err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: compile %s: %w", path, err)
	}
	return settings, nil
}

// MarkLoaded renames a consumed .job file to its .loaded form so the ingest
// loop never loads it twice.
func MarkLoaded(path string) error {
	loaded := path[:len(path)-len(DumpSuffix)] + LoadedSuffix
	return os.Rename(path, loaded)
}
