// Package schema checks that a run directory has the layout the ingestion
// pipeline reads and returns a manifest of what it found.
package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"evovis/internal/codec"
	"evovis/internal/runerr"
)

const (
	ConfigFile        = "config.json"
	CrossoverLogFile  = "crossover_parents.csv"
	CrossoverLogAlias = "crossover_log.csv"
	SearchSpaceFile   = "search_space.json"
	ResultsFile       = "results.json"
	ChromosomeFile    = "chromosome.json"

	individualFilePrefix = "individual_"
	individualFileSuffix = ".json"
)

var generationDirPattern = regexp.MustCompile(`(?i)^generation_(\d+)$`)

type Form string

const (
	FormDir  Form = "dir"
	FormFile Form = "file"
)

type IndividualEntry struct {
	ID   string
	Path string
	Form Form
}

// ResultsPath returns the artifact holding the individual's results. For the
// single-file form this is the individual file itself.
func (e IndividualEntry) ResultsPath() string {
	if e.Form == FormFile {
		return e.Path
	}
	return filepath.Join(e.Path, ResultsFile)
}

func (e IndividualEntry) ChromosomePath() string {
	if e.Form == FormFile {
		return e.Path
	}
	return filepath.Join(e.Path, ChromosomeFile)
}

type GenerationDir struct {
	Index       int
	Name        string
	Path        string
	Individuals []IndividualEntry
}

type Manifest struct {
	RunDir           string
	ConfigPath       string
	CrossoverLogPath string
	SearchSpacePath  string
	Generations      []GenerationDir
}

func (m Manifest) IndividualCount() int {
	total := 0
	for _, generation := range m.Generations {
		total += len(generation.Individuals)
	}
	return total
}

// Validate checks dir and returns its manifest. Generation directories are
// returned in ascending numeric order and their individuals sorted by id.
func Validate(ctx context.Context, dir string) (Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, runerr.Missing(dir)
		}
		return Manifest{}, runerr.Malformed(dir, err, "stat run directory: %v", err)
	}
	if !info.IsDir() {
		return Manifest{}, runerr.Malformed(dir, nil, "run path is not a directory")
	}

	manifest := Manifest{
		RunDir:          dir,
		ConfigPath:      filepath.Join(dir, ConfigFile),
		SearchSpacePath: filepath.Join(dir, SearchSpaceFile),
	}

	if err := requireFile(manifest.ConfigPath); err != nil {
		return Manifest{}, err
	}
	logPath, err := crossoverLogPath(dir)
	if err != nil {
		return Manifest{}, err
	}
	manifest.CrossoverLogPath = logPath
	if err := requireFile(manifest.SearchSpacePath); err != nil {
		return Manifest{}, err
	}

	if err := checkShapes(manifest); err != nil {
		return Manifest{}, err
	}

	generations, err := discoverGenerations(dir)
	if err != nil {
		return Manifest{}, err
	}
	for i := range generations {
		if err := ctx.Err(); err != nil {
			return Manifest{}, err
		}
		individuals, err := discoverIndividuals(generations[i].Path)
		if err != nil {
			return Manifest{}, err
		}
		generations[i].Individuals = individuals
	}
	manifest.Generations = generations
	return manifest, nil
}

func crossoverLogPath(dir string) (string, error) {
	primary := filepath.Join(dir, CrossoverLogFile)
	if err := requireFile(primary); err == nil {
		return primary, nil
	} else if !errors.Is(err, runerr.ErrMissingArtifact) {
		return "", err
	}
	alias := filepath.Join(dir, CrossoverLogAlias)
	if err := requireFile(alias); err == nil {
		return alias, nil
	}
	missing := runerr.Missing(primary)
	missing.Detail = fmt.Sprintf("not found (looked for %s and %s)", CrossoverLogFile, CrossoverLogAlias)
	return "", missing
}

func checkShapes(m Manifest) error {
	data, err := codec.ReadFile(m.ConfigPath)
	if err != nil {
		return err
	}
	if _, err := codec.DecodeConfig(m.ConfigPath, data); err != nil {
		return err
	}

	data, err = codec.ReadFile(m.SearchSpacePath)
	if err != nil {
		return err
	}
	if _, err := codec.DecodeSearchSpace(m.SearchSpacePath, data); err != nil {
		return err
	}

	file, err := os.Open(m.CrossoverLogPath)
	if err != nil {
		return runerr.Malformed(m.CrossoverLogPath, err, "open: %v", err)
	}
	defer file.Close()
	_, err = codec.ReadCrossoverLog(m.CrossoverLogPath, file)
	return err
}

func discoverGenerations(dir string) ([]GenerationDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, runerr.Malformed(dir, err, "list run directory: %v", err)
	}

	byIndex := make(map[int]GenerationDir)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		match := generationDirPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, runerr.Malformed(filepath.Join(dir, entry.Name()), err, "generation number out of range")
		}
		if other, dup := byIndex[index]; dup {
			return nil, runerr.Malformed(filepath.Join(dir, entry.Name()), nil, "generation %d also stored in %s", index, other.Name)
		}
		byIndex[index] = GenerationDir{Index: index, Name: entry.Name(), Path: filepath.Join(dir, entry.Name())}
	}
	if len(byIndex) == 0 {
		return nil, &runerr.Error{
			Kind:   runerr.MissingArtifact,
			Path:   filepath.Join(dir, "Generation_*"),
			Detail: "no generation directories found",
		}
	}

	generations := make([]GenerationDir, 0, len(byIndex))
	for _, generation := range byIndex {
		generations = append(generations, generation)
	}
	sort.Slice(generations, func(i, j int) bool { return generations[i].Index < generations[j].Index })

	if first := generations[0].Index; first != 0 && first != 1 {
		return nil, runerr.Malformed(generations[0].Path, nil, "first generation is %d, expected 0 or 1", first)
	}
	for i := 1; i < len(generations); i++ {
		if generations[i].Index != generations[i-1].Index+1 {
			return nil, runerr.Malformed(dir, nil, "generation %d is missing between %s and %s",
				generations[i-1].Index+1, generations[i-1].Name, generations[i].Name)
		}
	}
	return generations, nil
}

func discoverIndividuals(generationDir string) ([]IndividualEntry, error) {
	entries, err := os.ReadDir(generationDir)
	if err != nil {
		return nil, runerr.Malformed(generationDir, err, "list generation directory: %v", err)
	}

	individuals := make([]IndividualEntry, 0, len(entries))
	seen := make(map[string]string)
	add := func(entry IndividualEntry) error {
		if other, dup := seen[entry.ID]; dup {
			return runerr.New(runerr.DuplicateIndividualID, entry.Path, entry.ID, "also stored at %s", other)
		}
		seen[entry.ID] = entry.Path
		individuals = append(individuals, entry)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(generationDir, name)
		switch {
		case entry.IsDir():
			if err := requireFile(filepath.Join(path, ResultsFile)); err != nil {
				return nil, err
			}
			if err := requireFile(filepath.Join(path, ChromosomeFile)); err != nil {
				return nil, err
			}
			if err := add(IndividualEntry{ID: name, Path: path, Form: FormDir}); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, individualFilePrefix) && strings.HasSuffix(name, individualFileSuffix):
			id := strings.TrimSuffix(strings.TrimPrefix(name, individualFilePrefix), individualFileSuffix)
			if id == "" {
				return nil, runerr.Malformed(path, nil, "individual file without identifier")
			}
			if err := add(IndividualEntry{ID: id, Path: path, Form: FormFile}); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(individuals, func(i, j int) bool { return individuals[i].ID < individuals[j].ID })
	return individuals, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return runerr.Missing(path)
		}
		return runerr.Malformed(path, err, "stat: %v", err)
	}
	if info.IsDir() {
		return runerr.Malformed(path, nil, "expected a file, found a directory")
	}
	return nil
}
