package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"storylet.ai/internal/sim/director"
)

// Files lists prefix-*.jsonl.zst under dir in write order. Hour stamps sort
// lexically.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ScanFile calls fn with every line of one compressed JSONL file.
func ScanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadSteps loads every step entry under sessionDir/steps. Entries keep file
// and line order; fromTick drops earlier ticks.
func ReadSteps(sessionDir string, fromTick uint64) ([]director.LogEntry, error) {
	paths, err := Files(filepath.Join(sessionDir, "steps"), "steps")
	if err != nil {
		return nil, err
	}
	var out []director.LogEntry
	for _, p := range paths {
		err := ScanFile(p, func(line []byte) error {
			var e director.LogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(p), err)
			}
			if e.Tick >= fromTick {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadArcs loads every arc event under sessionDir/arcs.
func ReadArcs(sessionDir string) ([]director.ArcEvent, error) {
	paths, err := Files(filepath.Join(sessionDir, "arcs"), "arcs")
	if err != nil {
		return nil, err
	}
	var out []director.ArcEvent
	for _, p := range paths {
		err := ScanFile(p, func(line []byte) error {
			var e director.ArcEvent
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(p), err)
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
