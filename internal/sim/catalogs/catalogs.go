// Package catalogs loads the authored storylet library from configs/storylets
// and compiles it into the read-only storylet.Source the director runs against.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"storylet.ai/internal/sim/storylet"
)

var ErrUnknownFollowUp = errors.New("unknown follow-up storylet")

//go:embed storylet.schema.json
var schemaJSON []byte

const schemaURL = "https://storylet.ai/schema/storylet.json"

// Library is an in-memory storylet.Source. Keys are assigned in ascending id
// order so the same files always compile to the same keys.
type Library struct {
	storylets []storylet.CompiledStorylet
	byID      map[string]storylet.Key
	byStage   map[storylet.LifeStage][]storylet.Key
	byDomain  map[storylet.Domain][]storylet.Key
	byTag     map[string][]storylet.Key
	digest    string
}

var _ storylet.Source = (*Library)(nil)

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

// Load reads every *.json file under dir (recursively, sorted by path). Each
// file holds one storylet object and must validate against the embedded
// schema. A missing directory yields an empty library.
func Load(dir string) (*Library, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("storylet schema: %w", err)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if _, statErr := os.Stat(dir); statErr != nil && os.IsNotExist(statErr) {
			return build(nil, sha256Hex(nil))
		}
		return nil, err
	}
	sort.Strings(files)

	var concat bytes.Buffer
	defs := make([]StoryletDef, 0, len(files))
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("storylet %s: %w", filepath.Base(p), err)
		}
		if err := schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("storylet %s: %w", filepath.Base(p), err)
		}
		var d StoryletDef
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, fmt.Errorf("storylet %s: %w", filepath.Base(p), err)
		}
		defs = append(defs, d)
	}
	return build(defs, sha256Hex(concat.Bytes()))
}

// Compile builds a library from in-memory defs. The digest covers the
// canonical JSON of the defs sorted by id.
func Compile(defs []StoryletDef) (*Library, error) {
	sorted := append([]StoryletDef(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	raw, err := json.Marshal(sorted)
	if err != nil {
		return nil, err
	}
	return build(defs, sha256Hex(raw))
}

func build(defs []StoryletDef, digest string) (*Library, error) {
	sorted := append([]StoryletDef(nil), defs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	keys := make(map[string]storylet.Key, len(sorted))
	for i, d := range sorted {
		if d.ID == "" {
			return nil, fmt.Errorf("storylet: missing id")
		}
		if _, dup := keys[d.ID]; dup {
			return nil, fmt.Errorf("storylet %s: duplicate id", d.ID)
		}
		keys[d.ID] = storylet.Key(i)
	}

	lib := &Library{
		storylets: make([]storylet.CompiledStorylet, 0, len(sorted)),
		byID:      keys,
		byStage:   map[storylet.LifeStage][]storylet.Key{},
		byDomain:  map[storylet.Domain][]storylet.Key{},
		byTag:     map[string][]storylet.Key{},
		digest:    digest,
	}
	for i, d := range sorted {
		s, err := compile(storylet.Key(i), d, keys)
		if err != nil {
			return nil, fmt.Errorf("storylet %s: %w", d.ID, err)
		}
		lib.storylets = append(lib.storylets, s)

		// Keys are visited in ascending order, so every index list stays sorted.
		if s.LifeStage == storylet.LifeStageAny {
			for _, st := range storylet.LifeStages {
				lib.byStage[st] = append(lib.byStage[st], s.Key)
			}
		} else {
			lib.byStage[s.LifeStage] = append(lib.byStage[s.LifeStage], s.Key)
		}
		lib.byStage[storylet.LifeStageAny] = append(lib.byStage[storylet.LifeStageAny], s.Key)
		lib.byDomain[s.Domain] = append(lib.byDomain[s.Domain], s.Key)
		for _, t := range s.Tags {
			lib.byTag[t] = append(lib.byTag[t], s.Key)
		}
	}
	return lib, nil
}

func (l *Library) Storylet(key storylet.Key) (*storylet.CompiledStorylet, bool) {
	if int(key) >= len(l.storylets) {
		return nil, false
	}
	return &l.storylets[key], true
}

// CandidatesForLifeStage returns storylets playable at stage. LifeStageAny
// returns the whole library.
func (l *Library) CandidatesForLifeStage(stage storylet.LifeStage) []storylet.Key {
	return l.byStage[stage]
}

func (l *Library) ForDomain(d storylet.Domain) []storylet.Key {
	return l.byDomain[d]
}

func (l *Library) ForTag(tag string) []storylet.Key {
	return l.byTag[tag]
}

func (l *Library) KeyByID(id string) (storylet.Key, bool) {
	k, ok := l.byID[id]
	return k, ok
}

func (l *Library) Len() int {
	return len(l.storylets)
}

func (l *Library) Digest() string {
	return l.digest
}

// IDs lists storylet ids in key order.
func (l *Library) IDs() []string {
	out := make([]string, len(l.storylets))
	for i := range l.storylets {
		out[i] = l.storylets[i].ID
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
