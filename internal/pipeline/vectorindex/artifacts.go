package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
)

var ErrArtifactsMissing = errors.New("index artifacts not found")

const (
	indexFileName = "index_flat.bin"
	idsFileName   = "index_flat.ids.bin"
	metaFileName  = "index_flat.meta.json"
)

// ArtifactSet locates the three files that make up a persisted index:
// the vector index, the parallel chunk-id array, and the JSON meta
// descriptor.
type ArtifactSet struct {
	dir string
}

func NewArtifactSet(dir string) *ArtifactSet {
	return &ArtifactSet{dir: dir}
}

func (a *ArtifactSet) IndexPath() string { return filepath.Join(a.dir, indexFileName) }
func (a *ArtifactSet) IDsPath() string   { return filepath.Join(a.dir, idsFileName) }
func (a *ArtifactSet) MetaPath() string  { return filepath.Join(a.dir, metaFileName) }

// Exists reports whether all three artifact files are present.
func (a *ArtifactSet) Exists() bool {
	for _, path := range []string{a.IndexPath(), a.IDsPath(), a.MetaPath()} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// Save atomically replaces the artifact trio. Each file is written to a
// temp path and renamed into place; the meta descriptor is renamed last
// so a crash mid-save never leaves a meta file describing missing or
// partial artifacts.
func (a *ArtifactSet) Save(ix *FlatIndex, chunkIDs []int64, meta *models.IndexMeta) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := writeAtomic(a.IndexPath(), func(f *os.File) error {
		return ix.WriteTo(f)
	}); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	if err := writeAtomic(a.IDsPath(), func(f *os.File) error {
		if err := binary.Write(f, binary.LittleEndian, uint32(len(chunkIDs))); err != nil {
			return err
		}
		return binary.Write(f, binary.LittleEndian, chunkIDs)
	}); err != nil {
		return fmt.Errorf("failed to save chunk ids: %w", err)
	}

	if err := writeAtomic(a.MetaPath(), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save index meta: %w", err)
	}

	return nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadMeta reads just the meta descriptor. Returns nil, nil when no
// descriptor exists.
func (a *ArtifactSet) LoadMeta() (*models.IndexMeta, error) {
	data, err := os.ReadFile(a.MetaPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index meta: %w", err)
	}

	var meta models.IndexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse index meta: %w", err)
	}
	return &meta, nil
}

// Load reads the full artifact trio back into memory.
func (a *ArtifactSet) Load() (*FlatIndex, []int64, *models.IndexMeta, error) {
	if !a.Exists() {
		return nil, nil, nil, ErrArtifactsMissing
	}

	meta, err := a.LoadMeta()
	if err != nil {
		return nil, nil, nil, err
	}

	indexFile, err := os.Open(a.IndexPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	ix, err := ReadFlatIndex(indexFile)
	if err != nil {
		return nil, nil, nil, err
	}

	idsFile, err := os.Open(a.IDsPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open chunk ids: %w", err)
	}
	defer idsFile.Close()

	var count uint32
	if err := binary.Read(idsFile, binary.LittleEndian, &count); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: bad id header: %v", ErrCorruptIndex, err)
	}
	chunkIDs := make([]int64, count)
	if err := binary.Read(idsFile, binary.LittleEndian, chunkIDs); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: truncated ids: %v", ErrCorruptIndex, err)
	}

	if ix.Len() != len(chunkIDs) {
		return nil, nil, nil, fmt.Errorf("%w: index has %d rows but %d ids", ErrCorruptIndex, ix.Len(), len(chunkIDs))
	}

	return ix, chunkIDs, meta, nil
}
