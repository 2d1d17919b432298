package vectorindex

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/interfaces"
	"github.com/code-sleuth/pubmedflo-go/internal/pipeline/models"
	"github.com/code-sleuth/pubmedflo-go/pkg/util"

	"github.com/rs/zerolog"
)

var ErrNoEmbeddings = errors.New("no embeddings available to index")

// FreshnessCheck decides whether existing artifacts can serve a query
// for the given model and metric. Returning false triggers a rebuild.
type FreshnessCheck func(meta *models.IndexMeta, modelName string, metric Metric) bool

// DefaultFreshness accepts artifacts only when they exist and were built
// with the same model and metric.
func DefaultFreshness(meta *models.IndexMeta, modelName string, metric Metric) bool {
	if meta == nil {
		return false
	}
	return meta.ModelName == modelName && meta.Metric == string(metric)
}

// Manager owns the on-disk index artifacts: it rebuilds them from the
// embedding store when they are missing or stale and serves loaded
// copies to readers. One Manager per artifact directory.
type Manager struct {
	artifacts *ArtifactSet
	source    interfaces.EmbeddingSource
	freshness FreshnessCheck

	// buildMu serializes rebuilds; mu guards the artifact files against
	// readers observing a replacement in progress.
	buildMu sync.Mutex
	mu      sync.RWMutex

	logger zerolog.Logger
}

func NewManager(artifacts *ArtifactSet, source interfaces.EmbeddingSource, freshness FreshnessCheck) *Manager {
	if freshness == nil {
		freshness = DefaultFreshness
	}
	return &Manager{
		artifacts: artifacts,
		source:    source,
		freshness: freshness,
		logger:    util.NewLogger(zerolog.ErrorLevel),
	}
}

// EnsureFresh rebuilds the artifacts unless the freshness check accepts
// the existing ones. Concurrent callers rebuild at most once.
func (m *Manager) EnsureFresh(ctx context.Context, modelName string, dim int, metric Metric) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	meta, err := m.loadMeta()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read index meta, rebuilding")
	} else if m.freshness(meta, modelName, metric) && m.exists() {
		return nil
	}

	return m.build(ctx, modelName, dim, metric)
}

// Build unconditionally rebuilds the artifacts from the embedding store.
func (m *Manager) Build(ctx context.Context, modelName string, dim int, metric Metric) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	return m.build(ctx, modelName, dim, metric)
}

func (m *Manager) build(ctx context.Context, modelName string, dim int, metric Metric) error {
	chunkIDs, vectors, err := m.source.FetchForModel(ctx, modelName)
	if err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return ErrNoEmbeddings
	}

	normalized := metric == MetricCosine
	if normalized {
		NormalizeL2(vectors)
	}

	ix, err := NewFlatIndex(dim, metric)
	if err != nil {
		return err
	}
	if err := ix.Add(vectors); err != nil {
		return err
	}

	meta := &models.IndexMeta{
		ModelName:    modelName,
		EmbeddingDim: dim,
		ChunkCount:   len(chunkIDs),
		Metric:       string(metric),
		Normalized:   normalized,
		UpdatedAt:    time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.artifacts.Save(ix, chunkIDs, meta); err != nil {
		return err
	}

	m.logger.Info().
		Str("model", modelName).
		Str("metric", string(metric)).
		Int("chunks", len(chunkIDs)).
		Msg("rebuilt vector index")
	return nil
}

// Load reads the current artifacts into memory.
func (m *Manager) Load() (*FlatIndex, []int64, *models.IndexMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts.Load()
}

// Meta reads the current meta descriptor without loading the index.
func (m *Manager) Meta() (*models.IndexMeta, error) {
	return m.loadMeta()
}

func (m *Manager) loadMeta() (*models.IndexMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts.LoadMeta()
}

func (m *Manager) exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts.Exists()
}
