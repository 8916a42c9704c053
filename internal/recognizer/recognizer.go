// Package recognizer matches face crops against a labeled corpus using local
// binary pattern histograms. Training always rebuilds from the full corpus and
// the trained state is swapped in atomically, so recognition never waits on
// or observes a half-built model.
package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/gaze/internal/normalize"
	"github.com/andresmejia3/gaze/internal/types"
	"github.com/coder/hnsw"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// SampleSource streams every stored training sample.
type SampleSource interface {
	AllSamples(ctx context.Context, fn func(types.Sample) error) error
}

// Progress receives one tick per sample read during training.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(num int) error
}

// Config tunes the model.
type Config struct {
	// Threshold is the largest distance still reported as a match.
	Threshold float64 `yaml:"threshold"`
	// FaceSize is the side of the square every face is resized to.
	FaceSize int `yaml:"face_size"`
	// Grid is the number of histogram cells per side.
	Grid int `yaml:"grid"`
	// IndexMinSamples switches to an approximate neighbour index once the
	// corpus reaches this size. Zero, the default, always scans exactly.
	// Chi-square is not a metric, so the index may miss the true nearest
	// sample.
	IndexMinSamples int `yaml:"index_min_samples"`
	// IndexCandidates is how many index hits are re-ranked exactly.
	IndexCandidates int `yaml:"index_candidates"`
}

// DefaultConfig returns the classic LBPH settings.
func DefaultConfig() Config {
	return Config{
		Threshold:       60,
		FaceSize:        100,
		Grid:            8,
		IndexCandidates: 256,
	}
}

// Match is the outcome of a recognition.
type Match struct {
	Label    int
	Distance float64
}

// Known reports whether the match names a person.
func (m Match) Known() bool {
	return m.Label != types.UnknownLabel
}

// Stats summarizes a training run.
type Stats struct {
	Samples  int
	Skipped  int
	People   int
	Indexed  bool
	Duration time.Duration
}

type state struct {
	hists  [][]float32
	labels []int
	index  *hnsw.Graph[int]
}

// Model is the appearance model. The zero state is untrained.
type Model struct {
	source   SampleSource
	cfg      Config
	state    atomic.Pointer[state]
	train    sync.Mutex
	progress Progress
	log      *logrus.Entry
}

// New creates an untrained model reading its corpus from source.
func New(source SampleSource, cfg Config) *Model {
	def := DefaultConfig()
	if cfg.FaceSize <= 0 {
		cfg.FaceSize = def.FaceSize
	}
	if cfg.Grid <= 0 {
		cfg.Grid = def.Grid
	}
	if cfg.IndexCandidates <= 0 {
		cfg.IndexCandidates = def.IndexCandidates
	}
	return &Model{
		source: source,
		cfg:    cfg,
		log:    logrus.WithField("component", "recognizer"),
	}
}

// SetProgress attaches a progress sink used by subsequent Init calls.
func (m *Model) SetProgress(p Progress) {
	m.progress = p
}

// Trained reports whether Init has produced a model.
func (m *Model) Trained() bool {
	return m.state.Load() != nil
}

// Prepare converts a face crop into the grey, fixed-size form the model
// trains on. Saved samples should be prepared the same way.
func (m *Model) Prepare(face image.Image) *image.Gray {
	return normalize.Resize(normalize.Gray(face), m.cfg.FaceSize)
}

// Init rebuilds the model from the whole corpus. Unreadable samples are
// logged and skipped. An empty corpus leaves the current state untouched.
// Concurrent Init calls are serialized.
func (m *Model) Init(ctx context.Context) (Stats, error) {
	m.train.Lock()
	defer m.train.Unlock()

	start := time.Now()
	var (
		stats  Stats
		hists  [][]float32
		labels []int
	)
	people := make(map[int]struct{})

	err := m.source.AllSamples(ctx, func(s types.Sample) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.progress != nil {
			_ = m.progress.Add(1)
		}

		img, err := imaging.Decode(bytes.NewReader(s.Content))
		if err == nil && img.Bounds().Empty() {
			err = errEmptyImage
		}
		if err != nil {
			stats.Skipped++
			m.log.WithFields(logrus.Fields{
				"sample_id": s.ID,
				"person_id": s.PersonID,
				"error":     err,
			}).Warn("Skipping unreadable training sample")
			return nil
		}

		hists = append(hists, Describe(m.Prepare(img), m.cfg.Grid))
		labels = append(labels, s.PersonID)
		people[s.PersonID] = struct{}{}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to load training samples: %w", err)
	}

	stats.Samples = len(hists)
	stats.People = len(people)
	if len(hists) == 0 {
		if m.Trained() {
			m.log.Warn("Training corpus is empty, keeping the previous model")
		} else {
			m.log.Info("Training corpus is empty, model stays untrained")
		}
		stats.Duration = time.Since(start)
		return stats, nil
	}

	st := &state{hists: hists, labels: labels}
	if m.cfg.IndexMinSamples > 0 && len(hists) >= m.cfg.IndexMinSamples {
		st.index = buildIndex(hists, m.cfg.IndexCandidates)
		stats.Indexed = true
	}
	m.state.Store(st)

	stats.Duration = time.Since(start)
	m.log.WithFields(logrus.Fields{
		"samples":  stats.Samples,
		"skipped":  stats.Skipped,
		"people":   stats.People,
		"indexed":  stats.Indexed,
		"duration": stats.Duration,
	}).Info("Model trained")
	return stats, nil
}

// Recognize returns the closest label for a face crop, or UnknownLabel when
// the model is untrained or the closest sample is farther than the threshold.
func (m *Model) Recognize(face image.Image) Match {
	st := m.state.Load()
	if st == nil {
		return Match{Label: types.UnknownLabel, Distance: math.Inf(1)}
	}

	query := Describe(m.Prepare(face), m.cfg.Grid)
	best, bestDist := -1, float32(math.MaxFloat32)
	consider := func(i int) {
		if d := ChiSquare(st.hists[i], query); d < bestDist {
			best, bestDist = i, d
		}
	}

	if st.index != nil {
		for _, n := range st.index.Search(query, m.cfg.IndexCandidates) {
			consider(n.Key)
		}
	} else {
		for i := range st.hists {
			consider(i)
		}
	}

	if best < 0 || float64(bestDist) > m.cfg.Threshold {
		return Match{Label: types.UnknownLabel, Distance: float64(bestDist)}
	}
	return Match{Label: st.labels[best], Distance: float64(bestDist)}
}

// EncodeFace serializes a prepared face for storage.
func EncodeFace(face *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, face, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("failed to encode face: %w", err)
	}
	return buf.Bytes(), nil
}

var errEmptyImage = errors.New("empty image")

const indexNeighbors = 32

func buildIndex(hists [][]float32, candidates int) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = indexNeighbors
	g.Ml = 1.0 / float64(indexNeighbors)
	g.EfSearch = max(2*candidates, 64)
	g.Distance = ChiSquare
	for i, h := range hists {
		g.Add(hnsw.MakeNode(i, h))
	}
	return g
}
