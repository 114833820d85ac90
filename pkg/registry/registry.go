// Package registry stores fitted models on disk in named slots.
//
// Each slot is a directory holding model.gob and features.yaml. Writes go to a staging
// directory first and are swapped in with os.Rename so a reader never sees a half-written slot.
package registry

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	SlotIncumbent  = "incumbent"
	SlotChallenger = "challenger"

	archivePrefix = "archive-"
	modelFile     = "model.gob"
	featuresFile  = "features.yaml"
	archiveLayout = "20060102T150405.000000000Z"
)

var ErrSlotEmpty = errors.New("model slot is empty")

// Manifest is the human readable side file of a slot.
type Manifest struct {
	Name      string    `yaml:"name" json:"name"`
	Slot      string    `yaml:"slot" json:"slot"`
	TrainedAt time.Time `yaml:"trained_at" json:"trained_at"`
	Features  []string  `yaml:"features" json:"features"`
}

// Status describes every slot currently on disk.
type Status struct {
	Incumbent  *Manifest  `json:"incumbent,omitempty"`
	Challenger *Manifest  `json:"challenger,omitempty"`
	Archives   []Manifest `json:"archives"`
}

type Registry struct {
	dir    string
	logger ectologger.Logger
	now    func() time.Time

	mu         sync.Mutex
	serving    *classifier.Model
	servingMod time.Time
}

func New(dir string, logger ectologger.Logger) *Registry {
	return &Registry{
		dir:    dir,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save writes a model into a slot, replacing whatever was there.
func (r *Registry) Save(ctx context.Context, slot string, model *classifier.Model) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.Save")
	defer span.End()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	staging := filepath.Join(r.dir, ".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := writeModel(staging, slot, model); err != nil {
		return err
	}

	if err := r.swap(staging, r.path(slot)); err != nil {
		return err
	}

	if slot == SlotIncumbent {
		r.resetServing()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"slot":     slot,
		"model":    model.Name,
		"features": len(model.Features),
	}).Info("Saved model")
	return nil
}

// Load reads the model in a slot and checks it against its manifest.
func (r *Registry) Load(ctx context.Context, slot string) (*classifier.Model, error) {
	_, span := tracing.StartSpan(ctx, "registry.Registry.Load")
	defer span.End()

	dir := r.path(slot)
	f, err := os.Open(filepath.Join(dir, modelFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSlotEmpty, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s model: %w", slot, err)
	}
	defer f.Close()

	var model classifier.Model
	if err := gob.NewDecoder(f).Decode(&model); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", slot, err)
	}

	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(manifest.Features, model.Features) {
		return nil, fmt.Errorf("%w: %s manifest lists %v, model has %v", classifier.ErrFeatureMismatch, slot, manifest.Features, model.Features)
	}

	return &model, nil
}

// Exists reports whether a slot holds a model.
func (r *Registry) Exists(slot string) bool {
	_, err := os.Stat(filepath.Join(r.path(slot), modelFile))
	return err == nil
}

// Serving returns the incumbent model, cached until the incumbent manifest changes on disk.
// Another process promoting a challenger shows up as a new manifest modification time.
func (r *Registry) Serving(ctx context.Context) (*classifier.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(filepath.Join(r.path(SlotIncumbent), featuresFile))
	if err != nil {
		// a promotion in another process leaves the slot briefly empty
		if r.serving != nil {
			return r.serving, nil
		}
		return r.Load(ctx, SlotIncumbent)
	}
	if r.serving != nil && info.ModTime().Equal(r.servingMod) {
		return r.serving, nil
	}

	model, err := r.Load(ctx, SlotIncumbent)
	if errors.Is(err, ErrSlotEmpty) && r.serving != nil {
		return r.serving, nil
	}
	if err != nil {
		return nil, err
	}
	r.serving = model
	r.servingMod = info.ModTime()
	return model, nil
}

// Promote installs the challenger as the incumbent, then archives the previous incumbent.
// With no incumbent this adopts the challenger.
func (r *Registry) Promote(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Registry.Promote")
	defer span.End()

	if !r.Exists(SlotChallenger) {
		return fmt.Errorf("%w: %s", ErrSlotEmpty, SlotChallenger)
	}

	old, err := r.install(r.path(SlotChallenger), r.path(SlotIncumbent))
	if err != nil {
		return fmt.Errorf("install challenger: %w", err)
	}
	r.resetServing()

	log := r.logger.WithContext(ctx)
	if old != "" {
		name := archivePrefix + r.now().Format(archiveLayout)
		if err := os.Rename(old, r.path(name)); err != nil {
			return fmt.Errorf("archive incumbent: %w", err)
		}
		log.WithField("archive", name).Info("Archived incumbent model")
	}

	log.Info("Promoted challenger to incumbent")
	return nil
}

// ArchiveChallenger moves a rejected challenger out of the way, keeping it for inspection.
func (r *Registry) ArchiveChallenger(ctx context.Context) (string, error) {
	_, span := tracing.StartSpan(ctx, "registry.Registry.ArchiveChallenger")
	defer span.End()

	if !r.Exists(SlotChallenger) {
		return "", fmt.Errorf("%w: %s", ErrSlotEmpty, SlotChallenger)
	}
	return r.archive(SlotChallenger)
}

// Status lists the manifests of every slot.
func (r *Registry) Status(ctx context.Context) (*Status, error) {
	_, span := tracing.StartSpan(ctx, "registry.Registry.Status")
	defer span.End()

	status := &Status{Archives: []Manifest{}}

	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		manifest, err := readManifest(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("slot", entry.Name()).Warn("Skipping unreadable model slot")
			continue
		}
		manifest.Slot = entry.Name()

		switch {
		case entry.Name() == SlotIncumbent:
			status.Incumbent = manifest
		case entry.Name() == SlotChallenger:
			status.Challenger = manifest
		case strings.HasPrefix(entry.Name(), archivePrefix):
			status.Archives = append(status.Archives, *manifest)
		}
	}

	sort.Slice(status.Archives, func(i, j int) bool {
		return status.Archives[i].Slot > status.Archives[j].Slot
	})
	return status, nil
}

func (r *Registry) path(slot string) string {
	return filepath.Join(r.dir, slot)
}

func (r *Registry) archive(slot string) (string, error) {
	name := archivePrefix + r.now().Format(archiveLayout)
	if err := os.Rename(r.path(slot), r.path(name)); err != nil {
		return "", fmt.Errorf("archive %s: %w", slot, err)
	}
	return name, nil
}

// swap replaces dst with the staged directory and removes the replaced slot.
func (r *Registry) swap(staged, dst string) error {
	old, err := r.install(staged, dst)
	if err != nil {
		return fmt.Errorf("install %s: %w", filepath.Base(dst), err)
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

// install renames src to dst and returns where the previous dst was moved, or "" if there was
// none. A directory cannot be renamed over a non-empty one, so the old slot is moved aside first.
func (r *Registry) install(src, dst string) (string, error) {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + uuid.NewString()
		if err := os.Rename(dst, old); err != nil {
			return "", fmt.Errorf("move aside %s: %w", filepath.Base(dst), err)
		}
	}

	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			_ = os.Rename(old, dst)
		}
		return "", err
	}
	return old, nil
}

func (r *Registry) resetServing() {
	r.mu.Lock()
	r.serving = nil
	r.servingMod = time.Time{}
	r.mu.Unlock()
}

func writeModel(dir, slot string, model *classifier.Model) error {
	f, err := os.Create(filepath.Join(dir, modelFile))
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(model); err != nil {
		f.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}

	out, err := yaml.Marshal(Manifest{
		Name:      model.Name,
		Slot:      slot,
		TrainedAt: model.TrainedAt,
		Features:  model.Features,
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, featuresFile), out, 0o644)
}

func readManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, featuresFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}
