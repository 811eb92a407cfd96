package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Weights are the hazard-cost knobs of the edge weight function and the
// route hazard classifier cutoffs. All of them are tunable per site.
type Weights struct {
	FirePenalty         float64 `yaml:"fire_penalty"`
	SmokePenalty        float64 `yaml:"smoke_penalty"`
	PeoplePenalty       float64 `yaml:"people_penalty"`
	PeopleFactor        float64 `yaml:"people_factor"`
	FireFactor          float64 `yaml:"fire_factor"`
	SmokeFactor         float64 `yaml:"smoke_factor"`
	ThresholdMultiplier float64 `yaml:"threshold_multiplier"`

	// Classifier cutoffs on max(fire,smoke)/threshold along a route.
	// Below moderate -> safe; at or above critical -> critical.
	HazardModerateRatio float64 `yaml:"hazard_moderate_ratio"`
	HazardCriticalRatio float64 `yaml:"hazard_critical_ratio"`
}

func DefaultWeights() Weights {
	return Weights{
		FirePenalty:         envFloat("WEIGHT_FIRE_PENALTY", 1000),
		SmokePenalty:        envFloat("WEIGHT_SMOKE_PENALTY", 500),
		PeoplePenalty:       envFloat("WEIGHT_PEOPLE_PENALTY", 2),
		PeopleFactor:        envFloat("WEIGHT_PEOPLE_FACTOR", 0.5),
		FireFactor:          envFloat("WEIGHT_FIRE_FACTOR", 2),
		SmokeFactor:         envFloat("WEIGHT_SMOKE_FACTOR", 1.5),
		ThresholdMultiplier: envFloat("WEIGHT_THRESHOLD_MULT", 100),
		HazardModerateRatio: envFloat("HAZARD_MODERATE_RATIO", 0.7),
		HazardCriticalRatio: envFloat("HAZARD_CRITICAL_RATIO", 1.0),
	}
}

// WeightStore holds the current knob set; the cycle reads it once per floor.
type WeightStore struct {
	mu sync.RWMutex
	w  Weights
}

func NewWeightStore(w Weights) *WeightStore {
	return &WeightStore{w: w}
}

func (s *WeightStore) Get() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w
}

func (s *WeightStore) Set(w Weights) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// LoadWeightsFile overlays the YAML file onto the given base. Missing file
// is not an error; the base stays in effect.
func LoadWeightsFile(path string, base Weights) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}
	w := base
	if err := yaml.Unmarshal(data, &w); err != nil {
		return base, err
	}
	return w, nil
}

// WatchWeights reloads the knob file on change so an operator can retune
// routing without a restart. Falls back to 60s polling when fsnotify is
// unavailable on the host filesystem.
func WatchWeights(done <-chan struct{}, path string, store *WeightStore) {
	reload := func() {
		w, err := LoadWeightsFile(path, DefaultWeights())
		if err != nil {
			log.Printf("[Config] weight file reload failed: %v", err)
			return
		}
		store.Set(w)
		log.Printf("[Config] weight knobs reloaded from %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("[Config] fsnotify unavailable (%v), polling %s", err, path)
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Printf("[Config] cannot watch %s (%v), polling", path, err)
		usePolling = true
		watcher.Close()
	}

	if usePolling {
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					reload()
				}
			}
		}()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Editors write in bursts; let the file settle.
					time.Sleep(100 * time.Millisecond)
					reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Config] watcher error: %v", err)
			}
		}
	}()
}
