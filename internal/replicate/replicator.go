package replicate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-evac/internal/data"
	"github.com/technosupport/ts-evac/internal/metrics"
	"github.com/technosupport/ts-evac/internal/settings"
)

// ErrSyncInProgress is returned when a replication run is requested
// while another is still copying.
var ErrSyncInProgress = errors.New("replicate: sync already in progress")

// recheckInterval is how often the loop re-reads settings, so interval
// changes and disablement take effect without waiting out an old timer.
const recheckInterval = time.Minute

// DocLister exposes a collection as raw (id, document) pairs.
type DocLister interface {
	ListRaw(ctx context.Context) ([]data.Doc, error)
}

// SettingsStore is the slice of the settings model the replicator needs.
type SettingsStore interface {
	Get(ctx context.Context) settings.Settings
	RecordSyncStatus(ctx context.Context, status, syncErr string, duration time.Duration, at time.Time) error
}

// Replicator mirrors the local document collections into the cloud
// database on the interval configured in settings. Replication is
// one-way and last-writer-wins by document id.
type Replicator struct {
	Floors   DocLister
	Images   DocLister
	Routes   DocLister
	Settings SettingsStore
	Cloud    data.DBTX

	mu       sync.Mutex // held for the duration of one run
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(floors, images, routes DocLister, st SettingsStore, cloud data.DBTX) *Replicator {
	return &Replicator{
		Floors:   floors,
		Images:   images,
		Routes:   routes,
		Settings: st,
		Cloud:    cloud,
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic loop. The first run happens one full
// interval after startup, never immediately: a crash-looping process
// must not hammer the cloud store.
func (r *Replicator) Start() {
	if r.Cloud == nil {
		log.Println("[CloudSync] no cloud database configured, replication disabled")
		return
	}
	r.wg.Add(1)
	go r.loop()
}

func (r *Replicator) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

func (r *Replicator) loop() {
	defer r.wg.Done()

	lastRun := time.Now()
	ticker := time.NewTicker(recheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case now := <-ticker.C:
			ctx := context.Background()
			if !syncDue(r.Settings.Get(ctx), lastRun, now) {
				continue
			}
			if err := r.Run(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				log.Printf("[CloudSync] replication failed: %v", err)
			}
			lastRun = time.Now()
		}
	}
}

// syncDue decides whether a scheduled run should fire now. The decision
// uses the interval as currently configured, so shrinking it moves the
// next run earlier within one recheck.
func syncDue(s settings.Settings, lastRun, now time.Time) bool {
	if !s.CloudSync.Enabled {
		return false
	}
	return now.Sub(lastRun) >= s.Interval()
}

// Run performs one full replication pass. It is called by the timer
// loop and by the manual sync endpoint; overlapping runs are refused.
func (r *Replicator) Run(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer r.mu.Unlock()

	if r.Cloud == nil {
		return errors.New("replicate: no cloud database configured")
	}

	started := time.Now().UTC()
	if err := r.Settings.RecordSyncStatus(ctx, settings.SyncInProgress, "", 0, started); err != nil {
		log.Printf("[CloudSync] status write failed: %v", err)
	}
	log.Println("[CloudSync] replication started")

	err := r.copyAll(ctx)
	duration := time.Since(started)
	finished := time.Now().UTC()

	if err != nil {
		metrics.CloudSyncRuns.WithLabelValues("fail").Inc()
		if serr := r.Settings.RecordSyncStatus(ctx, settings.SyncFailed, err.Error(), duration, finished); serr != nil {
			log.Printf("[CloudSync] status write failed: %v", serr)
		}
		return err
	}
	metrics.CloudSyncRuns.WithLabelValues("success").Inc()
	if serr := r.Settings.RecordSyncStatus(ctx, settings.SyncSuccess, "", duration, finished); serr != nil {
		log.Printf("[CloudSync] status write failed: %v", serr)
	}
	log.Printf("[CloudSync] replication complete in %s", duration.Round(time.Millisecond))
	return nil
}

func (r *Replicator) copyAll(ctx context.Context) error {
	collections := []struct {
		name   string
		source DocLister
		table  string
	}{
		{"floors", r.Floors, "floormaps"},
		{"images", r.Images, "imagerecords"},
		{"routes", r.Routes, "routes"},
	}

	for _, c := range collections {
		docs, err := c.source.ListRaw(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", c.name, err)
		}
		for _, d := range docs {
			if err := r.upsert(ctx, c.table, d); err != nil {
				return fmt.Errorf("upsert %s %s: %w", c.name, d.ID, err)
			}
		}
		log.Printf("[CloudSync] %s: %d documents replicated", c.name, len(docs))
	}
	return nil
}

func (r *Replicator) upsert(ctx context.Context, table string, d data.Doc) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, table)
	_, err := r.Cloud.ExecContext(ctx, query, d.ID, d.Doc)
	return err
}
