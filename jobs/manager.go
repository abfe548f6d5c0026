package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"starbizvoices/models"
	"starbizvoices/services"
)

// connectivityInterval is how often the network probe runs
const connectivityInterval = 30 * time.Second

// JobManager handles background job execution
type JobManager struct {
	downloadJob  *DownloadJob
	engagement   *services.EngagementService
	connectivity *services.ConnectivityService
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      bool
	mu           sync.RWMutex
	online       bool
	onlineMu     sync.RWMutex
}

// NewJobManager creates a new job manager
func NewJobManager(downloadJob *DownloadJob, engagement *services.EngagementService, connectivity *services.ConnectivityService) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		downloadJob:  downloadJob,
		engagement:   engagement,
		connectivity: connectivity,
		ctx:          ctx,
		cancel:       cancel,
		running:      false,
	}
}

// Start begins the job manager background processing
func (jm *JobManager) Start() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.running {
		log.Println("Job manager is already running")
		return
	}

	jm.running = true
	log.Println("Starting job manager...")

	// Start the connectivity watch
	jm.wg.Add(1)
	go jm.runConnectivityWatch()
}

// Stop stops the job manager
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if !jm.running {
		return
	}

	log.Println("Stopping job manager...")
	jm.cancel()
	jm.running = false

	// Wait for all jobs to finish
	jm.wg.Wait()
	log.Println("Job manager stopped")
}

// IsRunning returns whether the job manager is currently running
func (jm *JobManager) IsRunning() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.running
}

// IsOnline returns the last observed connectivity state
func (jm *JobManager) IsOnline() bool {
	jm.onlineMu.RLock()
	defer jm.onlineMu.RUnlock()
	return jm.online
}

// TriggerDownload starts a background download for a track. done may be
// nil; when set it receives the success result.
func (jm *JobManager) TriggerDownload(track *models.Track, done func(bool)) {
	if jm.downloadJob == nil {
		log.Printf("Cannot trigger download: no download job configured")
		if done != nil {
			done(false)
		}
		return
	}

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		ok := jm.downloadJob.Download(track)
		if done != nil {
			done(ok)
		}
	}()
}

// TriggerRemoveDownload removes a stored download in the background
func (jm *JobManager) TriggerRemoveDownload(trackID string) {
	if jm.downloadJob == nil {
		log.Printf("Cannot remove download: no download job configured")
		return
	}

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		if !jm.downloadJob.Remove(trackID) {
			log.Printf("Failed to remove download for track %s", trackID)
		}
	}()
}

// TriggerSync immediately replays the offline action queue
func (jm *JobManager) TriggerSync() {
	if jm.engagement == nil {
		log.Printf("Cannot trigger sync: no engagement service configured")
		return
	}

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		if _, err := jm.engagement.SyncOffline(); err != nil {
			log.Printf("Offline sync failed: %v", err)
		}
	}()
}

// runConnectivityWatch polls the network probe and replays the offline
// queue whenever connectivity comes back.
func (jm *JobManager) runConnectivityWatch() {
	defer jm.wg.Done()

	// Skip if no connectivity probe is configured
	if jm.connectivity == nil {
		log.Println("No connectivity probe configured, skipping watch")
		<-jm.ctx.Done()
		return
	}

	// Probe immediately on startup
	jm.observe(jm.connectivity.IsOnline())

	ticker := time.NewTicker(connectivityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-jm.ctx.Done():
			log.Println("Connectivity watch stopped")
			return
		case <-ticker.C:
			jm.observe(jm.connectivity.IsOnline())
		}
	}
}

// observe records a connectivity sample and fires a sync on the
// offline-to-online transition
func (jm *JobManager) observe(online bool) {
	jm.onlineMu.Lock()
	wasOnline := jm.online
	jm.online = online
	jm.onlineMu.Unlock()

	if online && !wasOnline {
		log.Println("Connectivity restored, syncing offline actions...")
		if jm.engagement != nil {
			if _, err := jm.engagement.SyncOffline(); err != nil {
				log.Printf("Offline sync failed: %v", err)
			}
		}
	}
}
