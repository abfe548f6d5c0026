// Package main provides the main entry point for the playback daemon.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"starbizvoices/cache"
	"starbizvoices/database"
	"starbizvoices/jobs"
	"starbizvoices/models"
	"starbizvoices/player"
	"starbizvoices/repository"
	"starbizvoices/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// cacheVersion tags every cache entry; bumping it drops the previous
// generation at activation
const cacheVersion = "starbizvoices-v1"

// precachePaths are the app shell routes seeded into the pages tier at
// startup
var precachePaths = []string{"/", "/offline", "/browse", "/favorites", "/downloads"}

// App represents the application with its dependencies
type App struct {
	session      *player.Session
	downloadRepo *repository.DownloadRepository
	progressRepo *repository.ProgressRepository
	pendingRepo  *repository.PendingActionRepository
	catalog      *services.CatalogService
	engagement   *services.EngagementService
	jobManager   *jobs.JobManager
	downloadJob  *jobs.DownloadJob
	controller   *cache.Controller
	hub          *cache.Hub
	gateway      *http.Client
	appOrigin    string
	upgrader     websocket.Upgrader
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Initialize database
	dbPath := os.Getenv("DATA_DB_PATH")
	if dbPath == "" {
		dbPath = "starbizvoices.db"
	}
	db, err := database.NewDB(dbPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	// Initialize schema
	if err := db.InitSchema(); err != nil {
		log.Fatal("Failed to initialize schema:", err)
	}

	// Initialize repositories
	downloadRepo := repository.NewDownloadRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	pendingRepo := repository.NewPendingActionRepository(db)

	// Application origin served through the gateway
	appOrigin := os.Getenv("APP_ORIGIN")
	if appOrigin == "" {
		appOrigin = "http://localhost:3000"
	}
	originURL, err := url.Parse(appOrigin)
	if err != nil {
		log.Fatal("Invalid APP_ORIGIN:", err)
	}

	audioHost := os.Getenv("AUDIO_STORAGE_HOST")
	if audioHost == "" {
		log.Println("Warning: AUDIO_STORAGE_HOST not set - audio responses will not be cached at the gateway")
	}

	// Initialize the network cache layer
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "cache-data"
	}
	store, err := cache.OpenStore(cacheDir, cacheVersion)
	if err != nil {
		log.Fatal("Failed to open cache store:", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close cache store: %v", err)
		}
	}()
	if err := store.Activate(); err != nil {
		log.Printf("Warning: cache activation failed: %v", err)
	}

	hub := cache.NewHub()
	transport := cache.NewTransport(nil, store, originURL.Host, audioHost)
	controller := cache.NewController(store, nil, hub)

	// Seed the app shell routes in the background
	go transport.Precache(appOrigin, precachePaths)

	// Initialize catalog service
	catalogURL := os.Getenv("CATALOG_URL")
	if catalogURL == "" {
		catalogURL = appOrigin
	}
	catalogAPIKey := os.Getenv("CATALOG_API_KEY")
	if catalogAPIKey == "" {
		log.Println("Warning: CATALOG_API_KEY not set - catalog requests will be unauthenticated")
	}
	catalog := services.NewCatalogService(catalogURL, catalogAPIKey)

	// Connectivity probe and engagement service
	connectivity := services.NewConnectivityService(appOrigin + "/health")
	engagement := services.NewEngagementService(appOrigin, catalogAPIKey, pendingRepo, connectivity.IsOnline)

	// Background jobs
	downloadJob := jobs.NewDownloadJob(downloadRepo, controller, nil)
	jobManager := jobs.NewJobManager(downloadJob, engagement, connectivity)
	jobManager.Start()

	// Playback session: audio fetches run through the gateway transport
	// so remote streams hit the audio cache tier.
	audioClient := &http.Client{Transport: transport, Timeout: 10 * time.Minute}
	factory := player.NewBeepUnitFactory(audioClient)
	resolver := player.NewLocalFirstResolver(downloadRepo)

	session := player.NewSession(player.SessionOptions{
		Factory:  factory,
		Resolver: resolver,
		OnProgress: func(trackID string, progress, duration float64) {
			if err := progressRepo.Upsert(trackID, progress, duration); err != nil {
				log.Printf("Failed to persist playback progress: %v", err)
			}
		},
		Notifier: func(state models.PlayerState) {
			hub.Broadcast(playerStateEvent{Type: "PLAYER_STATE", State: state})
			if metadata, ok := player.MetadataFromState(state); ok {
				hub.Broadcast(mediaSessionEvent{Type: "MEDIA_SESSION", Metadata: metadata})
			}
		},
	})

	app := &App{
		session:      session,
		downloadRepo: downloadRepo,
		progressRepo: progressRepo,
		pendingRepo:  pendingRepo,
		catalog:      catalog,
		engagement:   engagement,
		jobManager:   jobManager,
		downloadJob:  downloadJob,
		controller:   controller,
		hub:          hub,
		gateway:      &http.Client{Transport: transport, Timeout: 60 * time.Second},
		appOrigin:    appOrigin,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	r := app.routes()

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	log.Println("Server starting on", listenAddr)
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	defer jobManager.Stop()

	log.Fatal(server.ListenAndServe())
}

// routes builds the router; split out so tests can exercise the full
// handler surface
func (app *App) routes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", healthHandler).Methods("GET")

	// API routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Player transport
	api.HandleFunc("/player/state", app.getPlayerStateHandler).Methods("GET")
	api.HandleFunc("/player/play", app.playHandler).Methods("POST")
	api.HandleFunc("/player/pause", app.pauseHandler).Methods("POST")
	api.HandleFunc("/player/toggle", app.togglePlayHandler).Methods("POST")
	api.HandleFunc("/player/next", app.nextHandler).Methods("POST")
	api.HandleFunc("/player/prev", app.prevHandler).Methods("POST")
	api.HandleFunc("/player/seek", app.seekHandler).Methods("POST")
	api.HandleFunc("/player/volume", app.volumeHandler).Methods("POST")
	api.HandleFunc("/player/mute", app.muteHandler).Methods("POST")
	api.HandleFunc("/player/repeat", app.repeatHandler).Methods("POST")
	api.HandleFunc("/player/shuffle", app.shuffleHandler).Methods("POST")
	api.HandleFunc("/player/clear-error", app.clearErrorHandler).Methods("POST")

	// Queue
	api.HandleFunc("/queue", app.addToQueueHandler).Methods("POST")
	api.HandleFunc("/queue", app.clearQueueHandler).Methods("DELETE")
	api.HandleFunc("/queue/{id}", app.removeFromQueueHandler).Methods("DELETE")

	// Downloads
	api.HandleFunc("/downloads", app.getDownloadsHandler).Methods("GET")
	api.HandleFunc("/downloads/usage", app.downloadUsageHandler).Methods("GET")
	api.HandleFunc("/downloads/{id}", app.startDownloadHandler).Methods("POST")
	api.HandleFunc("/downloads/{id}", app.deleteDownloadHandler).Methods("DELETE")
	api.HandleFunc("/downloads/{id}/status", app.downloadStatusHandler).Methods("GET")

	// Playback progress
	api.HandleFunc("/progress/{id}", app.getProgressHandler).Methods("GET")

	// Favorites and listening history
	api.HandleFunc("/favorites", app.addFavoriteHandler).Methods("POST")
	api.HandleFunc("/favorites/{id}", app.removeFavoriteHandler).Methods("DELETE")
	api.HandleFunc("/history", app.recordHistoryHandler).Methods("POST")

	// Offline action sync
	api.HandleFunc("/sync", app.triggerSyncHandler).Methods("POST")
	api.HandleFunc("/sync/status", app.syncStatusHandler).Methods("GET")

	// Catalog passthrough
	api.HandleFunc("/tracks", app.listTracksHandler).Methods("GET")
	api.HandleFunc("/tracks/{id}", app.getTrackHandler).Methods("GET")

	// Cached gateway to the app origin and the control channel
	r.PathPrefix("/gateway/").HandlerFunc(app.gatewayHandler)
	r.HandleFunc("/ws", app.wsHandler)

	return r
}

// playerStateEvent is the state broadcast sent over the control channel
type playerStateEvent struct {
	Type  string             `json:"type"`
	State models.PlayerState `json:"state"`
}

// mediaSessionEvent carries lock-screen metadata for connected clients
type mediaSessionEvent struct {
	Type     string               `json:"type"`
	Metadata player.MediaMetadata `json:"metadata"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (app *App) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, app.session.State())
}

func (app *App) getPlayerStateHandler(w http.ResponseWriter, _ *http.Request) {
	app.writeState(w)
}

// playRequest selects what to play: a single track, a playlist with a
// starting index, or nothing to resume the loaded track
type playRequest struct {
	Track      *models.Track  `json:"track,omitempty"`
	Tracks     []models.Track `json:"tracks,omitempty"`
	StartIndex int            `json:"start_index"`
}

func (app *App) playHandler(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch {
	case len(req.Tracks) > 0:
		app.session.PlayPlaylist(req.Tracks, req.StartIndex)
	case req.Track != nil:
		app.session.Play(req.Track)
	default:
		app.session.Play(nil)
	}
	app.writeState(w)
}

func (app *App) pauseHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.Pause()
	app.writeState(w)
}

func (app *App) togglePlayHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.Toggle()
	app.writeState(w)
}

func (app *App) nextHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.Next()
	app.writeState(w)
}

func (app *App) prevHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.Prev()
	app.writeState(w)
}

func (app *App) seekHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position  *float64 `json:"position"`
		Direction string   `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch {
	case req.Position != nil:
		app.session.Seek(*req.Position)
	case req.Direction == "forward":
		app.session.SeekForward()
	case req.Direction == "backward":
		app.session.SeekBackward()
	default:
		http.Error(w, "position or direction is required", http.StatusBadRequest)
		return
	}
	app.writeState(w)
}

func (app *App) volumeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		http.Error(w, "volume is required", http.StatusBadRequest)
		return
	}
	app.session.SetVolume(*req.Volume)
	app.writeState(w)
}

func (app *App) muteHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.ToggleMute()
	app.writeState(w)
}

func (app *App) repeatHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.ToggleRepeat()
	app.writeState(w)
}

func (app *App) shuffleHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.ToggleShuffle()
	app.writeState(w)
}

func (app *App) clearErrorHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.ClearError()
	app.writeState(w)
}

func (app *App) addToQueueHandler(w http.ResponseWriter, r *http.Request) {
	var track models.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(track.ID) == "" {
		http.Error(w, "Track ID is required", http.StatusBadRequest)
		return
	}
	if !track.Kind.Playable() {
		http.Error(w, "Content is not playable", http.StatusUnprocessableEntity)
		return
	}
	app.session.AddToQueue(track)
	app.writeState(w)
}

func (app *App) removeFromQueueHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	app.session.RemoveFromQueue(vars["id"])
	app.writeState(w)
}

func (app *App) clearQueueHandler(w http.ResponseWriter, _ *http.Request) {
	app.session.ClearQueue()
	app.writeState(w)
}

func (app *App) getDownloadsHandler(w http.ResponseWriter, _ *http.Request) {
	records, err := app.downloadRepo.GetAll()
	if err != nil {
		log.Printf("Error listing downloads: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.DownloadRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (app *App) downloadUsageHandler(w http.ResponseWriter, _ *http.Request) {
	size, err := app.downloadRepo.StorageSize()
	if err != nil {
		log.Printf("Error computing storage size: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"bytes": size})
}

// startDownloadHandler kicks off a background download. The track may be
// supplied in the body; otherwise it is fetched from the catalog.
func (app *App) startDownloadHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackID := vars["id"]

	var track models.Track
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil || track.ID != trackID {
		fetched, err := app.catalog.GetTrack(trackID)
		if err != nil {
			log.Printf("Error fetching track %s from catalog: %v", trackID, err)
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		track = *fetched
	}

	if !track.Kind.Playable() {
		http.Error(w, "Content is not downloadable", http.StatusUnprocessableEntity)
		return
	}

	app.jobManager.TriggerDownload(&track, nil)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"track_id": trackID,
		"status":   "started",
	})
}

func (app *App) deleteDownloadHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackID := vars["id"]

	if !app.downloadJob.Remove(trackID) {
		http.Error(w, "Failed to remove download", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"track_id": trackID,
		"status":   "removed",
	})
}

func (app *App) downloadStatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackID := vars["id"]

	downloaded, err := app.downloadRepo.Exists(trackID)
	if err != nil {
		log.Printf("Error checking download %s: %v", trackID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := map[string]interface{}{
		"track_id":    trackID,
		"downloaded":  downloaded,
		"downloading": app.downloadJob.IsDownloading(trackID),
	}
	if progress := app.downloadJob.Progress(trackID); progress >= 0 {
		status["progress"] = progress
	}
	writeJSON(w, http.StatusOK, status)
}

func (app *App) getProgressHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	progress, err := app.progressRepo.Get(vars["id"])
	if err != nil {
		http.Error(w, "No progress recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type engagementRequest struct {
	TrackID string `json:"track_id"`
}

func (app *App) addFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TrackID) == "" {
		http.Error(w, "track_id is required", http.StatusBadRequest)
		return
	}
	if err := app.engagement.AddFavorite(req.TrackID); err != nil {
		log.Printf("Error adding favorite: %v", err)
		http.Error(w, "Failed to add favorite", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"track_id": req.TrackID, "status": "favorited"})
}

func (app *App) removeFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := app.engagement.RemoveFavorite(vars["id"]); err != nil {
		log.Printf("Error removing favorite: %v", err)
		http.Error(w, "Failed to remove favorite", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"track_id": vars["id"], "status": "unfavorited"})
}

func (app *App) recordHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TrackID) == "" {
		http.Error(w, "track_id is required", http.StatusBadRequest)
		return
	}
	if err := app.engagement.RecordHistory(req.TrackID); err != nil {
		log.Printf("Error recording history: %v", err)
		http.Error(w, "Failed to record history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"track_id": req.TrackID, "status": "recorded"})
}

func (app *App) triggerSyncHandler(w http.ResponseWriter, _ *http.Request) {
	app.jobManager.TriggerSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (app *App) syncStatusHandler(w http.ResponseWriter, _ *http.Request) {
	pending, err := app.pendingRepo.Count()
	if err != nil {
		log.Printf("Error counting pending actions: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"online":  app.jobManager.IsOnline(),
	})
}

func (app *App) listTracksHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			http.Error(w, "Invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	tracks, totalPages, err := app.catalog.ListTracks(r.URL.Query().Get("category"), page)
	if err != nil {
		log.Printf("Error listing catalog tracks: %v", err)
		http.Error(w, "Failed to list tracks", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tracks":      tracks,
		"page":        page,
		"total_pages": totalPages,
	})
}

func (app *App) getTrackHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	track, err := app.catalog.GetTrack(vars["id"])
	if err != nil {
		log.Printf("Error fetching track %s: %v", vars["id"], err)
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// gatewayHandler proxies requests to the app origin through the caching
// transport, so navigations and assets get the offline-first behavior.
func (app *App) gatewayHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/gateway")
	if path == "" {
		path = "/"
	}
	target := app.appOrigin + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequest(r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "Invalid gateway request", http.StatusBadRequest)
		return
	}
	for _, header := range []string{"Accept", "Sec-Fetch-Mode", "Content-Type", "Authorization"} {
		if v := r.Header.Get(header); v != "" {
			req.Header.Set(header, v)
		}
	}

	resp, err := app.gateway.Do(req)
	if err != nil {
		log.Printf("Gateway request failed for %s: %v", target, err)
		http.Error(w, "Gateway error", http.StatusBadGateway)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("Failed to copy gateway response: %v", err)
	}
}

// wsHandler upgrades the connection, registers it with the broadcast hub,
// and feeds incoming control messages to the cache controller
func (app *App) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	app.hub.Add(conn)
	defer func() {
		app.hub.Remove(conn)
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close websocket: %v", err)
		}
	}()

	for {
		var msg cache.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		app.controller.Handle(msg)
	}
}
