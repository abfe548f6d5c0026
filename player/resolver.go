package player

import (
	"starbizvoices/models"
	"starbizvoices/repository"
)

// LocalFirstResolver prefers locally downloaded bytes over the remote
// media URL. The local store is authoritative for offline playback; the
// gateway's audio cache tier is only an optimization on the remote path.
type LocalFirstResolver struct {
	downloads *repository.DownloadRepository
}

// NewLocalFirstResolver creates a resolver backed by the download store
func NewLocalFirstResolver(downloads *repository.DownloadRepository) *LocalFirstResolver {
	return &LocalFirstResolver{downloads: downloads}
}

// Resolve returns a local source when a download record exists, otherwise
// the track's remote URL
func (r *LocalFirstResolver) Resolve(track models.Track) Source {
	if r.downloads != nil {
		if record, err := r.downloads.Get(track.ID); err == nil {
			return Source{URL: track.FileURL, Data: record.Data}
		}
	}
	return Source{URL: track.FileURL}
}
