package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/domain/nowplaying"
	"github.com/edumarques81/stellar-pixel/internal/version"
)

// maxEventSize bounds a POSTed now-playing event.
const maxEventSize = 64 * 1024

var timeNow = time.Now

type trackHandler interface {
	TrackChanged(deviceID string, desc artwork.MediaDescriptor) *nowplaying.Job
}

// trackHandlerFunc adapts a function to the track handler interfaces.
type trackHandlerFunc func(deviceID string, desc artwork.MediaDescriptor) *nowplaying.Job

func (f trackHandlerFunc) TrackChanged(deviceID string, desc artwork.MediaDescriptor) *nowplaying.Job {
	return f(deviceID, desc)
}

type jobLookup interface {
	Current(deviceID string) *nowplaying.Job
}

type statsProvider interface {
	Stats() artwork.CacheStats
}

type mpdPinger interface {
	Ping() error
}

type routerDeps struct {
	tracks        trackHandler
	jobs          jobLookup
	stats         statsProvider
	socket        http.Handler // may be nil
	mpd           mpdPinger    // nil when MPD is disabled
	defaultDevice string
}

// jobResponse describes a job in REST responses.
type jobResponse struct {
	JobID     string  `json:"jobId"`
	DeviceID  string  `json:"deviceId"`
	State     string  `json:"state"`
	Album     string  `json:"album"`
	Source    string  `json:"source,omitempty"`
	Fallback  bool    `json:"fallback"`
	ElapsedMS int64   `json:"elapsedMs"`
	Error     *string `json:"error,omitempty"`
}

func newJobResponse(job *nowplaying.Job) jobResponse {
	resp := jobResponse{
		JobID:     job.ID,
		DeviceID:  job.DeviceID,
		State:     string(job.State()),
		Album:     job.Descriptor.Album,
		ElapsedMS: job.Elapsed().Milliseconds(),
	}
	if art := job.Artifact(); art != nil {
		resp.Source = art.Source
		resp.Fallback = art.Fallback
	}
	if err := job.Err(); err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	return resp
}

func newRouter(deps routerDeps) http.Handler {
	mux := http.NewServeMux()

	if deps.socket != nil {
		mux.Handle("/socket.io/", deps.socket)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "mpd": "disabled"}
		code := http.StatusOK
		if deps.mpd != nil {
			if err := deps.mpd.Ping(); err != nil {
				status["status"] = "degraded"
				status["mpd"] = "disconnected"
				code = http.StatusServiceUnavailable
			} else {
				status["mpd"] = "connected"
			}
		}
		writeJSON(w, code, status)
	})

	mux.HandleFunc("GET /api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})

	mux.HandleFunc("GET /api/v1/cache", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.stats.Stats())
	})

	mux.HandleFunc("POST /api/v1/nowplaying", func(w http.ResponseWriter, r *http.Request) {
		var ev nowplaying.Event
		if err := json.NewDecoder(io.LimitReader(r.Body, maxEventSize)).Decode(&ev); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if ev.DeviceID == "" {
			ev.DeviceID = deps.defaultDevice
		}
		if ev.DeviceID == "" {
			http.Error(w, "deviceId required", http.StatusBadRequest)
			return
		}

		job := deps.tracks.TrackChanged(ev.DeviceID, ev.Descriptor(timeNow()))
		log.Debug().Str("device", ev.DeviceID).Str("job", job.ID).Msg("Now playing received over REST")
		writeJSON(w, http.StatusAccepted, newJobResponse(job))
	})

	mux.HandleFunc("GET /api/v1/nowplaying/{device}", func(w http.ResponseWriter, r *http.Request) {
		job := deps.jobs.Current(r.PathValue("device"))
		if job == nil {
			http.Error(w, "no job for device", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, newJobResponse(job))
	})

	return corsMiddleware(mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		log.Debug().Err(err).Msg("Write response failed")
	}
}
