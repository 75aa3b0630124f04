// Package socketio provides the Socket.IO endpoint used by the host integration
// to push track changes and by browsers to preview rendered artwork.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/domain/nowplaying"
)

// Event names.
const (
	EventTrackChange    = "trackChange"
	EventGetCacheStats  = "getCacheStats"
	EventPushArtwork    = "pushArtwork"
	EventPushCacheStats = "pushCacheStats"
	EventPushJob        = "pushJob"
)

// DefaultMaxRemoteClients caps concurrent non-loopback preview clients.
const DefaultMaxRemoteClients = 4

// ErrInvalidEvent is returned when a trackChange payload cannot be decoded.
var ErrInvalidEvent = errors.New("invalid track change event")

// TrackHandler receives track changes. Implemented by *nowplaying.Supervisor.
type TrackHandler interface {
	TrackChanged(deviceID string, desc artwork.MediaDescriptor) *nowplaying.Job
}

// StatsProvider reports cache counters. Implemented by *artwork.Cache.
type StatsProvider interface {
	Stats() artwork.CacheStats
}

// ArtworkPayload is the pushArtwork broadcast body.
type ArtworkPayload struct {
	DeviceID        string        `json:"deviceId"`
	Source          string        `json:"source"`
	Fallback        bool          `json:"fallback"`
	FontColor       artwork.Color `json:"fontColor"`
	Brightness      int           `json:"brightness"`
	LowerBrightness int           `json:"lowerBrightness"`
	Background      artwork.Color `json:"background"`
	Alternate       artwork.Color `json:"alternate"`
	Font            int           `json:"font"`
	Pixels          string        `json:"pixels"`
}

// JobPayload acknowledges an accepted trackChange.
type JobPayload struct {
	JobID    string `json:"jobId"`
	DeviceID string `json:"deviceId"`
	State    string `json:"state"`
}

// Option configures a Server.
type Option func(*Server)

// WithDefaultDevice sets the device used when an event carries no deviceId.
func WithDefaultDevice(id string) Option {
	return func(s *Server) { s.defaultDevice = id }
}

// WithMaxRemoteClients caps concurrent non-loopback clients (0 = unlimited).
func WithMaxRemoteClients(n int) Option {
	return func(s *Server) { s.limiter = NewClientLimiter(n) }
}

// WithFont sets the font index advertised in pushArtwork.
func WithFont(font int) Option {
	return func(s *Server) { s.font = font }
}

// Server handles Socket.IO connections and events.
type Server struct {
	io            *socket.Server
	tracks        TrackHandler
	stats         StatsProvider
	defaultDevice string
	font          int
	limiter       *ClientLimiter
	now           func() time.Time

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a new Socket.IO server.
func NewServer(tracks TrackHandler, stats StatsProvider, opts ...Option) *Server {
	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, sopts),
		tracks:  tracks,
		stats:   stats,
		limiter: NewClientLimiter(DefaultMaxRemoteClients),
		now:     time.Now,
		clients: make(map[string]*socket.Socket),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupHandlers()
	return s
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.Admit(clientID, addr); evicted != "" {
			s.evict(evicted)
		}

		client.On("disconnect", func(args ...any) {
			log.Info().Str("id", clientID).Msg("Client disconnected")
			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On(EventTrackChange, func(args ...any) {
			if len(args) == 0 {
				log.Warn().Str("id", clientID).Msg("trackChange without payload")
				return
			}
			job, err := s.handleTrackChange(args[0])
			if err != nil {
				log.Warn().Err(err).Str("id", clientID).Msg("Rejected trackChange")
				return
			}
			client.Emit(EventPushJob, JobPayload{
				JobID:    job.ID,
				DeviceID: job.DeviceID,
				State:    string(job.State()),
			})
		})

		client.On(EventGetCacheStats, func(args ...any) {
			client.Emit(EventPushCacheStats, s.stats.Stats())
		})
	})
}

func (s *Server) evict(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()
	if !ok {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest remote client")
	client.Disconnect(true)
}

// handleTrackChange decodes a trackChange payload (a JSON object as delivered by
// the socket library, or raw JSON) and hands it to the supervisor.
func (s *Server) handleTrackChange(arg any) (*nowplaying.Job, error) {
	var raw []byte
	switch v := arg.(type) {
	case nil:
		return nil, ErrInvalidEvent
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		raw = b
	}

	var ev nowplaying.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.DeviceID == "" {
		ev.DeviceID = s.defaultDevice
	}
	if ev.DeviceID == "" {
		return nil, fmt.Errorf("%w: no device", ErrInvalidEvent)
	}

	log.Debug().
		Str("device", ev.DeviceID).
		Str("artist", ev.Artist).
		Str("album", ev.Album).
		Msg("trackChange received")

	return s.tracks.TrackChanged(ev.DeviceID, ev.Descriptor(s.now())), nil
}

// Render broadcasts the artifact to every connected client. It satisfies
// nowplaying.Renderer so previews follow the physical display.
func (s *Server) Render(ctx context.Context, deviceID string, art *artwork.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.io.Emit(EventPushArtwork, s.artworkPayload(deviceID, art))
	return nil
}

func (s *Server) artworkPayload(deviceID string, art *artwork.Artifact) ArtworkPayload {
	return ArtworkPayload{
		DeviceID:        deviceID,
		Source:          art.Source,
		Fallback:        art.Fallback,
		FontColor:       art.FontColor,
		Brightness:      art.Brightness,
		LowerBrightness: art.LowerBand.Brightness,
		Background:      art.Background,
		Alternate:       art.Alternate,
		Font:            s.font,
		Pixels:          art.Encoded,
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.IO server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.IO server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
