package artwork

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// MPDRefPrefix marks an art reference that names an MPD song URI.
const MPDRefPrefix = "mpd:"

// coverNames are the cover file base names in priority order.
var coverNames = []string{"cover", "folder", "front", "album", "artwork"}

// coverExtensions are the image extensions considered cover files.
var coverExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp"}

// LocalFinder resolves local art references: MPD embedded pictures, MPD folder
// art, then cover files next to the song on disk.
type LocalFinder struct {
	mpd       MPDArtworkProvider // nil when MPD is not configured
	musicDir  string
	maxLevels int
}

// NewLocalFinder creates a finder. mpd may be nil and musicDir may be empty.
func NewLocalFinder(mpd MPDArtworkProvider, musicDir string) *LocalFinder {
	return &LocalFinder{mpd: mpd, musicDir: musicDir, maxLevels: 2}
}

// IsLocalRef reports whether ref is handled by a LocalFinder rather than HTTP.
func IsLocalRef(ref string) bool {
	if strings.HasPrefix(ref, MPDRefPrefix) {
		return true
	}
	return ref != "" && !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "/")
}

// Find returns image bytes for ref and a short description of where they came from.
func (f *LocalFinder) Find(ctx context.Context, ref string) ([]byte, string, error) {
	uri := strings.TrimPrefix(ref, MPDRefPrefix)
	if uri == "" {
		return nil, "", ErrNoArtwork
	}

	if f.mpd != nil {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if data, err := f.mpd.ReadPicture(uri); err == nil && len(data) > 0 {
			return data, "mpd-embedded", nil
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if data, err := f.mpd.AlbumArt(uri); err == nil && len(data) > 0 {
			return data, "mpd-folder", nil
		}
	}

	if f.musicDir == "" {
		return nil, "", ErrNoArtwork
	}
	path, err := f.findCoverFile(uri)
	if err != nil || path == "" {
		return nil, "", ErrNoArtwork
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, "file:" + filepath.Base(path), nil
}

// findCoverFile walks from the song's directory up to maxLevels parents, never
// leaving the music directory.
func (f *LocalFinder) findCoverFile(uri string) (string, error) {
	root, err := filepath.Abs(f.musicDir)
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(filepath.Dir(filepath.Join(root, uri)))
	if err != nil {
		return "", err
	}

	for level := 0; level <= f.maxLevels; level++ {
		if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			break
		}
		if path := coverInDir(dir); path != "" {
			log.Debug().Str("path", path).Int("level", level).Msg("Found cover file")
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// coverInDir prefers well-known cover names, then any image file.
func coverInDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	byLower := make(map[string]string, len(entries))
	var anyImage string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "._") {
			continue
		}
		lower := strings.ToLower(name)
		byLower[lower] = name
		if anyImage == "" && isImageExt(filepath.Ext(lower)) {
			anyImage = name
		}
	}

	for _, base := range coverNames {
		for _, ext := range coverExtensions {
			if name, ok := byLower[base+ext]; ok {
				return filepath.Join(dir, name)
			}
		}
	}
	if anyImage != "" {
		return filepath.Join(dir, anyImage)
	}
	return ""
}

func isImageExt(ext string) bool {
	for _, e := range coverExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
