package artwork

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeMPD implements MPDArtworkProvider for testing.
type fakeMPD struct {
	albumArt    []byte
	readPicture []byte
	calls       []string
}

func (m *fakeMPD) AlbumArt(uri string) ([]byte, error) {
	m.calls = append(m.calls, "albumart:"+uri)
	if m.albumArt == nil {
		return nil, errors.New("no file exists")
	}
	return m.albumArt, nil
}

func (m *fakeMPD) ReadPicture(uri string) ([]byte, error) {
	m.calls = append(m.calls, "readpicture:"+uri)
	if m.readPicture == nil {
		return nil, errors.New("no picture")
	}
	return m.readPicture, nil
}

// makeAlbum creates music/<rel> with a track file and returns the music dir.
func makeAlbum(t *testing.T, rel string, files ...string) string {
	t.Helper()
	musicDir := filepath.Join(t.TempDir(), "music")
	albumDir := filepath.Join(musicDir, rel)
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range append(files, "01-track.flac") {
		if err := os.WriteFile(filepath.Join(albumDir, f), []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return musicDir
}

func TestLocalFinder_PrefersEmbeddedPicture(t *testing.T) {
	mpd := &fakeMPD{readPicture: []byte("embedded"), albumArt: []byte("folder")}
	finder := NewLocalFinder(mpd, "")

	data, origin, err := finder.Find(context.Background(), "mpd:Artist/Album/01.flac")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if string(data) != "embedded" || origin != "mpd-embedded" {
		t.Errorf("got %q from %q, want embedded picture", data, origin)
	}
	if len(mpd.calls) != 1 || mpd.calls[0] != "readpicture:Artist/Album/01.flac" {
		t.Errorf("unexpected MPD calls: %v", mpd.calls)
	}
}

func TestLocalFinder_FallsBackToFolderArt(t *testing.T) {
	mpd := &fakeMPD{albumArt: []byte("folder")}
	finder := NewLocalFinder(mpd, "")

	data, origin, err := finder.Find(context.Background(), "Artist/Album/01.flac")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if string(data) != "folder" || origin != "mpd-folder" {
		t.Errorf("got %q from %q, want folder art", data, origin)
	}
}

func TestLocalFinder_CoverFileInTrackDir(t *testing.T) {
	musicDir := makeAlbum(t, "Artist/Album", "cover.jpg")
	finder := NewLocalFinder(&fakeMPD{}, musicDir)

	data, origin, err := finder.Find(context.Background(), "mpd:Artist/Album/01-track.flac")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if string(data) != "cover.jpg" || origin != "file:cover.jpg" {
		t.Errorf("got %q from %q, want cover.jpg", data, origin)
	}
}

func TestLocalFinder_CoverInParentDir(t *testing.T) {
	musicDir := makeAlbum(t, "Artist/Album/CD1")
	cover := filepath.Join(musicDir, "Artist", "Album", "folder.png")
	if err := os.WriteFile(cover, []byte("parent"), 0644); err != nil {
		t.Fatal(err)
	}

	finder := NewLocalFinder(nil, musicDir)
	data, _, err := finder.Find(context.Background(), "Artist/Album/CD1/01-track.flac")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if string(data) != "parent" {
		t.Errorf("got %q, want parent cover", data)
	}
}

func TestLocalFinder_PriorityOrder(t *testing.T) {
	musicDir := makeAlbum(t, "Artist/Album", "folder.jpg", "cover.jpg", "FR741.jpg")
	finder := NewLocalFinder(nil, musicDir)

	path, err := finder.findCoverFile("Artist/Album/01-track.flac")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "cover.jpg" {
		t.Errorf("expected cover.jpg to be preferred, got %s", path)
	}
}

func TestLocalFinder_CaseInsensitiveNames(t *testing.T) {
	musicDir := makeAlbum(t, "Artist/Album", "Cover.JPG")
	finder := NewLocalFinder(nil, musicDir)

	path, err := finder.findCoverFile("Artist/Album/01-track.flac")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "Cover.JPG" {
		t.Errorf("expected Cover.JPG, got %q", path)
	}
}

func TestLocalFinder_AnyImageFallback(t *testing.T) {
	musicDir := makeAlbum(t, "Artist/Album", "._cover.jpg", "FR741.jpg")
	finder := NewLocalFinder(nil, musicDir)

	path, err := finder.findCoverFile("Artist/Album/01-track.flac")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "FR741.jpg" {
		t.Errorf("expected FR741.jpg, got %q", path)
	}
}

func TestLocalFinder_DoesNotSearchOutsideMusicDir(t *testing.T) {
	musicDir := makeAlbum(t, "Album")
	outside := filepath.Join(filepath.Dir(musicDir), "cover.jpg")
	if err := os.WriteFile(outside, []byte("outside"), 0644); err != nil {
		t.Fatal(err)
	}

	finder := NewLocalFinder(nil, musicDir)
	if _, _, err := finder.Find(context.Background(), "Album/01-track.flac"); !errors.Is(err, ErrNoArtwork) {
		t.Errorf("expected ErrNoArtwork, got %v", err)
	}
}

func TestLocalFinder_EmptyRef(t *testing.T) {
	finder := NewLocalFinder(&fakeMPD{}, "")
	if _, _, err := finder.Find(context.Background(), "mpd:"); !errors.Is(err, ErrNoArtwork) {
		t.Errorf("expected ErrNoArtwork, got %v", err)
	}
}

func TestLocalFinder_CanceledContext(t *testing.T) {
	mpd := &fakeMPD{readPicture: []byte("embedded")}
	finder := NewLocalFinder(mpd, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := finder.Find(ctx, "mpd:a.flac"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(mpd.calls) != 0 {
		t.Errorf("MPD should not be queried after cancel, got %v", mpd.calls)
	}
}

func TestIsLocalRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"mpd:Artist/Album/01.flac", true},
		{"Artist/Album/01.flac", true},
		{"http://example.com/a.jpg", false},
		{"/albumart?path=x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsLocalRef(tt.ref); got != tt.want {
			t.Errorf("IsLocalRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
