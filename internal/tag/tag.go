// Package tag writes metadata, artwork and lyrics into finished audio
// files. Common fields go through taglib, which handles every container
// we deliver; lyric embedding is format-specific.
package tag

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"

	"yoink/internal/metadata"
)

// WriteTags writes the track metadata to an audio file.
func WriteTags(path string, t metadata.Track) error {
	tags := make(map[string][]string)

	if t.Name != "" {
		tags[taglib.Title] = []string{t.Name}
	}
	if t.Artist != "" {
		tags[taglib.Artist] = []string{t.Artist}
	}
	if t.Album != "" {
		tags[taglib.Album] = []string{t.Album}
	}
	if t.AlbumArtist != "" {
		tags[taglib.AlbumArtist] = []string{t.AlbumArtist}
	}
	if t.TrackNumber > 0 {
		tags[taglib.TrackNumber] = []string{strconv.Itoa(t.TrackNumber)}
	}
	if t.DiscNumber > 0 {
		tags[taglib.DiscNumber] = []string{strconv.Itoa(t.DiscNumber)}
	}
	if t.ReleaseDate != "" {
		tags[taglib.Date] = []string{t.ReleaseDate}
	}
	if t.ISRC != "" {
		tags[taglib.ISRC] = []string{t.ISRC}
	}

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// WriteArtwork embeds artwork image data into an audio file. FLAC gets
// a native PICTURE block; everything else goes through taglib.
func WriteArtwork(path string, imageData []byte) error {
	if len(imageData) == 0 {
		return nil
	}
	if strings.ToLower(filepath.Ext(path)) == ".flac" {
		return writeFLACArtwork(path, imageData)
	}
	if err := taglib.WriteImage(path, imageData); err != nil {
		return fmt.Errorf("failed to write artwork to %s: %w", path, err)
	}
	return nil
}

// WriteLyrics embeds lyrics using the container's native mechanism.
// Unsupported extensions are skipped silently; lyrics are a bonus, not
// a requirement.
func WriteLyrics(path, lyricsText string) error {
	if lyricsText == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return writeFLACLyrics(path, lyricsText)
	case ".mp3":
		return writeMP3Lyrics(path, lyricsText)
	}
	return nil
}

// SubDirFor returns an "Artist/Album" subdirectory for organizing
// output files.
func SubDirFor(t metadata.Track) string {
	artist := t.AlbumArtist
	if artist == "" {
		artist = t.Artist
		if i := strings.Index(artist, ","); i > 0 {
			artist = strings.TrimSpace(artist[:i])
		}
	}
	album := t.Album

	if artist == "" {
		artist = "Unknown Artist"
	}
	if album == "" {
		album = "Unknown Album"
	}
	return filepath.Join(SanitizePath(artist), SanitizePath(album))
}

// SanitizePath removes or replaces characters that are problematic in
// file paths.
func SanitizePath(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(s)
}
