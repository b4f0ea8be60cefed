package tag

import (
	"fmt"

	"github.com/bogem/id3v2"
	flacvorbis "github.com/go-flac/flacvorbis/v2"
	flac "github.com/go-flac/go-flac/v2"
)

// writeFLACLyrics stores lyrics in the Vorbis comment block, replacing
// any existing LYRICS field.
func writeFLACLyrics(path, lyricsText string) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse flac file: %w", err)
	}

	var comment *flacvorbis.MetaDataBlockVorbisComment
	var commentIdx int
	for i, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			comment, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return fmt.Errorf("failed to parse vorbis comment: %w", err)
			}
			commentIdx = i
			break
		}
	}
	if comment == nil {
		comment = flacvorbis.New()
		commentIdx = -1
	}

	existing, err := comment.Get("LYRICS")
	if err == nil && len(existing) > 0 {
		// Rebuild without the old value; flacvorbis has no delete.
		fresh := flacvorbis.New()
		fresh.Vendor = comment.Vendor
		for _, c := range comment.Comments {
			if len(c) < 7 || c[:7] != "LYRICS=" {
				fresh.Comments = append(fresh.Comments, c)
			}
		}
		comment = fresh
	}
	if err := comment.Add("LYRICS", lyricsText); err != nil {
		return fmt.Errorf("failed to add lyrics comment: %w", err)
	}

	block := comment.Marshal()
	if commentIdx >= 0 {
		f.Meta[commentIdx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save flac file: %w", err)
	}
	return nil
}

// writeMP3Lyrics stores lyrics in an unsynchronised lyrics frame.
func writeMP3Lyrics(path, lyricsText string) error {
	mp3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 file: %w", err)
	}
	defer mp3.Close()

	mp3.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
		Encoding:          id3v2.EncodingUTF8,
		Language:          "und",
		ContentDescriptor: "",
		Lyrics:            lyricsText,
	})

	if err := mp3.Save(); err != nil {
		return fmt.Errorf("failed to save mp3 file: %w", err)
	}
	return nil
}
