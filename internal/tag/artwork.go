package tag

import (
	"fmt"

	flacpicture "github.com/go-flac/flacpicture/v2"
	flac "github.com/go-flac/go-flac/v2"
)

// writeFLACArtwork embeds cover art as a native PICTURE block,
// replacing any existing pictures.
func writeFLACArtwork(path string, imageData []byte) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse flac file: %w", err)
	}

	var kept []*flac.MetaDataBlock
	for _, block := range f.Meta {
		if block.Type != flac.Picture {
			kept = append(kept, block)
		}
	}
	f.Meta = kept

	picture, err := flacpicture.NewFromImageData(
		flacpicture.PictureTypeFrontCover,
		"Front Cover",
		imageData,
		detectImageMIME(imageData),
	)
	if err != nil {
		return fmt.Errorf("failed to build picture block: %w", err)
	}
	block := picture.Marshal()
	f.Meta = append(f.Meta, &block)

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save flac file: %w", err)
	}
	return nil
}

func detectImageMIME(data []byte) string {
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "image/jpeg"
}
