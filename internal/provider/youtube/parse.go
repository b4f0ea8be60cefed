package youtube

import (
	"encoding/json"
	"fmt"
)

type ytdlpEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

type ytdlpFormat struct {
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
	Protocol string  `json:"protocol"`
}

type ytdlpVideo struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Formats []ytdlpFormat `json:"formats"`
}

type ytdlpSearch struct {
	Entries []ytdlpEntry `json:"entries"`
}

func parseSearchEntries(data []byte) ([]ytdlpEntry, error) {
	var result ytdlpSearch
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search output: %w", err)
	}
	for i := range result.Entries {
		if result.Entries[i].Uploader == "" {
			result.Entries[i].Uploader = result.Entries[i].Channel
		}
	}
	return result.Entries, nil
}

func parseVideoInfo(data []byte) (*ytdlpVideo, error) {
	var info ytdlpVideo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}
	return &info, nil
}
