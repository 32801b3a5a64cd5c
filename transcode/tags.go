package transcode

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// ErrNoTags is returned by ReadTags for files without a metadata block.
var ErrNoTags = errors.New("no metadata tags")

// Tags is the descriptive metadata embedded in an audio file.
type Tags struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Format string `json:"format,omitempty"`
}

// Empty reports whether no descriptive field is set.
func (t *Tags) Empty() bool {
	return t == nil || (t.Title == "" && t.Artist == "" && t.Album == "")
}

// String renders "Artist - Title", or whichever part is set.
func (t *Tags) String() string {
	if t == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{t.Artist, t.Title} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " - ")
}

// ReadTags reads ID3, MP4, FLAC or Ogg metadata from path.
func ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return nil, ErrNoTags
	}
	if err != nil {
		return nil, fmt.Errorf("read tags %s: %w", path, err)
	}
	return &Tags{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
		Album:  strings.TrimSpace(m.Album()),
		Format: string(m.Format()),
	}, nil
}
