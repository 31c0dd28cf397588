// Package artwork reads, caches and describes cover art embedded in audio
// assets.
package artwork

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/go-flac"
)

// Reader returns the picture embedded in the asset at path. A nil slice
// with a nil error means the asset has no picture.
type Reader interface {
	ReadPicture(path string) ([]byte, error)
}

// FileReader reads embedded pictures from MP3 (ID3v2) and FLAC files. Each
// call opens, parses and closes the file; no handle outlives the call.
type FileReader struct{}

// ReadPicture implements Reader. Missing files and unsupported formats
// report no picture.
func (FileReader) ReadPicture(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		data, err = readID3Picture(path)
	case ".flac":
		data, err = readFLACPicture(path)
	default:
		return nil, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// readID3Picture returns the front cover of an ID3v2 tag, or the first
// attached picture when no front cover is tagged.
func readID3Picture(path string) ([]byte, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Attached picture"}})
	if err != nil {
		return nil, fmt.Errorf("opening id3 tag of %s: %w", path, err)
	}
	defer tag.Close() //nolint:errcheck

	var first []byte
	for _, f := range tag.GetFrames(tag.CommonID("Attached picture")) {
		pic, ok := f.(id3v2.PictureFrame)
		if !ok || len(pic.Picture) == 0 {
			continue
		}
		if pic.PictureType == id3v2.PTFrontCover {
			return pic.Picture, nil
		}
		if first == nil {
			first = pic.Picture
		}
	}
	return first, nil
}

// readFLACPicture returns the front cover PICTURE block of a FLAC stream,
// or the first picture block when none is a front cover. Only the metadata
// blocks are read; audio frames are never loaded.
func readFLACPicture(path string) ([]byte, error) {
	r, err := os.Open(path) //nolint:gosec // asset paths come from the catalog
	if err != nil {
		return nil, fmt.Errorf("opening flac %s: %w", path, err)
	}
	defer r.Close() //nolint:errcheck

	f, err := flac.ParseMetadata(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("parsing flac %s: %w", path, err)
	}

	var first []byte
	for _, meta := range f.Meta {
		if meta.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*meta)
		if err != nil {
			return nil, fmt.Errorf("parsing flac picture block of %s: %w", path, err)
		}
		if len(pic.ImageData) == 0 {
			continue
		}
		if pic.PictureType == flacpicture.PictureTypeFrontCover {
			return pic.ImageData, nil
		}
		if first == nil {
			first = pic.ImageData
		}
	}
	return first, nil
}
