package artwork

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Source names the step of the priority chain that produced a picture.
type Source string

// Art sources, in resolution priority order.
const (
	SourceEmbedded Source = "embedded"
	SourceAlbum    Source = "album"
	SourceTrack    Source = "track"
)

// Supported image format names.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
)

// Art is a displayable picture plus what is known about it. Format and
// dimensions are zero when the bytes cannot be decoded.
type Art struct {
	Data   []byte `json:"-"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Source Source `json:"source"`
	// TrackID is the track the picture was found on. It differs from the
	// requested track when art was inherited from an original.
	TrackID string `json:"track_id"`
	AlbumID string `json:"album_id,omitempty"`
}

// Describe wraps raw picture bytes, probing format and dimensions from the
// image header only.
func Describe(data []byte, src Source) *Art {
	a := &Art{Data: data, Source: src, Format: DetectFormat(data)}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		a.Width = cfg.Width
		a.Height = cfg.Height
	}
	return a
}

// DetectFormat identifies an image by its magic number. Returns "" when the
// format is not recognized.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return FormatPNG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return FormatGIF
	case len(data) >= 2 && string(data[:2]) == "BM":
		return FormatBMP
	}
	return ""
}
