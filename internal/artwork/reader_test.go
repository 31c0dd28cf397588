package artwork

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/go-flac"

	"github.com/sydlexius/cancionero/internal/testsupport"
)

// writeMP3 writes a file holding only an ID3v2 tag with the given pictures.
func writeMP3(t *testing.T, path string, pics ...id3v2.PictureFrame) {
	t.Helper()
	tag := id3v2.NewEmptyTag()
	tag.SetTitle("Yesterday")
	for _, p := range pics {
		tag.AddAttachedPicture(p)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck
	if _, err := tag.WriteTo(f); err != nil {
		t.Fatalf("writing tag: %v", err)
	}
}

func picture(kind byte, data []byte) id3v2.PictureFrame {
	return id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/png",
		PictureType: kind,
		Description: "cover",
		Picture:     data,
	}
}

func TestFileReader_MP3FrontCoverPreferred(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	back := testsupport.PNG(t, 2, 2, 0x10)
	front := testsupport.PNG(t, 3, 3, 0x20)
	writeMP3(t, path, picture(id3v2.PTBackCover, back), picture(id3v2.PTFrontCover, front))

	got, err := FileReader{}.ReadPicture(path)
	if err != nil {
		t.Fatalf("ReadPicture: %v", err)
	}
	if !bytes.Equal(got, front) {
		t.Errorf("got %d bytes, want front cover (%d bytes)", len(got), len(front))
	}
}

func TestFileReader_MP3FallsBackToFirstPicture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.MP3")
	other := testsupport.PNG(t, 2, 2, 0x30)
	writeMP3(t, path, picture(id3v2.PTOther, other))

	got, err := FileReader{}.ReadPicture(path)
	if err != nil {
		t.Fatalf("ReadPicture: %v", err)
	}
	if !bytes.Equal(got, other) {
		t.Errorf("got %d bytes, want %d", len(got), len(other))
	}
}

func TestFileReader_MP3WithoutPicture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.mp3")
	writeMP3(t, path)

	got, err := FileReader{}.ReadPicture(path)
	if err != nil {
		t.Fatalf("ReadPicture: %v", err)
	}
	if got != nil {
		t.Errorf("expected no picture, got %d bytes", len(got))
	}
}

// flacPicture is a PNG picture block of the given type.
type flacPicture struct {
	kind flacpicture.PictureType
	data []byte
}

// writeFLAC writes a FLAC stream with an empty STREAMINFO block, the given
// PICTURE blocks and a single frame sync code standing in for audio.
func writeFLAC(t *testing.T, path string, pics ...flacPicture) {
	t.Helper()
	f := &flac.File{
		Meta:   []*flac.MetaDataBlock{{Type: flac.StreamInfo, Data: make([]byte, 34)}},
		Frames: flac.FrameData{0xFF, 0xF8, 0x00, 0x00},
	}
	for _, p := range pics {
		pic, err := flacpicture.NewFromImageData(p.kind, "cover", p.data, "image/png")
		if err != nil {
			t.Fatalf("building picture block: %v", err)
		}
		block := pic.Marshal()
		f.Meta = append(f.Meta, &block)
	}
	if err := os.WriteFile(path, f.Marshal(), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestFileReader_FLAC(t *testing.T) {
	back := testsupport.PNG(t, 2, 2, 0x40)
	front := testsupport.PNG(t, 3, 3, 0x50)

	tests := []struct {
		name string
		pics []flacPicture
		want []byte
	}{
		{"front cover preferred", []flacPicture{
			{flacpicture.PictureTypeBackCover, back},
			{flacpicture.PictureTypeFrontCover, front},
		}, front},
		{"first picture without front cover", []flacPicture{
			{flacpicture.PictureTypeBackCover, back},
		}, back},
		{"no picture blocks", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "song.flac")
			writeFLAC(t, path, tt.pics...)

			got, err := FileReader{}.ReadPicture(path)
			if err != nil {
				t.Fatalf("ReadPicture: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %d bytes, want %d", len(got), len(tt.want))
			}
			if tt.want == nil && got != nil {
				t.Errorf("expected no picture, got %d bytes", len(got))
			}
		})
	}
}

func TestFileReader_FLACNotAStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.flac")
	if err := os.WriteFile(path, []byte("ID3 not a flac stream"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (FileReader{}).ReadPicture(path); err == nil {
		t.Error("expected an error for a file without the fLaC marker")
	}
}

func TestFileReader_NoPicture(t *testing.T) {
	dir := t.TempDir()
	tests := []string{
		filepath.Join(dir, "missing.mp3"),
		filepath.Join(dir, "missing.flac"),
		filepath.Join(dir, "notes.txt"),
	}
	for _, path := range tests {
		got, err := FileReader{}.ReadPicture(path)
		if err != nil {
			t.Errorf("ReadPicture(%s): %v", filepath.Base(path), err)
		}
		if got != nil {
			t.Errorf("ReadPicture(%s) = %d bytes, want none", filepath.Base(path), len(got))
		}
	}
}
