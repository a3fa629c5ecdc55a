package media

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/drivestore/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestGenerate_JPEGProducesWebAndThumbnail(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "big.jpg", 1200, 800, color.NRGBA{R: 128, G: 64, B: 32, A: 255}, imaging.JPEG)
	g := NewGenerator(testLogger(), "", "")

	alts := g.Generate(context.Background(), path, "image/jpeg", true)

	require.NotNil(t, alts.Web)
	assert.Equal(t, "image/jpeg", alts.Web.ContentType)
	w, h := decodeSize(t, alts.Web.Data)
	assert.Equal(t, 1200, w, "web copy should not shrink below the cap")
	assert.Equal(t, 800, h)

	require.NotNil(t, alts.Thumbnail)
	assert.Equal(t, "image/jpeg", alts.Thumbnail.ContentType)
	tw, th := decodeSize(t, alts.Thumbnail.Data)
	assert.LessOrEqual(t, tw, 498)
	assert.LessOrEqual(t, th, 280)
}

func TestGenerate_PNGKeepsPNG(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "img.png", 600, 600, color.NRGBA{G: 255, A: 255}, imaging.PNG)
	g := NewGenerator(testLogger(), "", "")

	alts := g.Generate(context.Background(), path, "image/png", true)

	require.NotNil(t, alts.Web)
	assert.Equal(t, "image/png", alts.Web.ContentType)
	require.NotNil(t, alts.Thumbnail)
	assert.Equal(t, "image/png", alts.Thumbnail.ContentType)
	assert.Equal(t, ".png", alts.Thumbnail.Ext)
}

func TestGenerate_RemoteSkipsWeb(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "img.jpg", 100, 100, color.NRGBA{A: 255}, imaging.JPEG)
	g := NewGenerator(testLogger(), "", "")

	alts := g.Generate(context.Background(), path, "image/jpeg", false)

	assert.Nil(t, alts.Web, "remote content never gets a web rendition")
	assert.NotNil(t, alts.Thumbnail)
}

func TestGenerate_NonImageDegradesToNothing(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/file.txt"
	require.NoError(t, writeFile(path, []byte("not an image")))

	g := NewGenerator(testLogger(), "", "")
	alts := g.Generate(context.Background(), path, "text/plain", true)

	assert.Nil(t, alts.Web)
	assert.Nil(t, alts.Thumbnail)
}

func TestGenerate_CorruptImageDegrades(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/broken.jpg"
	require.NoError(t, writeFile(path, []byte{0xff, 0xd8, 0x00, 0x01}))

	g := NewGenerator(testLogger(), "", "")
	alts := g.Generate(context.Background(), path, "image/jpeg", true)

	assert.Nil(t, alts.Web)
	assert.Nil(t, alts.Thumbnail)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/jpeg"))
	assert.True(t, IsImage("image/webp"))
	assert.False(t, IsImage("image/tiff"))
	assert.False(t, IsImage("video/mp4"))
}

func TestCanThumbnail(t *testing.T) {
	assert.True(t, CanThumbnail("image/jpeg"))
	assert.True(t, CanThumbnail("video/mp4"))
	assert.False(t, CanThumbnail("application/pdf"))
	assert.False(t, CanThumbnail("image/gif"))
}

func TestThumbnail_ReportsConversionFailure(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/broken.png"
	require.NoError(t, writeFile(path, []byte("\x89PNG\r\n\x1a\ngarbage")))

	g := NewGenerator(testLogger(), "", "")
	_, err := g.Thumbnail(context.Background(), path, "image/png")
	assert.Error(t, err)
}
