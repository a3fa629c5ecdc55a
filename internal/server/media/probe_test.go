package media

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage renders a solid-color image to disk in the given format.
func writeTestImage(t *testing.T, dir, name string, w, h int, c color.NRGBA, format imaging.Format) string {
	t.Helper()

	img := imaging.New(w, h, c)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, imaging.Encode(f, img, format))
	return path
}

func TestProbe_JPEG(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "img.bin", 100, 50, color.NRGBA{R: 255, A: 255}, imaging.JPEG)

	res, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", res.MediaType)
	assert.Equal(t, ".jpg", res.Ext)
	assert.Len(t, res.Hash, 64, "sha256 hex digest")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), res.Size)
}

func TestProbe_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("abc"), 100000), 0o600))

	a, err := Probe(path)
	require.NoError(t, err)
	b, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Size, b.Size)
}

func TestProbe_IgnoresFilename(t *testing.T) {
	// A PNG stored with a .jpg name must still be detected as PNG.
	path := writeTestImage(t, t.TempDir(), "lie.jpg", 10, 10, color.NRGBA{G: 255, A: 255}, imaging.PNG)

	res, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.MediaType)
	assert.Equal(t, ".png", res.Ext)
}

func TestProbe_MissingFile(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestNormalizeType_APNG(t *testing.T) {
	mt, ext := normalizeType("image/vnd.mozilla.apng", ".apng")
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, ".png", ext)

	mt, ext = normalizeType("image/apng", ".apng")
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, ".png", ext)
}

func TestDimensions(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "img.jpg", 1200, 800, color.NRGBA{B: 200, A: 255}, imaging.JPEG)

	w, h, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, w)
	assert.Equal(t, 800, h)
}

func TestAverageColor_Opaque(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "img.png", 64, 64, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, imaging.PNG)

	avg, err := AverageColor(path)
	require.NoError(t, err)
	assert.Equal(t, "10,20,30", avg)
}

func TestAverageColor_Transparent(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	// fully transparent image
	path := filepath.Join(dir, "img.png")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, imaging.Encode(f, img, imaging.PNG))
	require.NoError(t, f.Close())

	avg, err := AverageColor(path)
	require.NoError(t, err)
	assert.Equal(t, "0,0,0,255", avg)
}
