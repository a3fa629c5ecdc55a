package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/drivestore/internal/logging"
)

// Bounding boxes for generated renditions.
const (
	webMaxWidth  = 16384
	webMaxHeight = 16384

	thumbnailMaxWidth  = 498
	thumbnailMaxHeight = 280
)

// Rendition is one derived copy of an original: re-encoded bytes plus the
// resulting content type and extension.
type Rendition struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Alts bundles the optional renditions produced for one upload. Either
// field may be nil when generation was skipped or failed.
type Alts struct {
	Web       *Rendition
	Thumbnail *Rendition
}

// Generator produces derived renditions and image properties. Every
// operation is best-effort from the caller's point of view: Generate logs
// failures and returns whatever subset succeeded.
type Generator struct {
	logger logging.Logger

	ffmpegPath  string
	ffprobePath string
}

// NewGenerator constructs a Generator. ffmpegPath/ffprobePath may be bare
// command names resolved through PATH.
func NewGenerator(logger logging.Logger, ffmpegPath, ffprobePath string) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Generator{logger: logger, ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Generate builds the web-safe copy and the thumbnail for the file at path.
// generateWeb is false for remote-originated content, which is served as-is.
// Individual failures degrade to absence and never return an error.
func (g *Generator) Generate(ctx context.Context, path, contentType string, generateWeb bool) Alts {
	var alts Alts

	if generateWeb {
		web, err := g.generateWeb(path, contentType)
		if err != nil {
			g.logger.Warn(ctx, "web rendition failed", "path", path, "error", err.Error())
		} else {
			alts.Web = web
		}
	}

	thumb, err := g.generateThumbnail(ctx, path, contentType)
	if err != nil {
		g.logger.Warn(ctx, "thumbnail rendition failed", "path", path, "error", err.Error())
	} else {
		alts.Thumbnail = thumb
	}

	return alts
}

// generateWeb re-encodes an image within the web bounding box. The point is
// normalizing the format and dropping embedded metadata rather than
// shrinking.
func (g *Generator) generateWeb(path, contentType string) (*Rendition, error) {
	switch contentType {
	case "image/jpeg":
		return encodeImage(path, webMaxWidth, webMaxHeight, imaging.JPEG)
	case "image/png":
		return encodeImage(path, webMaxWidth, webMaxHeight, imaging.PNG)
	case "image/webp":
		// No lossless webp encoder is available; normalize to PNG.
		return encodeImage(path, webMaxWidth, webMaxHeight, imaging.PNG)
	}
	return nil, fmt.Errorf("no web rendition for %s", contentType)
}

// generateThumbnail produces the small preview. PNG keeps PNG so that
// transparency survives; everything else becomes JPEG.
func (g *Generator) generateThumbnail(ctx context.Context, path, contentType string) (*Rendition, error) {
	switch {
	case contentType == "image/jpeg" || contentType == "image/webp":
		return encodeImage(path, thumbnailMaxWidth, thumbnailMaxHeight, imaging.JPEG)
	case contentType == "image/png":
		return encodeImage(path, thumbnailMaxWidth, thumbnailMaxHeight, imaging.PNG)
	case strings.HasPrefix(contentType, "video/"):
		return g.videoThumbnail(ctx, path)
	}
	return nil, fmt.Errorf("no thumbnail for %s", contentType)
}

// Thumbnail builds the preview rendition and, unlike Generate, reports
// failure. Callers that proxy remote content use it to tell a conversion
// error apart from a type with no preview.
func (g *Generator) Thumbnail(ctx context.Context, path, contentType string) (*Rendition, error) {
	return g.generateThumbnail(ctx, path, contentType)
}

// CanThumbnail reports whether generateThumbnail has a rendition for the
// content type.
func CanThumbnail(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return strings.HasPrefix(contentType, "video/")
}

func encodeImage(path string, maxW, maxH int, format imaging.Format) (*Rendition, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	fitted := imaging.Fit(src, maxW, maxH, imaging.Lanczos)

	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(85))
	}
	if err := imaging.Encode(&buf, fitted, format, opts...); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if format == imaging.PNG {
		return &Rendition{Data: buf.Bytes(), ContentType: "image/png", Ext: ".png"}, nil
	}
	return &Rendition{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
}

// Dimensions reads the image header and returns width and height without
// decoding pixel data.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// AverageColor decodes the image and returns the mean color as "r,g,b", or
// "r,g,b,255" when the image carries transparency. The image is downsampled
// first so that cost does not grow with the original's size.
func AverageColor(path string) (string, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	small := imaging.Resize(src, 64, 0, imaging.Box)
	bounds := small.Bounds()

	var rSum, gSum, bSum uint64
	var opaque = true
	var n uint64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := small.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			if a < 0xffff {
				opaque = false
			}
			n++
		}
	}
	if n == 0 {
		return "", fmt.Errorf("empty image")
	}

	parts := []string{
		strconv.FormatUint(rSum/n, 10),
		strconv.FormatUint(gSum/n, 10),
		strconv.FormatUint(bSum/n, 10),
	}
	if !opaque {
		parts = append(parts, "255")
	}
	return strings.Join(parts, ","), nil
}

// IsImage reports whether the content type is one the generator can decode.
func IsImage(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/gif", "image/png", "image/webp":
		return true
	}
	return false
}
