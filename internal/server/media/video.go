package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/disintegration/imaging"
)

// VideoResolution probes the first video stream with ffprobe and returns
// its width and height.
func (g *Generator) VideoResolution(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, g.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path)

	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video stream in %s", path)
	}
	return probe.Streams[0].Width, probe.Streams[0].Height, nil
}

// videoThumbnail extracts a single frame with ffmpeg and fits it into the
// thumbnail bounding box as JPEG.
func (g *Generator) videoThumbnail(ctx context.Context, path string) (*Rendition, error) {
	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w", path, err)
	}

	frame, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	fitted := imaging.Fit(frame, thumbnailMaxWidth, thumbnailMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return &Rendition{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
}
