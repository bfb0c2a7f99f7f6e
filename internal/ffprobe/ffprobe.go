// Package ffprobe extracts media durations by shelling out to ffprobe.
// Everything here is best-effort: a missing binary or an unparseable
// container yields an error the caller treats as "duration unknown".
package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type payload struct {
	Streams []stream `json:"streams"`
	Format  format   `json:"format"`
}

type stream struct {
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

type format struct {
	Duration string `json:"duration"`
}

// Duration returns the media duration of path in seconds. binary may
// be empty to use "ffprobe" from PATH.
func Duration(ctx context.Context, binary, path string) (float64, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseDuration(output)
}

// parseDuration picks the container-level duration, falling back to
// the first stream that reports one.
func parseDuration(raw []byte) (float64, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}

	if d, ok := parseSeconds(p.Format.Duration); ok {
		return d, nil
	}
	for _, s := range p.Streams {
		if d, ok := parseSeconds(s.Duration); ok {
			return d, nil
		}
	}
	return 0, errors.New("ffprobe: no duration reported")
}

func parseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
