// Package media reads presentation metadata from local video files.
package media

import (
	"errors"
	"fmt"
	"os"

	"github.com/abema/go-mp4"

	"slowclaw/internal/publish/models"
)

// ErrNoDimensions is returned when no track of the file declares a size.
var ErrNoDimensions = errors.New("no video track dimensions")

// AspectRatio returns the natural display dimensions of the first visual
// track of an MP4/QuickTime file, taking a 90/270 degree rotation matrix into
// account.
func AspectRatio(path string) (models.AspectRatio, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.AspectRatio{}, err
	}
	defer f.Close()

	boxes, err := mp4.ExtractBoxWithPayload(f, nil, mp4.BoxPath{
		mp4.BoxTypeMoov(),
		mp4.BoxTypeTrak(),
		mp4.BoxTypeTkhd(),
	})
	if err != nil {
		return models.AspectRatio{}, fmt.Errorf("read track headers: %w", err)
	}

	for _, box := range boxes {
		tkhd, ok := box.Payload.(*mp4.Tkhd)
		if !ok {
			continue
		}
		width := int(tkhd.Width >> 16)
		height := int(tkhd.Height >> 16)
		if width <= 0 || height <= 0 {
			continue
		}
		if rotated(tkhd.Matrix) {
			width, height = height, width
		}
		return models.AspectRatio{Width: width, Height: height}, nil
	}
	return models.AspectRatio{}, ErrNoDimensions
}

// rotated reports a quarter-turn transform: a and d are zero while b and c
// carry the rotation.
func rotated(m [9]int32) bool {
	return m[0] == 0 && m[4] == 0 && m[1] != 0 && m[3] != 0
}
