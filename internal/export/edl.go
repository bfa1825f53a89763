package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/easyclips/easyclips-agent/internal/editor"
	"github.com/easyclips/easyclips-agent/internal/timecode"
)

// GenerateEDL renders the video clips as a CMX3600 edit decision list. Source
// in/out come from each clip's trim range and record in from its position.
func GenerateEDL(clips []editor.VideoClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = timecode.PreviewFPS
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, clip := range clips {
		srcIn := timecode.FrameTimecode(secondsToMs(clip.TrimStart), fps)
		srcOut := timecode.FrameTimecode(secondsToMs(clip.TrimEnd), fps)
		recIn := timecode.FrameTimecode(secondsToMs(clip.Position), fps)
		recOut := timecode.FrameTimecode(secondsToMs(clip.End()), fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reelName(i), "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(clip)),
		)
		if clip.Source.Path != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", clip.Source.Path))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToMs(s float64) int {
	return int(math.Round(s * 1000))
}

func reelName(i int) string {
	return fmt.Sprintf("AX%d", i+1)
}

func clipName(c editor.VideoClip) string {
	if name := CleanName(c.Source.Name, 64); name != "" {
		return name
	}
	return c.ID
}
