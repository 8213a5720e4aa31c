package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
)

const barWidth = 24

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// progressPrinter renders one line per progress event.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) sink(ev models.ProgressEvent) {
	filled := ev.Percent * barWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)

	stage := cyan(string(ev.Stage))
	switch ev.Stage {
	case models.StageDone:
		stage = green(string(ev.Stage))
	case models.StageFailed:
		stage = red(string(ev.Stage))
	case models.StageProcessing:
		stage = yellow(string(ev.Stage))
	}
	fmt.Fprintf(p.w, "[%s] %3d%% %s %s\n", bar, ev.Percent, stage, gray(ev.Message))
}

// hint suggests what to do about a failure of the given kind.
func hint(err error) string {
	switch failure.KindOf(err) {
	case failure.KindAuth:
		return "check SLOWCLAW_BLUESKY_HANDLE and SLOWCLAW_BLUESKY_APP_PASSWORD"
	case failure.KindTimeout:
		return "the video is still processing remotely; try again later"
	case failure.KindProcessing:
		return "the video could not be transcoded; try a different encoding"
	case failure.KindInvalidInput:
		return "fix the input and retry"
	default:
		return ""
	}
}

// publishError renders a failure for the terminal while keeping the
// classified error reachable through errors.Is.
type publishError struct {
	msg string
	err error
}

func (e *publishError) Error() string { return e.msg }

func (e *publishError) Unwrap() error { return e.err }

func describe(err error) error {
	msg := fmt.Sprintf("%s %s", red(bold("publish failed:")), failure.Message(err))
	if kind := failure.KindOf(err); kind != "" {
		msg += gray(fmt.Sprintf(" (%s)", kind))
	}
	if h := hint(err); h != "" {
		msg += "\n  " + h
	}
	return &publishError{msg: msg, err: err}
}
