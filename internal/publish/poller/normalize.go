package poller

import (
	"math"

	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
)

// DisplayPercent converts remote job progress into the percent shown during
// the processing stage. Values <= 1 are fractions, larger values are already
// percentages. The result is clamped to [0,100] and then into the processing
// band so it neither drops below the uploaded stage nor reaches ready.
func DisplayPercent(remote float64) int {
	if math.IsNaN(remote) || math.IsInf(remote, 0) {
		return models.PercentUploaded
	}
	pct := remote
	if pct <= 1 {
		pct *= 100
	}
	n := progress.Clamp(int(math.Round(pct)), 0, 100)
	return progress.Clamp(n, models.PercentUploaded, models.PercentReady)
}
