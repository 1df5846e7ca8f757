package wreco

import "github.com/banshee-data/wreco/internal/monitoring"

// captureLogs redirects monitoring.Logf and returns a restore func.
func captureLogs(f monitoring.Logger) func() {
	return monitoring.SetLogger(f)
}
