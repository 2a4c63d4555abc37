package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// ProxyModel identifies the forward/side scatter proxy formulas used by the
// Mie forward model. Every stored calibration records it; bump it whenever
// the collection geometry or the proxy definition changes, since that shifts
// every downstream size estimate.
const ProxyModel = "cone-fraction/v1"

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("%s (%s, built %s, proxy %s)", Version, GitSHA, BuildTime, ProxyModel)
}
