// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.4.0"

// Milestones:
// 0.4.0 - Monte Carlo runs, Prometheus textfile/pushgateway export, TUI run viewer
// 0.3.0 - Spectral correlator, YAML scenarios, zstd IQ dumps
// 0.2.0 - Joint TDOA/FDOA solver with covariance and error ellipsoid, geodetic scenarios
// 0.1.0 - Initial release: signal model, FFT ambiguity function, TDOA solver
