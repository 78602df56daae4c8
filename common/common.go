// Package common holds shared helpers used by all Star Trader services.
package common

// PackageName identifies this project in logs and metrics.
const PackageName = "star-trader"

// Version is set at build time via ldflags.
var Version = "dev"
