// Package version records the build version of the tool.
package version

// Version is stamped at build time via -ldflags.
var Version = "0.1.0-dev"
