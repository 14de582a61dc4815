// Package scripts embeds the Risor scripts shipped with lineage.
package scripts

import "embed"

// FS holds resolve/*.risor.
//
//go:embed resolve/*.risor
var FS embed.FS

// JavaResolver is the path of the default supertype resolution script.
const JavaResolver = "resolve/java.risor"
