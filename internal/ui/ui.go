// Package ui holds the inspector page served when no static directory is
// configured.
package ui

import "embed"

//go:embed *.html
var Templates embed.FS
