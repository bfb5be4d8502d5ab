// Package ui embeds the HTML pages served to viewers.
package ui

import "embed"

//go:embed *.html
var Templates embed.FS
