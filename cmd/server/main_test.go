package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camview/internal/config"
)

func TestViewerURL(t *testing.T) {
	assert.Equal(t, "https://cam.example.com", viewerURL(&config.Config{PublicURL: "https://cam.example.com", Port: "8888"}))

	u := viewerURL(&config.Config{Port: "8888"})
	assert.True(t, strings.HasPrefix(u, "http://"))
	assert.True(t, strings.HasSuffix(u, ":8888/"))
}

func TestPrintQR(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, printQR(rootCmd, "http://192.168.1.20:8888/"))
	assert.NotEmpty(t, strings.TrimSpace(buf.String()))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "camview v1.2.0\n", buf.String())
}
