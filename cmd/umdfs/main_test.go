package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umdfs/internal/config"
	"umdfs/internal/isotest"
)

type cli struct {
	t      *testing.T
	config string
	image  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()

	b := isotest.NewBuilder("GAME12345")
	b.Publisher = "UMDFS"
	b.AddFile("UMD_DATA.BIN", []byte("ULUS-12345|0000000000000000|0001|G"))
	b.AddFile("PSP_GAME/PARAM.SFO", []byte("\x00PSF\x01\x01\x00\x00"))
	b.AddFile("PSP_GAME/SYSDIR/EBOOT.BIN", bytes.Repeat([]byte("eboot"), 1000))

	cso, err := isotest.EncodeCSO(b.Bytes(), isotest.CSOOptions{Version: 1})
	require.NoError(t, err)
	image := filepath.Join(dir, "game.cso")
	require.NoError(t, os.WriteFile(image, cso, 0644))

	return &cli{t: t, config: filepath.Join(dir, "config.yaml"), image: image}
}

func (c *cli) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-config", c.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInfo(t *testing.T) {
	c := newCLI(t)
	code, out, errOut := c.run(c.image, "info")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "GAME12345")
	assert.Contains(t, out, "UMDFS")
	assert.Contains(t, out, "CSO")
	assert.Contains(t, out, "Game:")
	assert.Contains(t, out, "EBOOT.BIN, PARAM.SFO")
	assert.NotContains(t, out, "missing")
}

func TestInfoGameLayout(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"boot fallback", []string{"PSP_GAME/SYSDIR/BOOT.BIN", "PSP_GAME/PARAM.SFO"}, "BOOT.BIN, PARAM.SFO (missing EBOOT.BIN)"},
		{"no param", []string{"PSP_GAME/SYSDIR/EBOOT.BIN"}, "EBOOT.BIN (missing PARAM.SFO)"},
		{"plain disc", []string{"README.TXT"}, "not a PSP game layout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			b := isotest.NewBuilder("DISC")
			for _, f := range tt.files {
				b.AddFile(f, []byte("x"))
			}
			image := filepath.Join(t.TempDir(), "disc.iso")
			require.NoError(t, os.WriteFile(image, b.Bytes(), 0644))

			code, out, errOut := c.run(image, "info")
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestPreview(t *testing.T) {
	c := newCLI(t)

	code, out, errOut := c.run(c.image, "preview", "/PSP_GAME/SYSDIR/EBOOT.BIN")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "00000000  65 62 6f 6f 74"), lines[0])
	assert.Contains(t, lines[3], "00000030")

	// Shorter files dump what they have
	code, out, errOut = c.run(c.image, "preview", "/PSP_GAME/PARAM.SFO")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "00 50 53 46 01 01 00 00")
	assert.Contains(t, out, "|.PSF....|")

	code, _, _ = c.run(c.image, "preview", "/PSP_GAME")
	assert.Equal(t, 1, code)
	code, _, _ = c.run(c.image, "preview")
	assert.Equal(t, 2, code)
}

func TestListAndStat(t *testing.T) {
	c := newCLI(t)

	code, out, errOut := c.run(c.image, "ls")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "PSP_GAME")
	assert.Contains(t, out, "UMD_DATA.BIN")

	code, out, errOut = c.run(c.image, "ls", "/psp_game/sysdir")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "EBOOT.BIN")
	assert.Contains(t, out, "5000")

	code, out, errOut = c.run(c.image, "stat", "/PSP_GAME/SYSDIR/EBOOT.BIN")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "/PSP_GAME/SYSDIR/EBOOT.BIN")
	assert.Contains(t, out, "file")

	code, _, errOut = c.run(c.image, "stat", "/NOPE")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestCaseSensitiveFlag(t *testing.T) {
	c := newCLI(t)
	code, _, _ := c.run("-case-sensitive", c.image, "stat", "/psp_game")
	assert.Equal(t, 1, code)
	code, _, _ = c.run("-case-sensitive", c.image, "stat", "/PSP_GAME")
	assert.Equal(t, 0, code)
}

func TestCat(t *testing.T) {
	c := newCLI(t)
	code, out, errOut := c.run(c.image, "cat", "/PSP_GAME/SYSDIR/EBOOT.BIN")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, strings.Repeat("eboot", 1000), out)

	code, _, errOut = c.run(c.image, "cat", "/PSP_GAME")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "is a directory")
}

func TestExtractCommand(t *testing.T) {
	c := newCLI(t)
	dst := filepath.Join(t.TempDir(), "out")

	code, out, errOut := c.run("-workers", "3", c.image, "extract", "/", dst)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "3 files")

	got, err := os.ReadFile(filepath.Join(dst, "PSP_GAME", "PARAM.SFO"))
	require.NoError(t, err)
	assert.Equal(t, "\x00PSF\x01\x01\x00\x00", string(got))
}

func TestRecentImages(t *testing.T) {
	c := newCLI(t)
	for i := 0; i < 2; i++ {
		code, _, errOut := c.run(c.image, "info")
		require.Equal(t, 0, code, errOut)
	}

	m, err := config.NewManager(c.config)
	require.NoError(t, err)
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Len(t, cfg.Recent, 1)
	assert.Equal(t, "GAME12345", cfg.Recent[0].Label)
	assert.Equal(t, "CSO", cfg.Recent[0].Format)

	code, out, _ := c.run("recent")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, c.image)
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no arguments", nil, 2},
		{"missing command", []string{c.image}, 2},
		{"unknown command", []string{c.image, "explode"}, 2},
		{"stat without path", []string{c.image, "stat"}, 2},
		{"extract without destination", []string{c.image, "extract", "/"}, 2},
		{"bad flag", []string{"-nope"}, 2},
		{"missing image", []string{filepath.Join(t.TempDir(), "missing.iso"), "info"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := c.run(tt.args...)
			assert.Equal(t, tt.code, code)
		})
	}
}
