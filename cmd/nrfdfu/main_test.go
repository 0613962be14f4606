package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moffa90/go-nrfdfu/gatt"
	"github.com/moffa90/go-nrfdfu/gatt/gatttest"
	"github.com/moffa90/go-nrfdfu/internal/config"
)

const addr = "C1:02:03:04:05:06"

// useDevice routes the command to a simulated peripheral.
func useDevice(t *testing.T, dev *gatttest.Device) *int {
	t.Helper()

	opened := new(int)
	orig := openTransport
	openTransport = func(*zap.Logger, *config.Config) (gatt.Transport, func(), error) {
		*opened++
		return dev, func() {}, nil
	}
	t.Cleanup(func() { openTransport = orig })
	return opened
}

func writeFirmware(t *testing.T, size int) (image, initPacket string) {
	t.Helper()
	dir := t.TempDir()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	image = filepath.Join(dir, "app.bin")
	initPacket = filepath.Join(dir, "app.dat")
	require.NoError(t, os.WriteFile(image, data, 0o644))
	require.NoError(t, os.WriteFile(initPacket, []byte{0x01, 0x02, 0x03, 0x04}, 0o644))
	return image, initPacket
}

func writeFastConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nrfdfu.yaml")
	body := "settle:\n  activation: 0s\n  legacy_reboot: 0s\n  ruuvitag_reboot: 0s\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunValidation(t *testing.T) {
	image, initPacket := writeFirmware(t, 64)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no address", args: []string{"-f", image, "-d", initPacket}},
		{name: "bad address", args: []string{"-a", "C1:02", "-f", image, "-d", initPacket}},
		{name: "zip with file", args: []string{"-a", addr, "-z", "pkg.zip", "-f", image}},
		{name: "file without dat", args: []string{"-a", addr, "-f", image}},
		{name: "bad ruuvitag id", args: []string{"-a", addr, "-f", image, "-d", initPacket, "-ruuvitag", "aa:bb"}},
		{name: "secure and legacy", args: []string{"-a", addr, "-f", image, "-d", initPacket, "-secure", "-legacy"}},
		{name: "bad log level", args: []string{"-a", addr, "-f", image, "-d", initPacket, "-log-level", "loud"}},
		{name: "unknown flag", args: []string{"-frobnicate"}},
		{name: "stray argument", args: []string{"-a", addr, "extra"}},
		{name: "missing config", args: []string{"-config", filepath.Join(t.TempDir(), "none.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := useDevice(t, gatttest.New(gatttest.Secure, gatt.MustParseAddress(addr)))

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)

			assert.Equal(t, exitFailure, code)
			assert.Zero(t, *opened, "no radio activity before validation passes")
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run(context.Background(), []string{"-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-dump-trace")
}

func TestRunUpdate(t *testing.T) {
	image, initPacket := writeFirmware(t, 1000)
	dev := gatttest.New(gatttest.Secure, gatt.MustParseAddress(addr))
	opened := useDevice(t, dev)
	tracePath := filepath.Join(t.TempDir(), "update.trace")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", writeFastConfig(t),
		"-a", addr, "-f", image, "-d", initPacket,
		"-trace", tracePath,
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, 1, *opened)
	assert.Len(t, dev.Firmware(), 1000)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, dev.InitPacket())
	assert.Equal(t, gatttest.ModeApplication, dev.Mode())
	assert.False(t, dev.Connected())
	assert.Contains(t, stdout.String(), "Update complete: 1000 bytes")

	var dump bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"-dump-trace", tracePath}, &dump, &stderr))
	assert.Contains(t, dump.String(), "connect")
	assert.Contains(t, dump.String(), "write-cmd")
	assert.Contains(t, dump.String(), "notify")
}

func TestRunLegacyUpdate(t *testing.T) {
	image, initPacket := writeFirmware(t, 333)
	dev := gatttest.New(gatttest.Legacy, gatt.MustParseAddress(addr))
	useDevice(t, dev)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", writeFastConfig(t), "-legacy",
		"-a", addr, "-f", image, "-d", initPacket,
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Len(t, dev.Firmware(), 333)
}

func TestRunUpdateFailure(t *testing.T) {
	image, initPacket := writeFirmware(t, 1000)
	dev := gatttest.New(gatttest.Secure, gatt.MustParseAddress(addr), gatttest.InBootloader())
	dev.Capacity = 100
	useDevice(t, dev)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", writeFastConfig(t), "-a", addr, "-f", image, "-d", initPacket,
	}, &stdout, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.False(t, dev.Connected(), "transport released on failure")
}

func TestDumpTraceMissing(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-dump-trace", filepath.Join(t.TempDir(), "none.trace")}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
}

func TestMergeKeepsFileValues(t *testing.T) {
	f, set, err := parseFlags([]string{"-a", addr, "-verbose"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Mode = config.ModeLegacy
	cfg.Package = "from-file.zip"
	require.NoError(t, f.merge(cfg, set))

	assert.Equal(t, addr, cfg.Address)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, config.ModeLegacy, cfg.Mode)
	assert.Equal(t, "from-file.zip", cfg.Package)
}
