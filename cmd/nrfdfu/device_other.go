//go:build !linux && !darwin

package main

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newDevice() (ble.Device, error) {
	return nil, fmt.Errorf("bluetooth is not supported on %s", runtime.GOOS)
}
