package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moffa90/go-nrfdfu/protocol"
)

// ErrUnsupportedFormat is returned for image files that are neither .bin nor .hex.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Package is a firmware image plus the init packet describing it.
// Both are read once and never modified.
type Package struct {
	// Image is the flat application image
	Image []byte

	// InitPacket is the metadata sent before the image (.dat file contents)
	InitPacket []byte
}

// Size returns the image size in bytes.
func (p *Package) Size() int {
	return len(p.Image)
}

// CRC32 returns the CRC-32 of the image.
func (p *Package) CRC32() uint32 {
	return protocol.CRC32(p.Image)
}

// Validate checks that both the image and the init packet are non-empty.
func (p *Package) Validate() error {
	if len(p.Image) == 0 {
		return fmt.Errorf("firmware image: %w", protocol.ErrEmptyImage)
	}
	if len(p.InitPacket) == 0 {
		return fmt.Errorf("init packet: %w", protocol.ErrEmptyImage)
	}
	return nil
}

// Load reads an image (.bin or .hex) and an init packet (.dat) from disk.
//
// Example:
//
//	pkg, err := firmware.Load("application.hex", "application.dat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Image: %d bytes, CRC32 0x%08X\n", pkg.Size(), pkg.CRC32())
func Load(imagePath, initPath string) (*Package, error) {
	image, err := LoadImage(imagePath)
	if err != nil {
		return nil, err
	}

	initPacket, err := os.ReadFile(initPath)
	if err != nil {
		return nil, fmt.Errorf("read init packet: %w", err)
	}

	pkg := &Package{Image: image, InitPacket: initPacket}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return pkg, nil
}

// LoadImage reads a firmware image. The format is chosen by extension:
// ".bin" is read verbatim, ".hex" is parsed as Intel HEX and linearized.
func LoadImage(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin":
		image, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return image, nil
	case ".hex", ".ihex":
		image, err := ParseHex(path)
		if err != nil {
			return nil, fmt.Errorf("parse hex %s: %w", filepath.Base(path), err)
		}
		return image, nil
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}
