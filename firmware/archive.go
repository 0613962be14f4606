package firmware

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrBadArchiveContents is returned when a DFU package does not contain
// exactly one init packet and one application image.
var ErrBadArchiveContents = errors.New("bad archive contents")

// ManifestName is the manifest file written by Nordic packaging tools.
const ManifestName = "manifest.json"

// manifest mirrors the parts of manifest.json this package reads.
type manifest struct {
	Manifest struct {
		Application *struct {
			BinFile string `json:"bin_file"`
			DatFile string `json:"dat_file"`
		} `json:"application"`
	} `json:"manifest"`
}

// Archive is a DFU package extracted to a scratch directory.
// Close removes the directory and everything in it.
type Archive struct {
	// Dir is the scratch directory holding the extracted files
	Dir string

	// ImagePath is the extracted application image (.bin or .hex)
	ImagePath string

	// InitPath is the extracted init packet (.dat)
	InitPath string
}

// Unpack extracts the init packet and application image of a DFU zip into a
// fresh scratch directory. The entries are selected from manifest.json when
// present, otherwise by extension: exactly one ".dat" and exactly one ".bin"
// or ".hex" entry must exist.
//
// The caller must Close the returned Archive. On error nothing is left on disk.
//
// Example:
//
//	arc, err := firmware.Unpack("app_dfu_package.zip")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer arc.Close()
func Unpack(zipPath string) (arc *Archive, err error) {
	zr, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadArchiveContents, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	imageEntry, initEntry, err := selectEntries(&zr.Reader)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	dir, err := os.MkdirTemp("", stem+"_")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	arc = &Archive{Dir: dir}
	defer func() {
		if err != nil {
			_ = arc.Close()
			arc = nil
		}
	}()

	if arc.ImagePath, err = extract(imageEntry, dir); err != nil {
		return arc, err
	}
	if arc.InitPath, err = extract(initEntry, dir); err != nil {
		return arc, err
	}

	return arc, nil
}

// Load reads the extracted image and init packet.
func (a *Archive) Load() (*Package, error) {
	return Load(a.ImagePath, a.InitPath)
}

// Close removes the scratch directory. It is safe to call more than once.
func (a *Archive) Close() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	a.Dir = ""
	return err
}

// LoadArchive unpacks a DFU zip, loads its contents and removes the scratch
// directory before returning, on success and on failure.
func LoadArchive(zipPath string) (*Package, error) {
	arc, err := Unpack(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = arc.Close() }()

	return arc.Load()
}

// selectEntries picks the image and init packet entries.
func selectEntries(zr *zip.Reader) (image, initPacket *zip.File, err error) {
	byName := make(map[string]*zip.File, len(zr.File))
	var images, inits []*zip.File

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !safeEntryName(f.Name) {
			return nil, nil, fmt.Errorf("%w: unsafe entry name %q", ErrBadArchiveContents, f.Name)
		}
		byName[f.Name] = f

		switch strings.ToLower(path.Ext(f.Name)) {
		case ".dat":
			inits = append(inits, f)
		case ".bin", ".hex":
			images = append(images, f)
		}
	}

	if mf, ok := byName[ManifestName]; ok {
		return selectFromManifest(mf, byName)
	}

	if len(inits) != 1 {
		return nil, nil, fmt.Errorf("%w: expected exactly one .dat file, found %d", ErrBadArchiveContents, len(inits))
	}
	if len(images) != 1 {
		return nil, nil, fmt.Errorf("%w: expected exactly one .bin or .hex file, found %d", ErrBadArchiveContents, len(images))
	}

	return images[0], inits[0], nil
}

func selectFromManifest(mf *zip.File, byName map[string]*zip.File) (image, initPacket *zip.File, err error) {
	rc, err := mf.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var m manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid manifest: %v", ErrBadArchiveContents, err)
	}

	app := m.Manifest.Application
	if app == nil {
		return nil, nil, fmt.Errorf("%w: manifest has no application entry", ErrBadArchiveContents)
	}

	image, ok := byName[app.BinFile]
	if !ok {
		return nil, nil, fmt.Errorf("%w: manifest image %q not in archive", ErrBadArchiveContents, app.BinFile)
	}
	initPacket, ok = byName[app.DatFile]
	if !ok {
		return nil, nil, fmt.Errorf("%w: manifest init packet %q not in archive", ErrBadArchiveContents, app.DatFile)
	}

	return image, initPacket, nil
}

// safeEntryName rejects absolute paths and parent references.
func safeEntryName(name string) bool {
	if name == "" || path.IsAbs(name) || strings.Contains(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// maxEntrySize bounds one extracted archive entry. A hex file of a
// MaxImageSize image stays well below it.
var maxEntrySize int64 = MaxImageSize * 4

// extract writes one entry into dir under its base name. Entries larger than
// maxEntrySize are rejected rather than truncated.
func extract(f *zip.File, dir string) (string, error) {
	dest := filepath.Join(dir, path.Base(f.Name))

	if f.UncompressedSize64 > uint64(maxEntrySize) {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrBadArchiveContents, f.Name, maxEntrySize)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		_ = out.Close()
		return "", fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > maxEntrySize {
		_ = out.Close()
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrBadArchiveContents, f.Name, maxEntrySize)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("extract %s: %w", f.Name, err)
	}

	return dest, nil
}
