package classify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/suyashkumar/dicom"
)

var dicomMagic = []byte("DICM")

// IsDICOM reports whether a file is a DICOM stream. Extension is checked
// first, then the DICM marker at byte offset 128, and finally a permissive
// header parse for preamble-less streams that scanners sometimes emit.
func IsDICOM(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dcm", ".dicom":
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	header := make([]byte, 132)
	_, readErr := io.ReadFull(f, header)
	f.Close()
	if readErr == nil && bytes.Equal(header[128:132], dicomMagic) {
		return true
	}

	_, err = dicom.ParseFile(path, nil, dicom.SkipPixelData())
	return err == nil
}
