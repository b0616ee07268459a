package ent

import (
	"bytes"
	"io"

	"github.com/lima-vm/go-qcow2reader"
	"github.com/lima-vm/go-qcow2reader/image/qcow2"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

const (
	FormatLZ4   = "lz4"
	FormatQCOW2 = "qcow2"
)

// DefaultMaxExpandedSize bounds how much memory a single expansion may use.
const DefaultMaxExpandedSize = 1 << 30

var ErrExpandedTooLarge = errors.New("expanded data exceeds size limit")

var (
	lz4Magic   = []byte{0x04, 0x22, 0x4d, 0x18}
	qcow2Magic = []byte(qcow2.Magic)
)

// DetectFormat reports the container format of data, or "" if it is not
// one that Expand understands.
func DetectFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, lz4Magic):
		return FormatLZ4
	case bytes.HasPrefix(data, qcow2Magic):
		return FormatQCOW2
	default:
		return ""
	}
}

// Expand decodes lz4 frames and qcow2 images into the bytes they contain.
// Other data is returned unchanged along with an empty format.
func Expand(data []byte) ([]byte, string, error) {
	return ExpandLimit(data, DefaultMaxExpandedSize)
}

// ExpandLimit is Expand with the decoded size capped at limit bytes.
func ExpandLimit(data []byte, limit int64) ([]byte, string, error) {
	format := DetectFormat(data)

	switch format {
	case FormatLZ4:
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), limit+1))
		if err != nil {
			return nil, format, errors.Wrapf(err, "expanding lz4 frame")
		}

		if int64(len(out)) > limit {
			return nil, format, errors.Wrapf(ErrExpandedTooLarge, "lz4 frame (limit %d)", limit)
		}

		return out, format, nil
	case FormatQCOW2:
		// Open would fall back to treating a damaged image as raw bytes.
		img, err := qcow2reader.OpenWithType(bytes.NewReader(data), qcow2.Type)
		if err != nil {
			return nil, format, errors.Wrapf(err, "opening qcow2 image")
		}

		defer img.Close()

		if err := img.Readable(); err != nil {
			return nil, format, errors.Wrapf(err, "qcow2 image is not readable")
		}

		sz := img.Size()
		if sz < 0 {
			return nil, format, errors.New("qcow2 image has no size")
		}

		if sz > limit {
			return nil, format, errors.Wrapf(ErrExpandedTooLarge, "qcow2 image of %d bytes (limit %d)", sz, limit)
		}

		out, err := io.ReadAll(io.NewSectionReader(img, 0, sz))
		if err != nil {
			return nil, format, errors.Wrapf(err, "reading qcow2 image")
		}

		return out, format, nil
	default:
		return data, "", nil
	}
}
