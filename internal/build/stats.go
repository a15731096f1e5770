package build

import (
	"bytes"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/conneroisu/markupc/internal/errors"
)

// Stats describes a finished bundle.
type Stats struct {
	// Size and GzipSize are in bytes.
	Size     int
	GzipSize int
	// Bindings is the number of hoisted config objects, Functions the
	// number of generated callback functions.
	Bindings  int
	Functions int
	// Fragments lists the runtime fragments in concatenation order.
	Fragments []string
	Duration  time.Duration
}

func computeStats(src string) (Stats, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return Stats{}, errors.WrapInternal(err, errors.ErrCodeInternalError, "cannot create gzip writer")
	}
	if _, err := zw.Write([]byte(src)); err != nil {
		return Stats{}, errors.WrapInternal(err, errors.ErrCodeInternalError, "cannot compress bundle")
	}
	if err := zw.Close(); err != nil {
		return Stats{}, errors.WrapInternal(err, errors.ErrCodeInternalError, "cannot compress bundle")
	}

	return Stats{Size: len(src), GzipSize: buf.Len()}, nil
}
