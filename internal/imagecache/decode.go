package imagecache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	_ "golang.org/x/image/webp" // register WebP decoder
)

// sniffSize is how much of the body is inspected; large JPEG metadata
// segments may push the frame header beyond it, which is tolerated.
const sniffSize = 64 << 10

// decodable lists the media types with a registered decoder. Other image
// types are stored without inspection.
var decodable = map[string]bool{
	"image/gif":  true,
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// verifyDecodable inspects the head of body with image.DecodeConfig and
// returns a reader that still yields the full body. A body declared as a
// type no decoder is registered for (AVIF, SVG, TIFF) passes unless empty.
func verifyDecodable(body io.Reader, contentType string) (io.Reader, error) {
	br := bufio.NewReaderSize(body, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUndecodable)
	}
	_, _, err = image.DecodeConfig(bytes.NewReader(head))
	switch {
	case err == nil:
		return br, nil
	case errors.Is(err, io.ErrUnexpectedEOF) && len(head) == sniffSize:
		return br, nil
	case errors.Is(err, image.ErrFormat) && !decodable[mediaType(contentType)]:
		return br, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
}
