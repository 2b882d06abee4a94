package importer

import (
	"bufio"
	"io"
)

// utf8BOM is the byte order mark Windows tools commonly prepend to CSV
// exports; encoding/csv would otherwise fold it into the first header name.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newBOMSkippingReader returns a reader with a leading UTF-8 BOM removed.
func newBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err == nil && head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
		_, _ = br.Discard(3)
	}
	return br
}
