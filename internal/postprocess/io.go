package postprocess

import "io"

func copyBytes(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
