//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// NewCodec returns the pure-Go codec.
func NewCodec() Codec {
	return newImagingCodec()
}
