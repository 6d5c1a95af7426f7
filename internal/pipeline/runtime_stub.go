//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func Backend() string {
	return "imaging"
}

func newCodec(opts EncodeOptions) (Codec, error) {
	return newImagingCodec(opts), nil
}
