package main

import (
	"bytes"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// PickEncoding returns the configured content coding if the client listed it
// in accept-encoding, or "" to send the body as-is.
func PickEncoding(configured, acceptEncoding string) string {
	if configured == "" || configured == "none" {
		return ""
	}
	for _, token := range strings.Split(acceptEncoding, ",") {
		token = strings.TrimSpace(token)
		if i := strings.IndexByte(token, ';'); i >= 0 {
			token = strings.TrimSpace(token[:i])
		}
		if strings.EqualFold(token, configured) {
			return configured
		}
	}
	return ""
}

func CompressData(in []byte, lib string) ([]byte, error) {
	var buf bytes.Buffer
	switch lib {
	case "deflate":
		writer, err := flate.NewWriter(&buf, flate.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err = writer.Write(in); err != nil {
			writer.Close()
			return nil, err
		}
		if err = writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "gzip":
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(in); err != nil {
			writer.Close()
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "zstd":
		writer, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err = writer.Write(in); err != nil {
			writer.Close()
			return nil, err
		}
		if err = writer.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, nil
	}
}
