package correlator

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const octetStream = "application/octet-stream"

// DetectMediaType sniffs data. The caller's hint is used only when the
// content is not recognized.
func DetectMediaType(data []byte, hint string, logger *zap.Logger) string {
	detected := mimetype.Detect(data)
	if !detected.Is(octetStream) {
		return baseType(detected.String())
	}
	if hint == "" {
		return octetStream
	}
	logger.Warn("attachment type not recognized, using declared type", zap.String("declared", hint))
	return baseType(hint)
}

// baseType strips parameters such as charset.
func baseType(t string) string {
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return t
	}
	return mt
}
