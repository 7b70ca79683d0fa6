package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/tradejournal/src/logger"
)

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                  true,
	"application/csv":           true,
	"text/tab-separated-values": true,
	"application/vnd.ms-excel":  true, // Often used for CSV by older Excel
	"text/plain":                true,
	"application/octet-stream":  true,
	"application/xml":           true,
	"text/xml":                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// ValidateClientContentType checks the Content-Type header provided by the client.
// An empty value is accepted; the content is sniffed later anyway.
func ValidateClientContentType(contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ct == "" {
		return nil
	}
	if allowed, exists := AllowedClientContentTypes[ct]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for trade import", contentType)
	}
	return nil
}

// ValidateFileSize rejects empty uploads and uploads above maxBytes.
func ValidateFileSize(size, maxBytes int64) error {
	if size <= 0 {
		return fmt.Errorf("uploaded file is empty")
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("uploaded file is %d bytes, limit is %d", size, maxBytes)
	}
	return nil
}

var zipMagic = []byte("PK\x03\x04")

// ValidateFileContentByMagicBytes checks the actual file content signature.
// Text (CSV, TSV, XML) and zip containers (XLSX) are accepted.
func ValidateFileContentByMagicBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	detected := http.DetectContentType(head)
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	allowedDetectedTypes := map[string]bool{
		"text/plain":               true,
		"text/csv":                 true,
		"text/xml":                 true,
		"application/xml":          true,
		"application/csv":          true,
		"application/zip":          true,
		"application/octet-stream": true,
	}
	if !allowedDetectedTypes[detected] {
		logger.L.Warn("Disallowed detected file content type (magic bytes)", "detectedContentType", detected)
		return detected, fmt.Errorf("detected file content type '%s' is not a spreadsheet or delimited text file", detected)
	}
	if detected == "application/zip" && !bytes.HasPrefix(data, zipMagic) {
		return detected, fmt.Errorf("malformed zip container")
	}
	if detected == "application/octet-stream" && bytes.IndexByte(head, 0) >= 0 {
		return detected, fmt.Errorf("binary content is not accepted")
	}

	logger.L.Debug("File content type (magic bytes) validated", "detectedContentType", detected)
	return detected, nil
}
