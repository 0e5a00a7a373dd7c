package constants

import "strings"

// PDFMIMEType is the content type sent upstream for every staged document.
const PDFMIMEType = "application/pdf"

// AllowedExtensions holds the extensions accepted for KPI extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
