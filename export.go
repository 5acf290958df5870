package gdpull

import (
	"strings"
)

// NativeMimeTypePrefix is shared by every Google Workspace native type.
const NativeMimeTypePrefix = "application/vnd.google-apps."

// ExportFormat is the interchange format a native document is exported to.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	"application/vnd.google-apps.document": {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	"application/vnd.google-apps.spreadsheet": {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
	"application/vnd.google-apps.drawing": {
		MimeType:  "image/png",
		Extension: ".png",
	},
}

// IsNativeMimeType returns true if the MIME type is a Google Workspace native type.
func IsNativeMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, NativeMimeTypePrefix)
}

// LookupExportFormat returns the export format of a native MIME type.
// Native types without a format (forms, sites, shortcuts...) report false.
func LookupExportFormat(nativeMimeType string) (ExportFormat, bool) {
	f, ok := exportFormats[nativeMimeType]
	return f, ok
}

// TargetName appends the export extension to name unless name already ends with it.
func TargetName(name string, format ExportFormat) string {
	if strings.HasSuffix(strings.ToLower(name), format.Extension) {
		return name
	}
	return name + format.Extension
}

var leafReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_")

// localName turns a remote name into a single path element.
// Names the LocalSink reserves for itself get a "_" prefix.
func localName(name string) string {
	leaf := leafReplacer.Replace(name)
	switch leaf {
	case "", ".", "..", lockFileName:
		return "_" + leaf
	}
	return leaf
}
