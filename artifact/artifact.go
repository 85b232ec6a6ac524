package artifact

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind ...
type Kind string

const (
	// APK is an installable Android package.
	APK Kind = "apk"
	// AAB is an Android App Bundle, not installable as is.
	AAB Kind = "aab"
	// IPA is an iOS app archive.
	IPA Kind = "ipa"
	// Other is every other file.
	Other Kind = ""
)

var lower = cases.Lower(language.Und)

// Extension returns the extension of pth without the leading dot, as written.
func Extension(pth string) string {
	return strings.TrimPrefix(filepath.Ext(pth), ".")
}

// KindOf ...
func KindOf(pth string) Kind {
	switch Kind(lower.String(Extension(pth))) {
	case APK:
		return APK
	case AAB:
		return AAB
	case IPA:
		return IPA
	default:
		return Other
	}
}

// Title composes the title a file is shared under.
// An empty name falls back to the file's base name. The original extension is
// appended to name unless name already carries it.
func Title(pth, name string) string {
	if name == "" {
		return filepath.Base(pth)
	}

	ext := Extension(pth)
	if ext == "" {
		return name
	}
	if strings.HasSuffix(lower.String(name), "."+lower.String(ext)) {
		return name
	}
	return name + "." + ext
}
