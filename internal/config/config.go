// Package config loads the small set of environment variables that
// customize attachment/icon placement and renderer link rewriting into
// a typed Config struct passed explicitly through the call chain rather
// than read ad hoc at each use site.
package config

import (
	"os"
	"strings"
)

// IconPathMode controls whether an attachment's icon_path is written
// relative to the attachment directory or to a shared icons root.
type IconPathMode string

const (
	IconPathLocal  IconPathMode = "local"
	IconPathShared IconPathMode = "shared"
)

// Config is the environment-derived configuration consumed by
// core/attach and core/render.
type Config struct {
	// SharedIconsDir, if set, is the physical directory icon bytes are
	// written under instead of "<attach_dir>/icons".
	SharedIconsDir string
	// IconPathMode controls the relative path written into icon_path.
	IconPathMode IconPathMode
	// NotesRedirectBase, if set, prefixes rewritten internal document
	// links in renderers.
	NotesRedirectBase string
	// BoxSearchBase, if set, prefixes an auxiliary external-search link
	// emitted alongside an internal link.
	BoxSearchBase string
	// FontPath, if set, is loaded as a UTF-8 font by the paginated
	// renderer and used as the CJK font name by the word-processor
	// renderer. No other candidate fonts are tried: without it the
	// paginated renderer uses the Helvetica core font and the
	// word-processor renderer uses SimSun.
	FontPath string
}

// FromEnv reads SHARED_ICONS_DIR, ICON_PATH_MODE, NOTES_REDIRECT_BASE,
// BOX_SEARCH_BASE, and FONT_PATH. An invalid ICON_PATH_MODE
// falls back to "local".
func FromEnv() Config {
	mode := IconPathMode(strings.ToLower(strings.TrimSpace(os.Getenv("ICON_PATH_MODE"))))
	if mode != IconPathShared {
		mode = IconPathLocal
	}
	return Config{
		SharedIconsDir:    os.Getenv("SHARED_ICONS_DIR"),
		IconPathMode:      mode,
		NotesRedirectBase: os.Getenv("NOTES_REDIRECT_BASE"),
		BoxSearchBase:     os.Getenv("BOX_SEARCH_BASE"),
		FontPath:          os.Getenv("FONT_PATH"),
	}
}
