package config

import "testing"

func TestFromEnvDefaultsToLocalMode(t *testing.T) {
	t.Setenv("ICON_PATH_MODE", "")
	t.Setenv("SHARED_ICONS_DIR", "")
	cfg := FromEnv()
	if cfg.IconPathMode != IconPathLocal {
		t.Errorf("expected local mode by default, got %q", cfg.IconPathMode)
	}
}

func TestFromEnvInvalidModeFallsBackToLocal(t *testing.T) {
	t.Setenv("ICON_PATH_MODE", "bogus")
	cfg := FromEnv()
	if cfg.IconPathMode != IconPathLocal {
		t.Errorf("expected fallback to local for invalid mode, got %q", cfg.IconPathMode)
	}
}

func TestFromEnvSharedMode(t *testing.T) {
	t.Setenv("ICON_PATH_MODE", "SHARED")
	t.Setenv("SHARED_ICONS_DIR", "/tmp/icons")
	cfg := FromEnv()
	if cfg.IconPathMode != IconPathShared {
		t.Errorf("expected shared mode, got %q", cfg.IconPathMode)
	}
	if cfg.SharedIconsDir != "/tmp/icons" {
		t.Errorf("unexpected shared icons dir: %q", cfg.SharedIconsDir)
	}
}

func TestFromEnvPassesThroughOptionalLinkBases(t *testing.T) {
	t.Setenv("NOTES_REDIRECT_BASE", "https://notes.example.com/redirect")
	t.Setenv("BOX_SEARCH_BASE", "https://search.example.com")
	t.Setenv("FONT_PATH", "/usr/share/fonts/custom.ttf")
	cfg := FromEnv()
	if cfg.NotesRedirectBase != "https://notes.example.com/redirect" {
		t.Errorf("unexpected NotesRedirectBase: %q", cfg.NotesRedirectBase)
	}
	if cfg.BoxSearchBase != "https://search.example.com" {
		t.Errorf("unexpected BoxSearchBase: %q", cfg.BoxSearchBase)
	}
	if cfg.FontPath != "/usr/share/fonts/custom.ttf" {
		t.Errorf("unexpected FontPath: %q", cfg.FontPath)
	}
}
