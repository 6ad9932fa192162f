package schema

import "strings"

const (
	// ThemeDark is the dark editor theme.
	ThemeDark ThemeName = "dark"
	// ThemeLight is the light editor theme.
	ThemeLight ThemeName = "light"
)

// DefaultTheme is the theme a new session starts with.
const DefaultTheme = ThemeDark

var themeNames = []ThemeName{
	ThemeDark,
	ThemeLight,
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, len(themeNames))
	copy(out, themeNames)
	return out
}

// NormalizeThemeName returns a canonical theme name if supported.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "dark", "vs-dark":
		return ThemeDark, true
	case "light", "vs-light", "vs":
		return ThemeLight, true
	default:
		return "", false
	}
}

// Toggle returns the other theme. Unknown values toggle to light.
func (t ThemeName) Toggle() ThemeName {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// EditorTheme returns the name the editor widget uses for the theme.
func (t ThemeName) EditorTheme() string {
	if t == ThemeLight {
		return "light"
	}
	return "vs-dark"
}
