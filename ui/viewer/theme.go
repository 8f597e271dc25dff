package viewer

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// MarkerTheme tints the default theme with the marker colors.
type MarkerTheme struct{}

var _ fyne.Theme = (*MarkerTheme)(nil)

func (t *MarkerTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary:
		return color.NRGBA{R: 0xC6, G: 0x28, B: 0x28, A: 0xFF} // Marker red
	case theme.ColorNameSuccess:
		return color.NRGBA{R: 0x2E, G: 0x7D, B: 0x32, A: 0xFF} // Marker green
	case theme.ColorNameSelection:
		return color.NRGBA{R: 0x2E, G: 0x7D, B: 0x32, A: 0x60}
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (t *MarkerTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *MarkerTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *MarkerTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameText {
		return 15
	}
	return theme.DefaultTheme().Size(name)
}
