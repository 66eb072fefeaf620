package board

// FontPreset is one of the fixed font choices a note can use.
type FontPreset struct {
	Label         string `json:"label"`
	FontClassName string `json:"fontClassName"`
}

// FontPresets lists the available fonts in display order. The first entry is
// the default for new notes.
var FontPresets = []FontPreset{
	{Label: "IBM Plex Sans", FontClassName: "font-ibm-plex-sans"},
	{Label: "IBM Plex Mono", FontClassName: "font-ibm-plex-mono"},
	{Label: "Roboto", FontClassName: "font-roboto"},
	{Label: "Roboto Mono", FontClassName: "font-roboto-mono"},
	{Label: "Open Sans", FontClassName: "font-open-sans"},
	{Label: "PT Serif", FontClassName: "font-pt-serif"},
	{Label: "Pacifico", FontClassName: "font-pacifico"},
	{Label: "Caveat", FontClassName: "font-caveat"},
}

// DefaultFontClassName is the font assigned to new notes.
var DefaultFontClassName = FontPresets[0].FontClassName

// LabelForFont returns the display label of a font class name.
func LabelForFont(className string) (string, bool) {
	for _, f := range FontPresets {
		if f.FontClassName == className {
			return f.Label, true
		}
	}
	return "", false
}

// FontForLabel returns the class name of the preset with the given label.
func FontForLabel(label string) (string, bool) {
	for _, f := range FontPresets {
		if f.Label == label {
			return f.FontClassName, true
		}
	}
	return "", false
}

// IsKnownFont reports whether className names one of the presets.
func IsKnownFont(className string) bool {
	_, ok := LabelForFont(className)
	return ok
}
