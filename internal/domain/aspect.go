package domain

// AspectRatio is the prompt suffix understood by the generation service.
type AspectRatio string

const (
	AspectSquare             AspectRatio = "--ar 1:1"
	AspectLandscapeClassic   AspectRatio = "--ar 3:2"
	AspectLandscapeWide      AspectRatio = "--ar 16:9"
	AspectLandscapeUltrawide AspectRatio = "--ar 21:9"
	AspectPortraitClassic    AspectRatio = "--ar 2:3"
	AspectPortraitVertical   AspectRatio = "--ar 9:16"
)

// DefaultAspectRatio is used when the caller does not pick one.
const DefaultAspectRatio = AspectSquare

// AspectRatioOption describes one selectable ratio.
type AspectRatioOption struct {
	Name  string
	Value AspectRatio
	Label string
}

// AspectRatioOptions lists the supported ratios in display order.
var AspectRatioOptions = []AspectRatioOption{
	{Name: "square", Value: AspectSquare, Label: "Square (default)"},
	{Name: "landscape", Value: AspectLandscapeClassic, Label: "Landscape (classic photo)"},
	{Name: "widescreen", Value: AspectLandscapeWide, Label: "Landscape (widescreen)"},
	{Name: "ultrawide", Value: AspectLandscapeUltrawide, Label: "Landscape (ultrawide)"},
	{Name: "portrait", Value: AspectPortraitClassic, Label: "Portrait (classic photo)"},
	{Name: "vertical", Value: AspectPortraitVertical, Label: "Portrait (vertical)"},
}

// Valid reports whether a is one of the supported ratios.
func (a AspectRatio) Valid() bool {
	for _, opt := range AspectRatioOptions {
		if opt.Value == a {
			return true
		}
	}
	return false
}

// Ratio returns the bare "W:H" part.
func (a AspectRatio) Ratio() string {
	const prefix = "--ar "
	s := string(a)
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
