package layout

import (
	"fmt"
	"math"
	"strconv"

	"github.com/thebtf/orion/pkg/geometry"
	"github.com/thebtf/orion/pkg/models"
)

// Palette is the base cluster color cycle. Indices past its end get
// golden-angle HSL hues.
var Palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FECA57",
	"#FF9FF3", "#54A0FF", "#5F27CD", "#00D2D3", "#FF9F43",
	"#EE5A24", "#009432", "#0652DD", "#9980FA", "#FDA7DF",
	"#D63031", "#74B9FF", "#A29BFE", "#6C5CE7", "#FD79A8",
}

// TypeColors colors force nodes by type.
var TypeColors = map[models.ForceType]string{
	models.ForceTypeMegatrend:  "#ff2d92",
	models.ForceTypeTrend:      "#007aff",
	models.ForceTypeWeakSignal: "#00c896",
	models.ForceTypeWildcard:   "#ff6b35",
	models.ForceTypeSignal:     "#8e8e93",
}

const fallbackTypeColor = "#666666"

// ColorFor returns the color of palette slot index at the given opacity.
func ColorFor(index int, alpha float64) string {
	a := formatAlpha(alpha)
	if index >= 0 && index < len(Palette) {
		r, g, b, ok := parseHex(Palette[index])
		if ok {
			return fmt.Sprintf("rgba(%d,%d,%d,%s)", r, g, b, a)
		}
	}
	hue := math.Mod(float64(index)*geometry.GoldenAngleDegrees, 360)
	return fmt.Sprintf("hsla(%s,70%%,50%%,%s)", strconv.FormatFloat(geometry.Round(hue, 3), 'f', -1, 64), a)
}

// QualityAlpha maps a silhouette score in [-1, 1] to an opacity in [0.4, 1].
func QualityAlpha(silhouette float64) float64 {
	q := (silhouette + 1) / 2
	q = math.Max(0, math.Min(1, q))
	return 0.4 + 0.6*q
}

// TypeColor returns the hex color of a force type.
func TypeColor(t models.ForceType) string {
	if c, ok := TypeColors[t]; ok {
		return c
	}
	return fallbackTypeColor
}

func formatAlpha(alpha float64) string {
	alpha = math.Max(0, math.Min(1, alpha))
	return strconv.FormatFloat(geometry.Round(alpha, 3), 'f', -1, 64)
}

func parseHex(hex string) (r, g, b int, ok bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
