package render

import (
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// Colors are the fixed series colours per phenotype.
var Colors = map[types.Category]string{
	types.VRSA:  "#8B0000",
	types.MRSA:  "#FF8C00",
	types.Other: "#00008B",
	types.Wild:  "#006400",
}

func categoryColor(c types.Category) drawing.Color {
	hex, ok := Colors[c]
	if !ok {
		return drawing.ColorBlack
	}
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}
