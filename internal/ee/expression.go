package ee

import "encoding/json"

// Expression is a node in a serverside computation graph. Nothing is
// evaluated locally; the tree is marshaled to JSON and submitted to the
// computation service, which returns scalars or thumbnail URLs.
type Expression struct {
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Inputs []*Expression  `json:"inputs,omitempty"`
}

// Image references a catalog image by id, selecting a single band.
func Image(id, band string) *Expression {
	return &Expression{
		Op:   "image",
		Args: map[string]any{"id": id, "band": band},
	}
}

// Constant wraps a scalar for use as an operand.
func Constant(v float64) *Expression {
	return &Expression{Op: "constant", Args: map[string]any{"value": v}}
}

// FocalMedian applies a square focal-median filter, the standard
// speckle-noise reduction for SAR intensity imagery.
func (e *Expression) FocalMedian(radiusPx int) *Expression {
	return &Expression{
		Op:     "focalMedian",
		Args:   map[string]any{"radius": radiusPx, "kernelType": "square", "units": "pixels"},
		Inputs: []*Expression{e},
	}
}

// Clip restricts the image to a GeoJSON geometry.
func (e *Expression) Clip(geometry json.RawMessage) *Expression {
	return &Expression{
		Op:     "clip",
		Args:   map[string]any{"geometry": geometry},
		Inputs: []*Expression{e},
	}
}

// AddConstant adds a scalar to every pixel.
func (e *Expression) AddConstant(v float64) *Expression {
	return &Expression{Op: "add", Inputs: []*Expression{e, Constant(v)}}
}

// Divide divides pixelwise by another image.
func (e *Expression) Divide(other *Expression) *Expression {
	return &Expression{Op: "divide", Inputs: []*Expression{e, other}}
}

// Log10 takes the base-10 logarithm of every pixel.
func (e *Expression) Log10() *Expression {
	return &Expression{Op: "log10", Inputs: []*Expression{e}}
}

// MultiplyConstant scales every pixel by a constant.
func (e *Expression) MultiplyConstant(v float64) *Expression {
	return &Expression{Op: "multiply", Inputs: []*Expression{e, Constant(v)}}
}

// Abs takes the absolute value of every pixel.
func (e *Expression) Abs() *Expression {
	return &Expression{Op: "abs", Inputs: []*Expression{e}}
}

// Gt produces a binary mask of pixels greater than the threshold.
func (e *Expression) Gt(v float64) *Expression {
	return &Expression{Op: "gt", Inputs: []*Expression{e, Constant(v)}}
}

// Lt produces a binary mask of pixels less than the threshold.
func (e *Expression) Lt(v float64) *Expression {
	return &Expression{Op: "lt", Inputs: []*Expression{e, Constant(v)}}
}

// RGB composes three single-band images into an RGB visualization.
func RGB(r, g, b *Expression) *Expression {
	return &Expression{Op: "rgb", Inputs: []*Expression{r, g, b}}
}

// ReduceRegion aggregates pixels within a geometry into named scalars.
// Reducers are applied with shared inputs, so the result keys are
// "<band>_<reducer>" (e.g. "VV_sum", "VV_mean").
func (e *Expression) ReduceRegion(reducers []string, geometry json.RawMessage, scaleMeters int, maxPixels float64) *Expression {
	return &Expression{
		Op: "reduceRegion",
		Args: map[string]any{
			"reducers":  reducers,
			"geometry":  geometry,
			"scale":     scaleMeters,
			"maxPixels": maxPixels,
		},
		Inputs: []*Expression{e},
	}
}
