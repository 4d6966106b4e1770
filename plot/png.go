package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// Colors defining the gradient of the trace. The higher the index, the warmer.
	colors = []color.RGBA{
		{0, 0, 0, 255},     // black
		{0, 0, 255, 255},   // blue
		{0, 160, 160, 255}, // teal
		{0, 160, 0, 255},   // green
		{200, 160, 0, 255}, // amber
		{255, 0, 0, 255},   // red
	}

	gridColor           = color.RGBA{0, 0, 0, 255}       // black
	gridBackgroundColor = color.RGBA{255, 255, 255, 255} // white
)

const (
	gridMarginTop    = 24 // pixels
	gridMarginBottom = 30 // pixels
	gridMarginLeft   = 70 // pixels
	gridMarginRight  = 16 // pixels
	gridTickLen      = 6  // pixels
	gridMinStepX     = 80 // pixels
	gridMinStepY     = 40 // pixels
)

// PNG renders to an image file. The encoding follows the file suffix,
// .jpg selects JPEG and anything else PNG.
type PNG struct {
	Path string
}

func (p *PNG) Plot(values []float64, cfg Config) error {
	canvas := Render(values, cfg)
	f, err := os.Create(p.Path)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", p.Path, err)
	}
	if err := Encode(f, canvas, p.Path); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes img as JPEG when name ends in .jpg, PNG otherwise.
func Encode(w io.Writer, img image.Image, name string) error {
	if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
	}
	return png.Encode(w, img)
}

// GetColor maps a level in [0, 1] onto the trace gradient.
func GetColor(lvl float64) color.RGBA {
	if math.IsNaN(lvl) || lvl <= 0 {
		return colors[0]
	}
	if lvl >= 1 {
		return colors[len(colors)-1]
	}
	pos := lvl * float64(len(colors)-1)
	i := int(pos)
	fract := pos - float64(i)
	a, b := colors[i], colors[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*fract)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

// Render draws values as a connected trace with labelled axes.
func Render(values []float64, cfg Config) *image.RGBA {
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	canvas := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{gridBackgroundColor}, image.Point{}, draw.Src)

	area := image.Rect(gridMarginLeft, gridMarginTop, cfg.Width-gridMarginRight, cfg.Height-gridMarginBottom)
	drawLabel(canvas, image.Point{area.Min.X, gridMarginTop - 8}, cfg.Title)

	xMin, xMax := cfg.XMin, cfg.XMax
	if xMax <= xMin {
		xMin, xMax = 0, float64(max(1, len(values)))
	}
	toX := func(x float64) int {
		return area.Min.X + int(math.Round((x-xMin)/(xMax-xMin)*float64(area.Dx()-1)))
	}

	lo, hi, ok := yRange(values, cfg)
	drawFrame(canvas, area)
	drawXTicks(canvas, area, xMin, xMax)
	if !ok {
		drawLabel(canvas, image.Point{area.Min.X + 10, area.Min.Y + 20}, "no displayable values")
		return canvas
	}
	toY := func(v float64) (int, float64) {
		if cfg.LogY {
			v = math.Log10(v)
		}
		lvl := (v - lo) / (hi - lo)
		lvl = math.Max(0, math.Min(1, lvl))
		return area.Max.Y - 1 - int(math.Round(lvl*float64(area.Dy()-1))), lvl
	}
	drawYTicks(canvas, area, lo, hi, cfg.LogY)

	prev, havePrev := image.Point{}, false
	for i, v := range values {
		if !visible(v, cfg) || float64(i) < xMin || float64(i) > xMax {
			havePrev = false
			continue
		}
		y, lvl := toY(v)
		pt := image.Point{toX(float64(i)), y}
		c := GetColor(lvl)
		if havePrev {
			drawLine(canvas, prev, pt, c)
		} else {
			canvas.SetRGBA(pt.X, pt.Y, c)
		}
		prev, havePrev = pt, true
	}
	return canvas
}

func drawLabel(canvas *image.RGBA, at image.Point, text string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(gridColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

func drawTick(canvas *image.RGBA, start image.Point, length int, horizontal bool) {
	for i := 0; i <= length; i++ {
		if horizontal {
			canvas.SetRGBA(start.X+i, start.Y, gridColor)
		} else {
			canvas.SetRGBA(start.X, start.Y+i, gridColor)
		}
	}
}

func drawFrame(canvas *image.RGBA, area image.Rectangle) {
	drawTick(canvas, image.Point{area.Min.X, area.Max.Y}, area.Dx(), true)
	drawTick(canvas, image.Point{area.Min.X - 1, area.Min.Y}, area.Dy(), false)
}

// findGridStepSize halves the pixel span until it would drop below the
// minimum tick distance.
func findGridStepSize(span int, horizontal bool) int {
	gridMinStep := gridMinStepY
	if horizontal {
		gridMinStep = gridMinStepX
	}
	step := span
	for step > gridMinStep {
		n := step / 2
		if n < gridMinStep {
			return step
		}
		step = n
	}
	return max(step, 1)
}

func drawXTicks(canvas *image.RGBA, area image.Rectangle, xMin, xMax float64) {
	step := findGridStepSize(area.Dx(), true)
	for px := 0; px < area.Dx(); px += step {
		drawTick(canvas, image.Point{area.Min.X + px, area.Max.Y}, gridTickLen, false)
		x := xMin + float64(px)/float64(area.Dx()-1)*(xMax-xMin)
		drawLabel(canvas, image.Point{area.Min.X + px - 3, area.Max.Y + gridTickLen + 13}, strconv.Itoa(int(math.Round(x))))
	}
}

func drawYTicks(canvas *image.RGBA, area image.Rectangle, lo, hi float64, logY bool) {
	step := findGridStepSize(area.Dy(), false)
	for px := 0; px < area.Dy(); px += step {
		y := area.Max.Y - 1 - px
		drawTick(canvas, image.Point{area.Min.X - 1 - gridTickLen, y}, gridTickLen, true)
		v := lo + float64(px)/float64(area.Dy()-1)*(hi-lo)
		if logY {
			v = math.Pow(10, v)
		}
		drawLabel(canvas, image.Point{4, y + 4}, strconv.FormatFloat(v, 'g', 4, 64))
	}
}

// drawLine draws a straight segment with Bresenham's algorithm.
func drawLine(canvas *image.RGBA, a, b image.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		canvas.SetRGBA(a.X, a.Y, c)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
