package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"audit-service/internal/domain/audit"
)

var boxColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}

const boxThickness = 2

// Annotate draws bounding boxes and "label NN%" captions for every
// detection onto a copy of the JPEG frame.
func Annotate(frame []byte, detections []audit.Detection) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, d := range detections {
		rect := boxRect(d.Box, bounds)
		drawRect(canvas, rect)
		drawCaption(canvas, rect, fmt.Sprintf("%s %d%%", d.Label, int(d.Confidence*100)))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}

// boxRect converts a center-based box to an image rectangle clipped to the
// frame bounds.
func boxRect(box audit.BoundingBox, bounds image.Rectangle) image.Rectangle {
	x1 := int(box.X - box.Width/2)
	y1 := int(box.Y - box.Height/2)
	x2 := int(box.X + box.Width/2)
	y2 := int(box.Y + box.Height/2)
	return image.Rect(x1, y1, x2, y2).Intersect(bounds)
}

func drawRect(canvas *image.RGBA, rect image.Rectangle) {
	for t := 0; t < boxThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			canvas.Set(x, rect.Min.Y+t, boxColor)
			canvas.Set(x, rect.Max.Y-1-t, boxColor)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			canvas.Set(rect.Min.X+t, y, boxColor)
			canvas.Set(rect.Max.X-1-t, y, boxColor)
		}
	}
}

func drawCaption(canvas *image.RGBA, rect image.Rectangle, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4

	bgTop := rect.Min.Y - face.Height - 4
	if bgTop < canvas.Bounds().Min.Y {
		bgTop = rect.Min.Y
	}
	bg := image.Rect(rect.Min.X, bgTop, rect.Min.X+width, bgTop+face.Height+4)
	bg = bg.Intersect(canvas.Bounds())
	draw.Draw(canvas, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(bg.Min.X + 2),
			Y: fixed.I(bg.Min.Y + face.Ascent + 2),
		},
	}
	drawer.DrawString(text)
}
