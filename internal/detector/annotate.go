package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/mpromonet/gin-spotdetect/internal/postproc"
)

var (
	boxColor  = color.RGBA{16, 185, 129, 0}
	textColor = color.RGBA{255, 255, 255, 0}
)

func annotate(img *gocv.Mat, items []postproc.Item) {
	thickness := 2
	if img.Cols() > 1280 {
		thickness = 4
	}
	for _, item := range items {
		gocv.Rectangle(img, item.Box, boxColor, thickness)
		label := fmt.Sprintf("%s %.2f", item.ClassName, item.Score)
		y := item.Box.Min.Y - 5
		if y < 12 {
			y = item.Box.Min.Y + 15
		}
		gocv.PutText(img, label, image.Pt(item.Box.Min.X, y), gocv.FontHersheySimplex, 0.5, textColor, 1)
	}
	gocv.PutText(img, fmt.Sprintf("%d spots", len(items)), image.Pt(10, 25), gocv.FontHersheySimplex, 0.8, boxColor, 2)
}
