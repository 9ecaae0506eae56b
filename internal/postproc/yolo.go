/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package postproc

import (
	"image"
	"math"
)

// YoloPostProcessing decodes YOLO heads. Three layouts are understood:
//   - [1, N, 5+C]  rows of cx, cy, w, h, objectness, class scores (v5)
//   - [1, 4+C, N]  columns of cx, cy, w, h, class scores (v8 export)
//   - [1, H, W, 5+C] grid cells relative to the cell origin
//
// Coordinates are normalized to the model input.
type YoloPostProcessing struct{}

func (p YoloPostProcessing) ExtractResult(outputs []Tensor, scoreTh float32, width float32, height float32) ([]image.Rectangle, []float32, []int) {
	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}
	for _, output := range outputs {
		bboxes_, confidences_, classes_ := p.extractBoxesTensor(output, scoreTh, width, height)
		bboxes = append(bboxes, bboxes_...)
		confidences = append(confidences, confidences_...)
		classes = append(classes, classes_...)
	}
	return bboxes, confidences, classes
}

func centerBox(cx, cy, w, h float32) image.Rectangle {
	return image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))
}

func (y YoloPostProcessing) extractBoxesTensor(output Tensor, scoreTh float32, width float32, height float32) ([]image.Rectangle, []float32, []int) {
	loc := output.Data

	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}
	if len(loc) == 0 {
		return bboxes, confidences, classes
	}

	switch output.NumDims() {
	case 3:
		if output.Dim(1) < output.Dim(2) {
			// attributes first, no objectness
			attrs, n := output.Dim(1), output.Dim(2)
			if attrs < 5 || len(loc) < attrs*n {
				break
			}
			scores := make([]float32, attrs-4)
			for i := 0; i < n; i++ {
				for c := range scores {
					scores[c] = loc[(4+c)*n+i]
				}
				classId, score := argmax(scores)
				if score < scoreTh {
					continue
				}
				bboxes = append(bboxes, centerBox(loc[i]*width, loc[n+i]*height, loc[2*n+i]*width, loc[3*n+i]*height))
				confidences = append(confidences, score)
				classes = append(classes, classId)
			}
			break
		}

		stride := output.Dim(2)
		if stride < 5 {
			break
		}
		for idx := 0; idx+stride <= len(loc); idx += stride {
			obj := loc[idx+4]
			if obj < scoreTh {
				continue
			}
			classId, score := 0, obj
			if stride > 5 {
				var cls float32
				classId, cls = argmax(loc[idx+5 : idx+stride])
				score = obj * cls
			}
			if score < scoreTh {
				continue
			}
			bboxes = append(bboxes, centerBox(loc[idx+0]*width, loc[idx+1]*height, loc[idx+2]*width, loc[idx+3]*height))
			confidences = append(confidences, score)
			classes = append(classes, classId)
		}

	case 4:
		stride := output.Dim(3)
		if stride < 5 {
			break
		}
		sx := width / float32(output.Dim(2))
		sy := height / float32(output.Dim(1))
		for i := 0; i < output.Dim(1); i++ {
			for j := 0; j < output.Dim(2); j++ {
				idx := (i*output.Dim(2) + j) * stride
				if idx+stride > len(loc) || loc[idx+4] < scoreTh {
					continue
				}
				dx := float32(10.0)
				dy := float32(13.0)
				x := sx*float32(j) + sx*loc[idx+0]
				y := sy*float32(i) + sy*loc[idx+1]
				w := sx * float32(math.Log(float64(dx*float32(math.Exp(float64(loc[idx+2]))))))
				h := sy * float32(math.Log(float64(dy*float32(math.Exp(float64(loc[idx+3]))))))
				classId, score := 0, loc[idx+4]
				if stride > 5 {
					classId, score = argmax(loc[idx+5 : idx+stride])
				}
				bboxes = append(bboxes, centerBox(x, y, w, h))
				confidences = append(confidences, score)
				classes = append(classes, classId)
			}
		}
	}

	return bboxes, confidences, classes
}
