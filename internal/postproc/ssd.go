/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package postproc

import (
	"image"
)

// SsdPostProcessing decodes the TFLite detection postprocess op: boxes as
// normalized ymin, xmin, ymax, xmax, then classes, scores and the valid count.
type SsdPostProcessing struct{}

func (p SsdPostProcessing) ExtractResult(outputs []Tensor, scoreTh float32, width float32, height float32) ([]image.Rectangle, []float32, []int) {
	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}

	if len(outputs) < 3 {
		return bboxes, confidences, classes
	}

	l := outputs[0].Data
	c := outputs[1].Data
	s := outputs[2].Data
	n := len(s)
	if len(outputs) > 3 && len(outputs[3].Data) > 0 && int(outputs[3].Data[0]) < n {
		n = int(outputs[3].Data[0])
	}
	for idx := 0; idx < n && 4*idx+3 < len(l) && idx < len(c); idx++ {
		if s[idx] < scoreTh {
			continue
		}
		bboxes = append(bboxes, image.Rect(
			int(l[4*idx+1]*width), int(l[4*idx]*height),
			int(l[4*idx+3]*width), int(l[4*idx+2]*height)))
		confidences = append(confidences, s[idx])
		classes = append(classes, int(c[idx]))
	}

	return bboxes, confidences, classes
}
