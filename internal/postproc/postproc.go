/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

// Package postproc turns raw detection model outputs into labelled boxes.
package postproc

import (
	"fmt"
	"image"
)

// Tensor is a dequantized copy of one model output.
type Tensor struct {
	Shape []int
	Data  []float32
}

func (t Tensor) NumDims() int { return len(t.Shape) }

func (t Tensor) Dim(i int) int { return t.Shape[i] }

// Item is one detection kept after non maximum suppression.
type Item struct {
	Box       image.Rectangle `json:"box"`
	Score     float32         `json:"score"`
	ClassID   int             `json:"class_id"`
	ClassName string          `json:"class_name"`
}

type PostProcessing interface {
	ExtractResult(outputs []Tensor, scoreTh float32, width float32, height float32) ([]image.Rectangle, []float32, []int)
}

// ForName returns the decoder matching the model family.
func ForName(name string) (PostProcessing, error) {
	switch name {
	case "yolo":
		return YoloPostProcessing{}, nil
	case "ssd":
		return SsdPostProcessing{}, nil
	}
	return nil, fmt.Errorf("unknown post processing %q", name)
}

func argmax(f []float32) (int, float32) {
	r, m := 0, f[0]
	for i, v := range f {
		if v > m {
			m = v
			r = i
		}
	}
	return r, m
}

// Filter resolves class names for the boxes kept by NMS.
func Filter(bboxes []image.Rectangle, confidences []float32, classes []int, keep []int, labels []string) []Item {
	items := []Item{}
	for _, idx := range keep {
		if idx < 0 || idx >= len(bboxes) {
			continue
		}
		classID := classes[idx]
		items = append(items, Item{
			ClassID:   classID,
			ClassName: Label(labels, classID),
			Score:     confidences[idx],
			Box:       bboxes[idx],
		})
	}
	return items
}
