package detector

import (
	"context"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/postproc"
)

// Invoker runs a model on a single BGR image.
type Invoker interface {
	Invoke(img gocv.Mat) ([]postproc.Tensor, error)
}

type job struct {
	img gocv.Mat
	out chan jobResult
}

type jobResult struct {
	items []postproc.Item
	err   error
}

// Detector feeds images to the model from a single worker goroutine.
type Detector struct {
	model   Invoker
	post    postproc.PostProcessing
	labels  []string
	scoreTh float32
	nmsTh   float32
	stride  int

	in chan job
}

func New(model Invoker, post postproc.PostProcessing, labels []string, cfg config.ModelConfig) *Detector {
	stride := cfg.FrameStride
	if stride < 1 {
		stride = 1
	}
	return &Detector{
		model:   model,
		post:    post,
		labels:  labels,
		scoreTh: cfg.ScoreThreshold,
		nmsTh:   cfg.NMSThreshold,
		stride:  stride,
		in:      make(chan job),
	}
}

// Run serves detection requests until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	lgr.Logger.Info("detector worker starting", slog.String("openCV", gocv.Version()))
	for {
		select {
		case <-ctx.Done():
			lgr.Logger.Info("detector worker context cancelled")
			return
		case j := <-d.in:
			items, err := d.process(j.img)
			j.img.Close()
			j.out <- jobResult{items, err}
		}
	}
}

func (d *Detector) process(img gocv.Mat) ([]postproc.Item, error) {
	start := time.Now()
	outputs, err := d.model.Invoke(img)
	if err != nil {
		return nil, err
	}

	bboxes, confidences, classes := d.post.ExtractResult(outputs, d.scoreTh, float32(img.Cols()), float32(img.Rows()))
	var keep []int
	if len(bboxes) > 0 {
		keep = gocv.NMSBoxes(bboxes, confidences, d.scoreTh, d.nmsTh)
	}
	items := postproc.Filter(bboxes, confidences, classes, keep, d.labels)

	lgr.Logger.Debug("inference",
		slog.Int("candidates", len(bboxes)),
		slog.Int("kept", len(items)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return items, nil
}

// detect hands a copy of img to the worker so the caller keeps ownership of
// img even when ctx expires mid inference.
func (d *Detector) detect(ctx context.Context, img gocv.Mat) ([]postproc.Item, error) {
	j := job{img: img.Clone(), out: make(chan jobResult, 1)}
	select {
	case d.in <- j:
	case <-ctx.Done():
		j.img.Close()
		return nil, ctx.Err()
	}

	select {
	case r := <-j.out:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DetectImage decodes an uploaded picture, counts spots and returns the
// picture annotated as JPEG.
func (d *Detector) DetectImage(ctx context.Context, data []byte) (*domain.DetectionResult, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, &domain.ProcessingError{Kind: domain.MediaImage, Op: "decode", Err: err}
	}
	defer img.Close()
	if img.Empty() {
		return nil, &domain.ProcessingError{Kind: domain.MediaImage, Op: "decode", Err: xerrors.New("not a readable image")}
	}

	items, err := d.detect(ctx, img)
	if err != nil {
		return nil, &domain.ProcessingError{Kind: domain.MediaImage, Op: "detect", Err: err}
	}

	annotate(&img, items)
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, &domain.ProcessingError{Kind: domain.MediaImage, Op: "encode", Err: err}
	}
	defer buf.Close()
	annotated := make([]byte, buf.Len())
	copy(annotated, buf.GetBytes())

	return &domain.DetectionResult{
		Kind:      domain.MediaImage,
		Items:     items,
		Count:     len(items),
		Annotated: annotated,
	}, nil
}

// DetectVideo runs the model on every stride-th frame of src and writes all
// frames, annotated with the latest boxes, to dst. The count is the highest
// number of spots seen in a sampled frame.
func (d *Detector) DetectVideo(ctx context.Context, src string, dst string) (*domain.DetectionResult, error) {
	video, err := gocv.VideoCaptureFile(src)
	if err != nil {
		return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "open", Err: err}
	}
	defer video.Close()

	fps := video.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 25
	}
	size := image.Pt(int(video.Get(gocv.VideoCaptureFrameWidth)), int(video.Get(gocv.VideoCaptureFrameHeight)))
	if size.X <= 0 || size.Y <= 0 {
		return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "read", Err: xerrors.Errorf("%s has no frames", src)}
	}

	writer, err := gocv.VideoWriterFile(dst, fourcc(dst), fps, size.X, size.Y, true)
	if err != nil {
		return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "create output", Err: err}
	}
	defer writer.Close()
	if !writer.IsOpened() {
		return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "create output", Err: xerrors.Errorf("no %s encoder for %s", fourcc(dst), dst)}
	}

	result := &domain.DetectionResult{Kind: domain.MediaVideo, Items: []postproc.Item{}}
	frame := gocv.NewMat()
	defer frame.Close()

	var latest []postproc.Item
	for video.Read(&frame) {
		if frame.Empty() {
			continue
		}
		if result.Frames%d.stride == 0 {
			items, err := d.detect(ctx, frame)
			if err != nil {
				return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "detect", Err: xerrors.Errorf("frame %d: %w", result.Frames, err)}
			}
			latest = items
			result.Sampled++
			if len(items) > result.Count {
				result.Count = len(items)
				result.Items = items
			}
		}
		annotate(&frame, latest)
		if err := writer.Write(frame); err != nil {
			return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "write", Err: xerrors.Errorf("frame %d: %w", result.Frames, err)}
		}
		result.Frames++
	}

	if result.Frames == 0 {
		return nil, &domain.ProcessingError{Kind: domain.MediaVideo, Op: "read", Err: xerrors.Errorf("%s has no frames", src)}
	}
	lgr.Logger.Info("video processed",
		slog.String("src", src),
		slog.Int("frames", result.Frames),
		slog.Int("sampled", result.Sampled),
		slog.Int("spots", result.Count),
	)
	return result, nil
}

// fourcc picks the output codec from the destination extension.
func fourcc(dst string) string {
	if strings.EqualFold(filepath.Ext(dst), ".avi") {
		return "MJPG"
	}
	return "avc1"
}
