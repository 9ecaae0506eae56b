package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/postproc"
)

// stubModel returns canned outputs without touching a real interpreter.
type stubModel struct {
	outputs []postproc.Tensor
	err     error
	calls   int
}

func (m *stubModel) Invoke(img gocv.Mat) ([]postproc.Tensor, error) {
	m.calls++
	return m.outputs, m.err
}

// sequenceModel answers each call with the next canned output, cycling.
type sequenceModel struct {
	outputs [][]postproc.Tensor
	calls   int
}

func (m *sequenceModel) Invoke(img gocv.Mat) ([]postproc.Tensor, error) {
	out := m.outputs[m.calls%len(m.outputs)]
	m.calls++
	return out, nil
}

// gatedModel holds every inference until release is closed.
type gatedModel struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *gatedModel) Invoke(img gocv.Mat) ([]postproc.Tensor, error) {
	m.once.Do(func() { close(m.entered) })
	<-m.release
	return twoSpots(), nil
}

// yoloRows builds a YOLOv5 output padded with empty rows, so it is never
// mistaken for the transposed layout.
func yoloRows(rows ...[]float32) []postproc.Tensor {
	n := max(len(rows), 6)
	data := make([]float32, 0, n*6)
	for _, r := range rows {
		data = append(data, r...)
	}
	data = append(data, make([]float32, (n-len(rows))*6)...)
	return []postproc.Tensor{{Shape: []int{1, n, 6}, Data: data}}
}

func twoSpots() []postproc.Tensor {
	return []postproc.Tensor{{
		Shape: []int{1, 6, 6},
		Data: append([]float32{
			0.25, 0.25, 0.2, 0.2, 0.9, 1.0,
			0.75, 0.75, 0.2, 0.2, 0.8, 1.0,
		}, make([]float32, 4*6)...),
	}}
}

func testConfig() config.ModelConfig {
	cfg := config.Default().Model
	cfg.FrameStride = 1
	return cfg
}

func encodedImage(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data
}

func startDetector(t *testing.T, model Invoker) *Detector {
	t.Helper()
	d := New(model, postproc.YoloPostProcessing{}, []string{"spot"}, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d
}

func TestDetectImage(t *testing.T) {
	model := &stubModel{outputs: twoSpots()}
	d := startDetector(t, model)

	res, err := d.DetectImage(context.Background(), encodedImage(t))
	require.NoError(t, err)

	assert.Equal(t, domain.MediaImage, res.Kind)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "spot", res.Items[0].ClassName)
	assert.NotEmpty(t, res.Annotated)
	assert.Equal(t, 1, model.calls)
}

func TestDetectImageRejectsGarbage(t *testing.T) {
	d := startDetector(t, &stubModel{})

	_, err := d.DetectImage(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, domain.ErrImageProcessing)
	assert.NotErrorIs(t, err, domain.ErrVideoProcessing)
}

func TestDetectImageModelFailure(t *testing.T) {
	boom := errors.New("invoke failed")
	d := startDetector(t, &stubModel{err: boom})

	_, err := d.DetectImage(context.Background(), encodedImage(t))
	assert.ErrorIs(t, err, domain.ErrImageProcessing)
	assert.ErrorIs(t, err, boom)
}

func TestDetectHonoursContext(t *testing.T) {
	// no worker running: the request can never be picked up
	d := New(&stubModel{}, postproc.YoloPostProcessing{}, nil, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.DetectImage(ctx, encodedImage(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDetectVideoMissingFile(t *testing.T) {
	d := startDetector(t, &stubModel{})

	_, err := d.DetectVideo(context.Background(), "does-not-exist.mp4", t.TempDir()+"/out.mp4")
	assert.ErrorIs(t, err, domain.ErrVideoProcessing)
}

func TestDetectImageSuppressesOverlaps(t *testing.T) {
	model := &stubModel{outputs: yoloRows(
		[]float32{0.25, 0.25, 0.2, 0.2, 0.9, 1.0},
		[]float32{0.26, 0.26, 0.2, 0.2, 0.7, 1.0}, // same spot, lower score
		[]float32{0.75, 0.75, 0.2, 0.2, 0.8, 1.0},
	)}
	d := startDetector(t, model)

	res, err := d.DetectImage(context.Background(), encodedImage(t))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.InDelta(t, 0.9, res.Items[0].Score, 1e-6, "highest score first")
	assert.InDelta(t, 0.8, res.Items[1].Score, 1e-6)
}

func TestWorkerOutlivesCancelledRequest(t *testing.T) {
	model := &gatedModel{entered: make(chan struct{}), release: make(chan struct{})}
	d := New(model, postproc.YoloPostProcessing{}, []string{"spot"}, testConfig())

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	done := make(chan struct{})
	go func() {
		d.Run(workerCtx)
		close(done)
	}()

	data := encodedImage(t)
	reqCtx, cancelReq := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := d.DetectImage(reqCtx, data)
		errs <- err
	}()

	<-model.entered
	cancelReq()
	assert.ErrorIs(t, <-errs, context.Canceled)
	close(model.release)

	res, err := d.DetectImage(context.Background(), data)
	require.NoError(t, err, "worker still serving after the request went away")
	assert.Equal(t, 2, res.Count)

	stopWorker()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerFinishesJobInFlight(t *testing.T) {
	model := &gatedModel{entered: make(chan struct{}), release: make(chan struct{})}
	d := New(model, postproc.YoloPostProcessing{}, []string{"spot"}, testConfig())

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go d.Run(workerCtx)

	type reply struct {
		res *domain.DetectionResult
		err error
	}
	data := encodedImage(t)
	replies := make(chan reply, 1)
	go func() {
		res, err := d.DetectImage(context.Background(), data)
		replies <- reply{res, err}
	}()

	<-model.entered
	stopWorker()
	close(model.release)

	r := <-replies
	require.NoError(t, r.err)
	assert.Equal(t, 2, r.res.Count)
}

// writeVideo records frames solid frames as an MJPG avi.
func writeVideo(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.avi")
	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	require.True(t, w.IsOpened())

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 120, 200, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	for i := 0; i < frames; i++ {
		require.NoError(t, w.Write(img))
	}
	require.NoError(t, w.Close())
	return path
}

func TestDetectVideo(t *testing.T) {
	src := writeVideo(t, 5)
	model := &sequenceModel{outputs: [][]postproc.Tensor{
		yoloRows([]float32{0.25, 0.25, 0.2, 0.2, 0.9, 1.0}),
		twoSpots(),
		yoloRows([]float32{0.5, 0.5, 0.2, 0.2, 0.1, 1.0}),
	}}
	cfg := testConfig()
	cfg.FrameStride = 2
	d := New(model, postproc.YoloPostProcessing{}, []string{"spot"}, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	dst := filepath.Join(t.TempDir(), "out.avi")
	res, err := d.DetectVideo(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, domain.MediaVideo, res.Kind)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, 3, res.Sampled, "frames 0, 2 and 4")
	assert.Equal(t, 3, model.calls)
	assert.Equal(t, 2, res.Count, "busiest sampled frame")
	assert.Len(t, res.Items, 2)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestFourcc(t *testing.T) {
	assert.Equal(t, "MJPG", fourcc("out.AVI"))
	assert.Equal(t, "avc1", fourcc("out.mp4"))
}
