package detector

import (
	"image"
	"log/slog"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/postproc"
)

// Model owns a TFLite model and its interpreter. It is not safe for
// concurrent use; Detector serializes access.
type Model struct {
	model  *tflite.Model
	interp *tflite.Interpreter
}

func NewModel(cfg config.ModelConfig) (*Model, error) {
	model := tflite.NewModelFromFile(cfg.Path)
	if model == nil {
		return nil, xerrors.Errorf("cannot load model %s", cfg.Path)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	options.SetNumThread(cfg.Threads)

	if cfg.EdgeTPU {
		devices, err := edgetpu.DeviceList()
		if err != nil {
			lgr.Logger.Warn("could not get EdgeTPU devices", lgr.Err(err))
		}
		if len(devices) == 0 {
			lgr.Logger.Info("no edge TPU devices found")
		} else {
			options.AddDelegate(edgetpu.New(devices[0]))
		}
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, xerrors.New("cannot create interpreter")
	}

	status := interpreter.AllocateTensors()
	if status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, xerrors.Errorf("allocate failed: %v", status)
	}

	input := interpreter.GetInputTensor(0)
	lgr.Logger.Info("model loaded",
		slog.String("path", cfg.Path),
		slog.String("input", input.Name()),
		slog.Any("shape", getTensorShape(input)),
		slog.Any("type", input.Type()),
		slog.Int("outputs", interpreter.GetOutputTensorCount()),
	)
	return &Model{model, interpreter}, nil
}

func (m *Model) Close() {
	m.interp.Delete()
	m.model.Delete()
}

// InputSize is the width and height the model expects.
func (m *Model) InputSize() image.Point {
	input := m.interp.GetInputTensor(0)
	return image.Pt(input.Dim(2), input.Dim(1))
}

// Invoke runs the model on a BGR image and returns the dequantized outputs.
func (m *Model) Invoke(img gocv.Mat) ([]postproc.Tensor, error) {
	input := m.interp.GetInputTensor(0)
	if err := fillInput(input, img); err != nil {
		return nil, err
	}

	if status := m.interp.Invoke(); status != tflite.OK {
		return nil, xerrors.Errorf("invoke failed: %v", status)
	}

	outputs := make([]postproc.Tensor, 0, m.interp.GetOutputTensorCount())
	for idx := 0; idx < m.interp.GetOutputTensorCount(); idx++ {
		outputs = append(outputs, readOutput(m.interp.GetOutputTensor(idx)))
	}
	return outputs, nil
}

func getTensorShape(tensor *tflite.Tensor) []int {
	shape := []int{}
	for idx := 0; idx < tensor.NumDims(); idx++ {
		shape = append(shape, tensor.Dim(idx))
	}
	return shape
}

func fillInput(input *tflite.Tensor, img gocv.Mat) error {
	wanted := image.Pt(input.Dim(2), input.Dim(1))

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()

	switch input.Type() {
	case tflite.UInt8:
		gocv.Resize(rgb, &resized, wanted, 0, 0, gocv.InterpolationDefault)
		v, err := resized.DataPtrUint8()
		if err != nil {
			return xerrors.Errorf("read resized image: %w", err)
		}
		copy(input.UInt8s(), v)
	case tflite.Float32:
		rgb.ConvertTo(&resized, gocv.MatTypeCV32F)
		gocv.Resize(resized, &resized, wanted, 0, 0, gocv.InterpolationDefault)
		v, err := resized.DataPtrFloat32()
		if err != nil {
			return xerrors.Errorf("read resized image: %w", err)
		}
		for i := 0; i < len(v); i++ {
			v[i] = v[i] / 255.0
		}
		copy(input.Float32s(), v)
	default:
		return xerrors.Errorf("unsupported input type %v", input.Type())
	}
	return nil
}

func readOutput(output *tflite.Tensor) postproc.Tensor {
	var loc []float32
	switch output.Type() {
	case tflite.UInt8:
		f := output.UInt8s()
		loc = make([]float32, len(f))
		for i, v := range f {
			loc[i] = float32(v) / 255
		}
	case tflite.Float32:
		f := output.Float32s()
		loc = make([]float32, len(f))
		copy(loc, f)
	}
	return postproc.Tensor{Shape: getTensorShape(output), Data: loc}
}
