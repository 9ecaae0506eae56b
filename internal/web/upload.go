package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/auth"
	"github.com/mpromonet/gin-spotdetect/internal/domain"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
)

var (
	imageExts = []string{".jpg", ".jpeg", ".png"}
	videoExts = []string{".mp4", ".mov", ".avi"}

	errUnsupportedFile = errors.New("unsupported file type")
	errMissingFile     = errors.New("no file uploaded")
)

// mediaKind tells images from videos by extension.
func mediaKind(filename string) (domain.MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case slices.Contains(imageExts, ext):
		return domain.MediaImage, true
	case slices.Contains(videoExts, ext):
		return domain.MediaVideo, true
	}
	return "", false
}

func (s *Server) limitUpload() gin.HandlerFunc {
	limit := s.cfg.Storage.MaxUploadSize
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// detection is one processed upload stored under the media directory.
type detection struct {
	Result   *domain.DetectionResult
	Media    string
	Filename string
}

func (d *detection) URL() string { return "/media/" + d.Media }

// uploadedFile reads the multipart "file" field and checks it against want.
// An empty want accepts any supported kind.
func uploadedFile(c *gin.Context, want domain.MediaKind) (*multipart.FileHeader, domain.MediaKind, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", xerrors.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, errUnsupportedFile)
		}
		return nil, "", errMissingFile
	}
	kind, ok := mediaKind(fh.Filename)
	if !ok || (want != "" && kind != want) {
		return nil, "", xerrors.Errorf("%q: %w", fh.Filename, errUnsupportedFile)
	}
	return fh, kind, nil
}

func fileError(op string, err error) error {
	return xerrors.Errorf("%s (%v): %w", op, err, domain.ErrFileHandling)
}

// runDetection runs the detector on an upload, keeps the annotated output under
// the media directory and records it in the user's history.
func (s *Server) runDetection(c *gin.Context, fh *multipart.FileHeader, kind domain.MediaKind) (*detection, error) {
	ctx := c.Request.Context()
	d := &detection{Filename: filepath.Base(fh.Filename)}

	var err error
	switch kind {
	case domain.MediaImage:
		d.Media = uuid.NewString() + ".jpg"
		d.Result, err = s.detectImage(ctx, fh, d.Media)
	case domain.MediaVideo:
		d.Media = uuid.NewString() + ".mp4"
		d.Result, err = s.detectVideo(ctx, fh, d.Media)
	default:
		err = errUnsupportedFile
	}
	if err != nil {
		return nil, err
	}

	p, _ := auth.Current(c)
	if _, err := s.store.SaveSpot(p.Username, d.Filename, d.Media, d.Result.Count, kind); err != nil {
		if err := os.Remove(filepath.Join(s.cfg.Storage.MediaDir, d.Media)); err != nil && !os.IsNotExist(err) {
			slog.Warn("orphan media not removed", "media", d.Media, lgr.Err(err))
		}
		return nil, err
	}
	slog.Info("detection stored", "user", p.Username, "kind", kind, "count", d.Result.Count, "media", d.Media)
	return d, nil
}

func (s *Server) detectImage(ctx context.Context, fh *multipart.FileHeader, media string) (*domain.DetectionResult, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fileError("open upload", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, fileError("read upload", err)
	}

	res, err := s.detector.DetectImage(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.cfg.Storage.MediaDir, media), res.Annotated, 0o644); err != nil {
		return nil, fileError("write annotated image", err)
	}
	return res, nil
}

// detectVideo spools the upload to a temporary file, which is always
// removed once the annotated copy has been written.
func (s *Server) detectVideo(ctx context.Context, fh *multipart.FileHeader, media string) (*domain.DetectionResult, error) {
	src, err := spool(fh)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			slog.Warn("temporary upload not removed", "path", src, lgr.Err(err))
		}
	}()

	dst := filepath.Join(s.cfg.Storage.MediaDir, media)
	res, err := s.detector.DetectVideo(ctx, src, dst)
	if err != nil {
		os.Remove(dst)
		return nil, err
	}
	return res, nil
}

func spool(fh *multipart.FileHeader) (string, error) {
	in, err := fh.Open()
	if err != nil {
		return "", fileError("open upload", err)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "spotdetect-*"+strings.ToLower(filepath.Ext(fh.Filename)))
	if err != nil {
		return "", fileError("create temporary file", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fileError("copy upload", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fileError("close temporary file", err)
	}
	return out.Name(), nil
}

// detectionStatus maps a detection failure to a status and a message fit
// for the user.
func detectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Detection was interrupted, please retry."
	case errors.Is(err, errMissingFile):
		return http.StatusBadRequest, "Please choose a file to upload."
	case errors.Is(err, errUnsupportedFile):
		return http.StatusBadRequest, "Unsupported file: " + err.Error()
	case errors.Is(err, domain.ErrImageProcessing):
		return http.StatusUnprocessableEntity, "Failed to process image: " + err.Error()
	case errors.Is(err, domain.ErrVideoProcessing):
		return http.StatusUnprocessableEntity, "Failed to process video: " + err.Error()
	case errors.Is(err, domain.ErrFileHandling):
		return http.StatusInternalServerError, "Could not handle the uploaded file."
	}
	return http.StatusInternalServerError, "Unexpected error during detection."
}
