package store

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/mpromonet/gin-spotdetect/internal/domain"
)

// SaveSpot records the outcome of one detection for username.
func (s *Store) SaveSpot(username, filename, media string, count int, kind domain.MediaKind) (*Spot, error) {
	if kind != domain.MediaImage && kind != domain.MediaVideo {
		return nil, xerrors.Errorf("%w: media kind %q", ErrInvalidValue, kind)
	}
	if count < 0 {
		return nil, xerrors.Errorf("%w: negative count", ErrInvalidValue)
	}
	spot := &Spot{
		Username: username,
		Filename: filename,
		Media:    media,
		Count:    count,
		Type:     kind,
		Date:     time.Now().UTC(),
	}
	if err := s.db.Create(spot).Error; err != nil {
		return nil, xerrors.Errorf("save spot: %w", err)
	}
	return spot, nil
}

// ListSpots returns the detection history of username, newest first.
func (s *Store) ListSpots(username string) ([]Spot, error) {
	var spots []Spot
	if err := s.db.Where("username = ?", username).Order("date DESC, id DESC").Find(&spots).Error; err != nil {
		return nil, xerrors.Errorf("list spots: %w", err)
	}
	return spots, nil
}
