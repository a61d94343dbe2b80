package parcel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	qrFilePrefix = "qr_code_"
	qrImageSize  = 256
)

// qrInfo is stored next to the image as attachment metadata.
type qrInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	AppURL string `json:"app_url"`
	Client string `json:"client"`
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// TrackingURL is the public address encoded in the QR code.
func (s *Service) TrackingURL(name string) string {
	return fmt.Sprintf("%s/frontend/colis/%s", s.baseURL, name)
}

func (s *Service) qrInfo(p Parcel) qrInfo {
	return qrInfo{
		ID:     p.Name,
		URL:    s.TrackingURL(p.Name),
		AppURL: fmt.Sprintf("%s/app/colis/%s", s.baseURL, p.Name),
		Client: p.Client,
		Date:   p.Date.Format("2006-01-02"),
		Status: p.Status,
	}
}

// RenderQR encodes content as a PNG with medium error correction. The symbol
// version grows with the content length.
func RenderQR(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("parcel: encode qr: %w", err)
	}
	return png, nil
}

// IssueQR renders the parcel QR code and replaces any previously stored one.
// Without object storage the image is only rendered.
func (s *Service) IssueQR(ctx context.Context, name string) ([]byte, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return nil, err
	}
	info := s.qrInfo(p)
	png, err := RenderQR(info.URL)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return png, nil
	}

	previous, err := s.repo.ListAttachments(ctx, name, qrFilePrefix)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	fileName := qrFilePrefix + name + ".png"
	key := fmt.Sprintf("parcels/%s/%s-%s", name, id.String()[:8], fileName)
	if err := s.store.Put(ctx, key, "image/png", png); err != nil {
		return nil, err
	}
	att := Attachment{
		ID:          id.String(),
		Parcel:      name,
		FileName:    fileName,
		ObjectKey:   key,
		ContentType: "image/png",
		Size:        int64(len(png)),
		Meta:        meta,
		CreatedAt:   s.now(),
	}
	if err := s.repo.InsertAttachment(ctx, att); err != nil {
		s.removeObject(ctx, att)
		return nil, err
	}
	if err := s.repo.SetImage(ctx, name, key); err != nil {
		return nil, err
	}

	// The previous images go only once the parcel points at the new one.
	for _, old := range previous {
		if err := s.repo.DeleteAttachment(ctx, old.ID); err != nil {
			s.logger.Warn("stale qr attachment kept", slog.String("parcel", name), slog.String("attachment", old.ID), slog.Any("error", err))
			continue
		}
		s.removeObject(ctx, old)
	}
	return png, nil
}

// DownloadQR serves the stored QR image, regenerating it when missing or
// unreadable. Concurrent calls for one parcel share a single render.
func (s *Service) DownloadQR(ctx context.Context, name string) ([]byte, error) {
	ch := s.qrFlight.DoChan(name, func() (any, error) {
		return s.loadQR(context.WithoutCancel(ctx), name)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (s *Service) loadQR(ctx context.Context, name string) ([]byte, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.Image != "" && s.store != nil {
		data, err := s.store.Get(ctx, p.Image)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if err == nil {
			err = errors.New("empty object")
		}
		s.logger.Info("stored qr unreadable, regenerating", slog.String("parcel", name), slog.Any("error", err))
	}
	return s.IssueQR(ctx, name)
}
