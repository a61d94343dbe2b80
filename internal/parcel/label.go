package parcel

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"html/template"
)

// LabelRenderer converts HTML into a PDF document.
type LabelRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ErrLabelsDisabled is returned when no renderer is configured.
var ErrLabelsDisabled = errors.New("parcel: label rendering not configured")

var labelTemplate = template.Must(template.New("label").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Parcel.Name}}</title>
<style>
body { font-family: sans-serif; margin: 8mm; }
h1 { font-size: 20pt; margin: 0; }
.seq { font-size: 28pt; font-weight: bold; }
table { width: 100%; border-collapse: collapse; margin-top: 4mm; }
td, th { border-bottom: 1px solid #999; padding: 1mm; text-align: left; font-size: 9pt; }
</style></head>
<body>
<h1>{{.Parcel.Name}}</h1>
<div class="seq">{{.Parcel.Sequence}}</div>
<p>{{.Parcel.Client}}<br>{{.Parcel.DeliveryNote}} &middot; {{.Parcel.Date.Format "02/01/2006"}}</p>
<img src="{{.QR}}" width="180" height="180" alt="{{.URL}}">
<table>
<tr><th>Article</th><th>Description</th><th>Qty</th></tr>
{{range .Parcel.Lines}}<tr><td>{{.ItemCode}}</td><td>{{.Description}}</td><td>{{.TotalQty.String}}</td></tr>
{{end}}</table>
</body></html>`))

// LabelHTML renders the printable label of a parcel.
func (s *Service) LabelHTML(ctx context.Context, name string) (string, error) {
	p, err := s.repo.GetParcel(ctx, name)
	if err != nil {
		return "", err
	}
	url := s.TrackingURL(p.Name)
	png, err := RenderQR(url)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = labelTemplate.Execute(&buf, map[string]any{
		"Parcel": p,
		"URL":    url,
		"QR":     template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Label renders the parcel label to PDF.
func (s *Service) Label(ctx context.Context, name string) ([]byte, error) {
	if s.labels == nil {
		return nil, ErrLabelsDisabled
	}
	html, err := s.LabelHTML(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.labels.RenderHTML(ctx, html)
}
