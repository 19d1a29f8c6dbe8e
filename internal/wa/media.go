package wa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// SendMedia fetches the media reference (URL), uploads it and sends it
// with the body as caption. Image and video content keep their kind;
// everything else goes out as a document.
func (m *Manager) SendMedia(ctx context.Context, destination, body, mediaRef string) error {
	if !m.Paired() {
		return ErrNotPaired
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	data, mime, err := m.fetch(ctx, mediaRef)
	if err != nil {
		return err
	}
	jid := types.NewJID(destination, types.DefaultUserServer)

	var msg *waE2E.Message
	switch {
	case strings.HasPrefix(mime, "image/"):
		up, err := m.Client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		length := uint64(len(data))
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optstr(body),
			Mimetype:      optstr(mime),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}}
	case strings.HasPrefix(mime, "video/"):
		up, err := m.Client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return fmt.Errorf("upload video: %w", err)
		}
		length := uint64(len(data))
		msg = &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optstr(body),
			Mimetype:      optstr(mime),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}}
	default:
		up, err := m.Client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return fmt.Errorf("upload document: %w", err)
		}
		length := uint64(len(data))
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optstr(body),
			FileName:      optstr(path.Base(mediaRef)),
			Mimetype:      optstr(mime),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}}
	}

	_, err = m.Client.SendMessage(ctx, jid, msg)
	return err
}

func (m *Manager) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	res, err := m.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, "", fmt.Errorf("fetch %s: status %d", url, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", err
	}
	ct := res.Header.Get("Content-Type")
	if ct == "" {
		ct = sniffByExt(url)
	}
	return body, ct, nil
}

func sniffByExt(url string) string {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, ".jpg"), strings.Contains(u, ".jpeg"):
		return "image/jpeg"
	case strings.Contains(u, ".png"):
		return "image/png"
	case strings.Contains(u, ".mp4"):
		return "video/mp4"
	case strings.Contains(u, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func optstr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
