package elevenlabs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/ent0n29/echo/internal/voiceclone"
)

const sampleFileName = "voice_sample.wav"

// AddVoice uploads a recorded sample as a new cloned voice.
func (c *Client) AddVoice(ctx context.Context, sub voiceclone.Submission) (string, error) {
	f, err := os.Open(samplePath(sub.SampleURI))
	if err != nil {
		return "", fmt.Errorf("open voice sample: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", sub.Name); err != nil {
		return "", err
	}
	if d := strings.TrimSpace(sub.Description); d != "" {
		if err := mw.WriteField("description", d); err != nil {
			return "", err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, sampleFileName))
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read voice sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/voices/add", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		VoiceID string `json:"voice_id"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}
	return out.VoiceID, nil
}

func samplePath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
