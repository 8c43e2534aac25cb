package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"speakd/encoder"
	"speakd/log"
)

// FunASR speaks to a locally running FunASR HTTP server. The server does
// the heavy lifting (VAD, punctuation, hotword boosting); this client just
// ships WAV bytes and decodes the JSON reply.
type FunASR struct {
	endpoint string
	client   *http.Client
}

func NewFunASR(endpoint string) *FunASR {
	return &FunASR{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (f *FunASR) Name() string { return "funasr" }

func (f *FunASR) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("funasr server unreachable at %s: %w", f.endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != 200 {
		return fmt.Errorf("funasr health check returned %d", resp.StatusCode)
	}
	log.Debugf("funasr server ready at %s", f.endpoint)
	return nil
}

func (f *FunASR) Close() {
	f.client.CloseIdleConnections()
}

type funasrResponse struct {
	Text       string  `json:"text"`
	RawText    string  `json:"raw_text"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func (f *FunASR) Transcribe(ctx context.Context, pcm []byte, sampleRate int, opts Options) (Result, error) {
	wav, err := encoder.Encode("wav", sampleRate, pcm)
	if err != nil {
		return Result{}, fmt.Errorf("wav wrap: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, err
	}

	writer.WriteField("use_vad", strconv.FormatBool(opts.UseVAD))
	writer.WriteField("use_punc", strconv.FormatBool(opts.UsePunc))
	writer.WriteField("batch_size_s", strconv.FormatFloat(opts.BatchSizeS, 'f', -1, 64))
	if opts.Language != "" {
		writer.WriteField("language", opts.Language)
	}
	if opts.Hotword != "" {
		writer.WriteField("hotword", opts.Hotword)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", f.endpoint+"/transcribe", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("funasr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("funasr response read: %w", err)
	}
	if resp.StatusCode != 200 {
		return Result{}, fmt.Errorf("funasr server error %d: %s", resp.StatusCode, string(raw))
	}

	var fr funasrResponse
	if err := json.Unmarshal(raw, &fr); err != nil {
		return Result{}, fmt.Errorf("funasr response parse: %w", err)
	}
	if fr.Error != "" {
		return Result{}, fmt.Errorf("funasr: %s", fr.Error)
	}

	// Older servers omit raw_text; treat the punctuated text as both.
	rawText := fr.RawText
	if rawText == "" {
		rawText = fr.Text
	}

	return Result{
		Text:       fr.Text,
		RawText:    rawText,
		Duration:   fr.Duration,
		Confidence: fr.Confidence,
	}, nil
}
