package parser

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

	"go.uber.org/zap"

	"docparser/models"
)

// RemoteBackend forwards the document to an inference server over HTTP
// and relays its parse result. It backs the vlm-http-client and
// hybrid-http-client backend names.
type RemoteBackend struct {
	name    models.Backend
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewRemoteBackend(name models.Backend, baseURL string, logger *zap.Logger) *RemoteBackend {
	return &RemoteBackend{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
		logger:  logger,
	}
}

func (b *RemoteBackend) Name() models.Backend {
	return b.name
}

// engineBackend maps the client-side backend name to the engine the
// remote server should run.
func (b *RemoteBackend) engineBackend() string {
	switch b.name {
	case models.BackendVLMHTTP:
		return string(models.BackendVLM)
	case models.BackendHybridHTTP:
		return string(models.BackendHybrid)
	default:
		return string(b.name)
	}
}

func (b *RemoteBackend) Parse(ctx context.Context, doc Document, opts models.ParseOptions) (*models.ParseResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", doc.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"backend":        b.engineBackend(),
		"table_enable":   strconv.FormatBool(opts.TableEnable),
		"formula_enable": strconv.FormatBool(opts.FormulaEnable),
		"lang":           opts.Lang,
		"parse_method":   opts.ParseMethod,
	}
	if opts.MaxPages != nil {
		fields["max_pages"] = strconv.Itoa(*opts.MaxPages)
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/parse", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.logger.Error("Inference server error",
			zap.String("backend", string(b.name)),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result models.ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	result.Backend = string(b.name)
	return &result, nil
}
