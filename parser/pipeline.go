package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"docparser/models"
)

// PipelineBackend is the local, CPU-only parse path: plain text
// extraction per page, assembled into Markdown. It handles PDF input
// only; image inputs need one of the remote backends.
type PipelineBackend struct {
	version string
	logger  *zap.Logger
}

func NewPipelineBackend(version string, logger *zap.Logger) *PipelineBackend {
	return &PipelineBackend{version: version, logger: logger}
}

func (b *PipelineBackend) Name() models.Backend {
	return models.BackendPipeline
}

func (b *PipelineBackend) Parse(ctx context.Context, doc Document, opts models.ParseOptions) (*models.ParseResult, error) {
	start := time.Now()

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	totalPages := reader.NumPage()
	pageCount := totalPages
	if opts.MaxPages != nil && *opts.MaxPages < pageCount {
		pageCount = *opts.MaxPages
	}

	var md strings.Builder
	var contentList []models.ContentItem

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if md.Len() > 0 {
			md.WriteString("\n\n")
		}
		md.WriteString(text)

		contentList = append(contentList, models.ContentItem{
			Type:    "text",
			Text:    text,
			PageIdx: i - 1,
		})
	}

	b.logger.Info("Pipeline parse completed",
		zap.String("filename", doc.Filename),
		zap.Int("pages", pageCount),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &models.ParseResult{
		Status:      "success",
		Markdown:    md.String(),
		ElapsedMS:   time.Since(start).Milliseconds(),
		PageCount:   pageCount,
		Backend:     string(models.BackendPipeline),
		Version:     b.version,
		ContentList: contentList,
	}, nil
}
