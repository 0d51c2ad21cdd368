package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/store"
)

// PageSource loads stored pages.
type PageSource interface {
	GetPage(ctx context.Context, id string) (store.Page, error)
}

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides page export functionality
type Service struct {
	pages PageSource
	pdf   converter
	docx  converter
}

func NewService(pages PageSource) *Service {
	return &Service{pages: pages, pdf: exportPDF, docx: exportDOCX}
}

// Export loads the page and renders it in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	page, err := s.pages.GetPage(ctx, req.PageID)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	list, err := blocks.DecodeBlocks([]byte(page.Content))
	if err != nil {
		b := blocks.MakeBlock(blocks.TypeText)
		b.Content = blocks.Text(page.Content)
		list = []blocks.Block{b}
	}
	return s.Render(ctx, page.Name, page.UpdatedAt, list, req.Format)
}

// Render produces an export from an already decoded block list.
func (s *Service) Render(ctx context.Context, title string, updatedAt time.Time, list []blocks.Block, format Format) (*Result, error) {
	if format == FormatMarkdown {
		body := Markdown(list)
		if title != "" {
			body = "# " + oneLine(title) + "\n\n" + body
		}
		return &Result{
			Data:     []byte(body),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	doc, err := RenderPageHTML(TemplateData{
		Title:       title,
		ContentHTML: template.HTML(HTML(list)),
		UpdatedAt:   updatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(doc),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, doc, title)
	case FormatDOCX:
		return s.docx(ctx, doc, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
