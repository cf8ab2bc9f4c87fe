// Package report turns the persisted responses of a test run into a PDF
// report, optionally zipped, and hands it to the mailer.
package report

import (
	"bytes"
	"context"
	"strings"
	"time"

	"testflow_backend/apperr"
	"testflow_backend/store"

	"go.uber.org/zap"
)

type Packaging string

const (
	PackageZip Packaging = "zip"
	PackagePDF Packaging = "pdf"
)

// Artifact is the distributable result of a compilation.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Options struct {
	Packaging Packaging
	Location  *time.Location
	// Uncompressed disables PDF stream compression. The zip is unaffected.
	Uncompressed bool
	// Font is an optional TrueType font, see LoadFont.
	Font []byte
}

type Compiler struct {
	responses store.Responses
	opts      Options
	logger    *zap.Logger
}

func NewCompiler(responses store.Responses, opts Options, logger *zap.Logger) *Compiler {
	if opts.Packaging == "" {
		opts.Packaging = PackageZip
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{responses: responses, opts: opts, logger: logger.Named("report")}
}

// Compile fails with a RenderError when the run has no responses and with an
// IOError when rendering or packaging fails.
func (c *Compiler) Compile(ctx context.Context, run Run) (Artifact, error) {
	const op = "report.Compile"
	if strings.TrimSpace(run.ID) == "" {
		return Artifact{}, apperr.Validation(op, "test run id is required")
	}
	if strings.TrimSpace(run.TesterName) == "" {
		return Artifact{}, apperr.Validation(op, "tester name is required")
	}

	results, err := c.responses.RunResults(ctx, run.ID)
	if err != nil {
		return Artifact{}, err
	}
	if len(results) == 0 {
		return Artifact{}, apperr.Render(op, "no responses recorded for test run %s", run.ID)
	}
	answers, err := c.responses.RunAnswers(ctx, run.ID)
	if err != nil {
		return Artifact{}, err
	}

	doc := Build(run, results, answers, c.opts.Location)
	var pdf bytes.Buffer
	if err := RenderPDF(doc, &pdf, RenderOptions{Compress: !c.opts.Uncompressed, Font: c.opts.Font}); err != nil {
		return Artifact{}, apperr.IO(op, err)
	}

	base := fileBase(run.TesterName) + "_test_report"
	artifact := Artifact{
		Filename:    base + ".pdf",
		ContentType: "application/pdf",
		Data:        pdf.Bytes(),
	}
	if c.opts.Packaging == PackageZip {
		var archive bytes.Buffer
		if err := WriteArchive(&archive, artifact.Filename, artifact.Data, run.End); err != nil {
			return Artifact{}, apperr.IO(op, err)
		}
		artifact = Artifact{
			Filename:    base + ".zip",
			ContentType: "application/zip",
			Data:        archive.Bytes(),
		}
	}

	c.logger.Info("report compiled",
		zap.String("test_run_id", run.ID),
		zap.Int("results", len(results)),
		zap.Int("answers", len(answers)),
		zap.String("file", artifact.Filename),
		zap.Int("bytes", len(artifact.Data)))
	return artifact, nil
}

// fileBase keeps the tester name readable while dropping path separators,
// quotes and line breaks.
func fileBase(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '\x00', '"', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
