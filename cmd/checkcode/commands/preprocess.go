package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/checkcode/internal/book"
	"git.home.luguber.info/inful/checkcode/internal/config"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"git.home.luguber.info/inful/checkcode/internal/preprocessor"
	"git.home.luguber.info/inful/checkcode/internal/propagation"
)

// PreprocessCmd implements the host protocol: it reads [context, book] from
// stdin and, when every block compiles, writes the book back unchanged.
type PreprocessCmd struct{}

func (p *PreprocessCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	return RunPreprocess(ctx, g, root, os.Stdin, os.Stdout)
}

// RunPreprocess serves one host request read from in.
func RunPreprocess(ctx context.Context, g *Global, root *CLI, in io.Reader, out io.Writer) error {
	logger := g.logger()

	s, err := root.newSession(g, os.Stderr)
	if err != nil {
		return err
	}
	defer s.Close()

	hostCtx, b, err := book.ReadInput(in)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryProtocol, "read preprocessor input").Fatal().Build()
	}
	raw, err := hostCtx.PreprocessorSection(config.SectionName)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "read preprocessor configuration").Build()
	}
	logger.Debug("Received book",
		logfields.Path(hostCtx.Root),
		slog.String("renderer", hostCtx.Renderer),
		slog.String("mdbook_version", hostCtx.MdbookVersion))

	input := preprocessor.Input{
		Project:  hostCtx.Root,
		Config:   raw,
		Chapters: chapterDocuments(b),
	}
	if !root.NoDotenv {
		input.DotEnv = readDotEnv(hostCtx.Root, logger)
	}
	if _, err := s.runner.Check(ctx, input); err != nil {
		return err
	}
	if err := book.WriteOutput(out, b); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryProtocol, "write preprocessor output").Fatal().Build()
	}
	return nil
}

// chapterDocuments lists the book's chapters in document order, skipping drafts.
func chapterDocuments(b *book.Book) []propagation.Document {
	chapters := b.Flatten()
	docs := make([]propagation.Document, 0, len(chapters))
	for _, ch := range chapters {
		if ch.IsDraft() {
			continue
		}
		docs = append(docs, propagation.Document{Path: ch.Path, Content: []byte(ch.Content)})
	}
	return docs
}

// SupportsCmd answers the host's renderer query. Checking never changes the
// book, so every renderer is supported.
type SupportsCmd struct {
	Renderer string `arg:"" help:"Renderer name"`
}

func (s *SupportsCmd) Run(g *Global) error {
	g.logger().Debug("Renderer supported", slog.String("renderer", s.Renderer))
	return nil
}
