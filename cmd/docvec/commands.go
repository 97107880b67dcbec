package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docvec"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/ingestion"
	"github.com/poiesic/docvec/reembed"
	"github.com/poiesic/docvec/search"
	"github.com/urfave/cli/v2"
)

func configPath(c *cli.Context) (string, error) {
	if p := c.String("config"); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path, err := configPath(c)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Path = db
		cfg.Store.InMemory = false
	}
	return cfg, nil
}

// openService loads the config and opens the service. The returned context
// is cancelled on interrupt.
func openService(c *cli.Context, opts ...docvec.Option) (*docvec.Service, context.Context, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	svc, err := docvec.Open(ctx, cfg, opts...)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("failed to open service: %w", err)
	}
	return svc, ctx, func() {
		svc.Close()
		stop()
	}, nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if arg == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return arg, nil
}

func initCommand(c *cli.Context) error {
	path, err := configPath(c)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func processCommand(c *cli.Context) error {
	source, err := requireArg(c, "path or url")
	if err != nil {
		return err
	}
	req := ingestion.Request{
		DocumentID: c.String("id"),
		UserID:     c.String("user"),
		FileName:   c.String("name"),
		FileType:   c.String("type"),
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	svc, ctx, closeFn, err := openService(c, docvec.WithStatusListener(progressPrinter(c.App.ErrWriter)))
	if err != nil {
		return err
	}
	defer closeFn()

	var result *ingestion.Result
	if u, parseErr := url.Parse(source); parseErr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if req.FileName == "" {
			req.FileName = filepath.Base(u.Path)
		}
		req.SourceURL = source
		result, err = svc.ProcessDocument(ctx, req)
	} else {
		f, openErr := os.Open(source)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		if info, statErr := f.Stat(); statErr == nil {
			req.FileSize = info.Size()
		}
		if req.FileName == "" {
			req.FileName = filepath.Base(source)
		}
		result, err = svc.UploadDocument(ctx, req, f)
	}
	if err != nil {
		return err
	}
	return reportResult(c.App.Writer, result)
}

func retryCommand(c *cli.Context) error {
	return restartCommand(c, (*docvec.Service).RetryDocument)
}

func reprocessCommand(c *cli.Context) error {
	return restartCommand(c, (*docvec.Service).ReprocessDocument)
}

func restartCommand(c *cli.Context, restart func(*docvec.Service, context.Context, string) (*ingestion.Result, error)) error {
	id, err := requireArg(c, "document id")
	if err != nil {
		return err
	}
	svc, ctx, closeFn, err := openService(c, docvec.WithStatusListener(progressPrinter(c.App.ErrWriter)))
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := restart(svc, ctx, id)
	if err != nil {
		return err
	}
	return reportResult(c.App.Writer, result)
}

func deleteCommand(c *cli.Context) error {
	id, err := requireArg(c, "document id")
	if err != nil {
		return err
	}
	svc, ctx, closeFn, err := openService(c)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := svc.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	if !report.Found && report.ChunksDeleted == 0 {
		fmt.Fprintf(c.App.Writer, "Document %s not found; nothing to delete\n", id)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Deleted document %s (%d chunks)\n", id, report.ChunksDeleted)
	if report.BlobErr != nil {
		fmt.Fprintf(c.App.ErrWriter, "warning: file not removed: %v\n", report.BlobErr)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	id, err := requireArg(c, "document id")
	if err != nil {
		return err
	}
	svc, ctx, closeFn, err := openService(c)
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := svc.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	printDocument(c.App.Writer, doc)
	return nil
}

func listCommand(c *cli.Context) error {
	svc, ctx, closeFn, err := openService(c)
	if err != nil {
		return err
	}
	defer closeFn()

	docs, err := svc.ListDocuments(ctx, c.String("user"))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No documents")
		return nil
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tNAME\tSTATUS\tPROGRESS\tCHUNKS\tUPDATED")
	for _, doc := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\t%s\n",
			doc.Id, doc.UserId, doc.Name, doc.Status, doc.Progress, doc.ChunkCount,
			doc.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func searchCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}
	svc, ctx, closeFn, err := openService(c)
	if err != nil {
		return err
	}
	defer closeFn()

	hits, err := svc.Search(ctx, query, search.Options{
		UserID:     c.String("user"),
		DocumentID: c.String("doc"),
		MaxHits:    c.Int("max-hits"),
		MinScore:   float32(c.Float64("min-score")),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(hits))
	for i, hit := range hits {
		marker := ""
		if hit.Verbatim {
			marker = " *"
		}
		fmt.Fprintf(c.App.Writer, "%d: [%0.3f]%s %s#%d\n   %s\n",
			i, hit.Score, marker, hit.Chunk.DocumentId, hit.Chunk.Index, snippet(hit.Chunk.Content, 160))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	svc, ctx, closeFn, err := openService(c)
	if err != nil {
		return err
	}
	defer closeFn()

	summary, err := svc.Reindex(ctx, c.String("user"), &reembed.Config{
		ReportInterval: c.Int("report-interval"),
		IncludeFailed:  c.Bool("include-failed"),
	}, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed to reindex", summary.Failed, summary.Total)
	}
	return nil
}

func reportResult(w io.Writer, result *ingestion.Result) error {
	if result.Document != nil {
		printDocument(w, result.Document)
	}
	if !result.Success {
		if result.Err == nil {
			return errors.New("ingestion failed")
		}
		return result.Err
	}
	return nil
}

func printDocument(w io.Writer, doc *core.Document) {
	fmt.Fprintf(w, "Document:  %s\n", doc.Id)
	fmt.Fprintf(w, "User:      %s\n", doc.UserId)
	fmt.Fprintf(w, "Name:      %s\n", doc.Name)
	fmt.Fprintf(w, "Source:    %s\n", doc.SourceURL)
	fmt.Fprintf(w, "Status:    %s (%d%%)\n", doc.Status, doc.Progress)
	if doc.Status == core.StatusIndexed {
		fmt.Fprintf(w, "Chunks:    %d\n", doc.ChunkCount)
	}
	if doc.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", doc.ErrorMessage)
	}
	fmt.Fprintf(w, "Updated:   %s\n", doc.UpdatedAt.Local().Format(time.DateTime))
}

// progressPrinter writes one line per status change.
func progressPrinter(w io.Writer) func(doc *core.Document) {
	return func(doc *core.Document) {
		if doc.Status == core.StatusProcessing {
			fmt.Fprintf(w, "\r%s: %s %3d%%", doc.Id, doc.Status, doc.Progress)
			return
		}
		fmt.Fprintf(w, "\r%s: %s %3d%%\n", doc.Id, doc.Status, doc.Progress)
	}
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
