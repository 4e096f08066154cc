// docflowctl runs the document pipeline from the command line: built-in
// sample documents, or any .pdf/.json/.txt files given as arguments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/intake"
	"github.com/hazyhaar/docflow/perplexity"
)

const sampleInvoice = `{
    "invoice_number": "INV-001",
    "amount": 1000.00,
    "date": "2024-03-20",
    "vendor": "Example Corp"
}`

const sampleEmail = `From: sender@example.com
Subject: Invoice Payment Request
Thread-Id: THREAD-123

Dear Sir/Madam,

Please find attached the invoice for our recent services.
Payment is due within 30 days.

Best regards,
John Doe`

var (
	model   = flag.String("model", "sonar", "LLM model name")
	timeout = flag.Duration("timeout", 30*time.Second, "LLM request timeout")
	verbose = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	apiKey := os.Getenv("PERPLEXITY_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PERPLEXITY_API_KEY is required")
		os.Exit(1)
	}

	lvl := slog.LevelWarn
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	llm, err := perplexity.New(perplexity.Config{
		APIKey:  apiKey,
		Model:   *model,
		Timeout: *timeout,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store := docstore.New(logger)
	svc, err := intake.New(intake.Config{Store: store, LLM: llm, Logger: logger})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	heading := color.New(color.FgCyan, color.Bold).PrintlnFunc()

	if flag.NArg() == 0 {
		heading("Processing sample JSON document:")
		printResult(svc.ProcessDocument(ctx, sampleInvoice, "example.json"))

		heading("Processing sample email document:")
		printResult(svc.ProcessDocument(ctx, sampleEmail, "example.txt"))
	} else {
		pipe := docpipe.New(docpipe.Config{Logger: logger})
		for _, path := range flag.Args() {
			heading("Processing " + path + ":")
			doc, err := pipe.Extract(ctx, path)
			if err != nil {
				color.Red("extract: %v", err)
				continue
			}
			printResult(svc.ProcessDocument(ctx, doc.Text, filepath.Base(path)))
		}
	}

	heading("Statistics:")
	printJSON(store.GetStats())
}

func printResult(result *intake.ProcessingResult) {
	if result.Status == intake.StatusSuccess {
		color.Green("status: %s", result.Status)
	} else {
		color.Red("status: %s (%s)", result.Status, result.Error)
	}
	printJSON(result)
	fmt.Println()
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(out))
}
