package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/crmupdater/internal/config"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/intent"
)

type processOptions struct {
	file    string
	subject string
	from    string
	dryRun  bool
}

func newProcessCmd() *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a single email body",
		Long: `Parse an email body read from --file or stdin and print the companies and
note it names. Without --dry-run the CRM is updated with the configured mode,
exactly as for a pushed message without attachments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "File holding the email body (default: stdin)")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "Subject of the email")
	cmd.Flags().StringVar(&opts.from, "from", "", "Sender of the email")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Only parse; do not update the CRM")

	return cmd
}

func runProcess(cmd *cobra.Command, opts processOptions) error {
	body, err := readBody(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	in, err := intent.Parse(body)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), in); err != nil {
		return err
	}
	if opts.dryRun {
		return nil
	}

	ctx, cancel := runContext(cmd)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	out := a.processor.ProcessMessage(ctx, &gmail.InboundMessage{
		ID:      "local-" + uuid.NewString(),
		Subject: opts.subject,
		From:    opts.from,
		Body:    body,
	})
	return printJSON(cmd.OutOrStdout(), out)
}

func readBody(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read email body: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
