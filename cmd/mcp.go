package cmd

import (
	"fmt"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/crmupdater/internal/config"
	"github.com/teemow/crmupdater/internal/server"
	"github.com/teemow/crmupdater/internal/tools/crm_tools"
	"github.com/teemow/crmupdater/internal/tools/gmail_tools"
)

func newMCPCmd() *cobra.Command {
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the update
pipeline as tools. Only crm_parse_email is available unless --yolo is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runContext(cmd)
			defer cancel()

			// stdout carries the protocol
			logger := newLogger(os.Stderr)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			mcpSrv, err := newMCPServer(a.serverContext, !yolo)
			if err != nil {
				return err
			}
			if err := mcpserver.ServeStdio(mcpSrv); err != nil {
				return fmt.Errorf("server stopped with error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Register tools that write to the CRM or mailbox")

	return cmd
}

// newMCPServer registers the tools on a new MCP server. Write tools are
// left out when readOnly is set.
func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("crmupdater", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := crm_tools.RegisterCRMTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register CRM tools: %w", err)
	}
	if !readOnly {
		if err := gmail_tools.RegisterGmailTools(mcpSrv, sc); err != nil {
			return nil, fmt.Errorf("failed to register Gmail tools: %w", err)
		}
	}
	return mcpSrv, nil
}
