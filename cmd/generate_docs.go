package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/crmupdater/internal/crm"
	"github.com/teemow/crmupdater/internal/gmail"
	"github.com/teemow/crmupdater/internal/pipeline"
	"github.com/teemow/crmupdater/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command introspects the registered tools and outputs their documentation
in markdown format, ensuring the documentation is always accurate and in sync
with the actual tool implementations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docsPipeline stands in for the real pipeline; generate-docs never calls it.
type docsPipeline struct{}

var errDocsOnly = errors.New("not available while generating docs")

func (docsPipeline) Run(context.Context, pipeline.Trigger) (*pipeline.Outcome, error) {
	return nil, errDocsOnly
}

func (docsPipeline) ProcessMessage(context.Context, *gmail.InboundMessage) *pipeline.Outcome {
	return nil
}

func (docsPipeline) Upserter() crm.Upserter { return nil }

type docsWatcher struct{}

func (docsWatcher) Watch(context.Context, string, ...string) (*gmail.WatchResult, error) {
	return nil, errDocsOnly
}

func runGenerateDocs(w io.Writer, outputFile string) error {
	serverContext, err := server.NewServerContext(context.Background(), server.Dependencies{
		Pipeline: docsPipeline{},
		Watcher:  docsWatcher{},
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	// register write tools too so every tool is documented
	mcpSrv, err := newMCPServer(serverContext, false)
	if err != nil {
		return err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}

	readOnlySrv, err := newMCPServer(serverContext, true)
	if err != nil {
		return err
	}
	readOnly := make(map[string]bool)
	for name := range readOnlySrv.ListTools() {
		readOnly[name] = true
	}

	markdown := generateToolsMarkdown(tools, readOnly)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
		return nil
	}
	_, err = io.WriteString(w, markdown)
	return err
}

// toolCategories lists the documented categories in output order, keyed by
// tool name prefix.
var toolCategories = []struct {
	prefix string
	title  string
}{
	{"crm", "CRM Tools"},
	{"gmail", "Gmail Tools"},
}

const otherCategory = "Other"

func generateToolsMarkdown(tools []mcp.Tool, readOnly map[string]bool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools served by `crmupdater mcp` (stdio) and `crmupdater serve --mcp` (/mcp). ")
	sb.WriteString("Generated from the registered tool definitions by `crmupdater generate-docs`.\n\n")
	sb.WriteString("Tools marked **write** are only registered with `--yolo`.\n\n")

	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}

	titles := make([]string, 0, len(toolCategories)+1)
	for _, c := range toolCategories {
		titles = append(titles, c.title)
	}
	titles = append(titles, otherCategory)

	for _, title := range titles {
		categoryTools := byCategory[title]
		if len(categoryTools) == 0 {
			continue
		}
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", title)
		for _, tool := range categoryTools {
			writeToolMarkdown(&sb, tool, readOnly[tool.Name])
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	for _, c := range toolCategories {
		if c.prefix == prefix {
			return c.title
		}
	}
	return otherCategory
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool, readOnly bool) {
	fmt.Fprintf(sb, "### %s", tool.Name)
	if !readOnly {
		sb.WriteString(" (**write**)")
	}
	sb.WriteString("\n\n")

	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		sb.WriteString("No arguments.\n\n")
		return
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Argument | Type | Required | Description |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		propType, _ := prop["type"].(string)
		if propType == "" {
			propType = "any"
		}
		desc, _ := prop["description"].(string)

		required := "no"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "yes"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n", name, propType, required, strings.ReplaceAll(desc, "|", "\\|"))
	}
	sb.WriteString("\n")
}
