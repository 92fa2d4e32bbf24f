package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/stackcrawl/internal/config"
)

//go:embed templates/stackcrawl.yaml
var configTemplate embed.FS

const templatePath = "templates/stackcrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a stackcrawl configuration file",
		Long: `Init writes a commented .stackcrawl configuration file to the current directory.

The file documents the per-host settings stackcrawl understands: cookies,
headers, depth and URL limits, proxies and link patterns.

Examples:
  # Create .stackcrawl in the current directory
  stackcrawl init

  # Create the config in the XDG config directory
  stackcrawl init --xdg

  # Write to a specific path, overwriting an existing file
  stackcrawl init -o myconfig.yaml -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().Bool("xdg", false,
		"Write to $XDG_CONFIG_HOME/stackcrawl/config.yaml instead of --output")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	if useXDG {
		outputPath = filepath.Join(config.XDGConfigDir(), "config.yaml")
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Cookies and credentials end up in this file.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-host settings such as:")
	fmt.Fprintln(out, "  - Session cookies and request headers")
	fmt.Fprintln(out, "  - Crawl depth and URL limits")
	fmt.Fprintln(out, "  - Proxies and URL patterns to ignore or follow")
	return nil
}
