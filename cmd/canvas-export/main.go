package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	canvasexport "github.com/hellenic-development/canvas-export"
	"github.com/hellenic-development/canvas-export/internal/config"
	"github.com/hellenic-development/canvas-export/pkg/canvas"
)

const version = canvas.Version

var (
	configFile   string
	fileURL      string
	accessToken  string
	baseURL      string
	nodeIDs      string
	exportImages bool
	imageFormat  string
	imageScale   float64
	outDir       string
	outputFile   string
	withMetadata bool
	showTree     bool
	depth        int
	noCache      bool
	cacheDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "canvas-export",
		Short: "Export nodes and rendered assets from design files",
		Long:  "A tool to fetch design file nodes through the HTTP API, reconstruct their hierarchy, and export rendered images with metadata",
		Run:   run,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&accessToken, "token", "t", "", "API access token (or CANVAS_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL override")

	rootCmd.Flags().StringVarP(&fileURL, "url", "u", "", "Design file URL (required)")
	rootCmd.Flags().StringVarP(&nodeIDs, "node-ids", "n", "", "Comma-separated node IDs to export (optional, defaults to the URL's node-id or the file's top-level frames)")
	rootCmd.Flags().BoolVar(&exportImages, "export-images", false, "Download and write rendered images")
	rootCmd.Flags().StringVar(&imageFormat, "format", "png", "Image format: png, jpg, svg, pdf")
	rootCmd.Flags().Float64Var(&imageScale, "scale", 1, "Render scale factor (1-4)")
	rootCmd.Flags().StringVar(&outDir, "out", "canvas-assets", "Output directory for exported images")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the markdown report to this file")
	rootCmd.Flags().BoolVar(&withMetadata, "metadata", false, "Write a .json metadata file next to each image")
	rootCmd.Flags().BoolVar(&showTree, "tree", false, "Print the node hierarchy")
	rootCmd.Flags().IntVar(&depth, "depth", 0, "Limit hierarchy depth (0 = unlimited)")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the on-disk response cache")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", ".cache", "Response cache directory")

	rootCmd.MarkFlagRequired("url")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Run:   serve,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("canvas-export version %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	cyan.Println("\n🖼  Canvas Export")
	cyan.Println("=================")

	cfg, err := loadConfig(cmd)
	if err != nil {
		red.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := canvasexport.Options{
		Token:        cfg.Token,
		FileURL:      fileURL,
		ExportImages: exportImages,
		Format:       cfg.Format,
		Scale:        cfg.Scale,
		OutDir:       cfg.OutDir,
		WithMetadata: withMetadata,
		Depth:        depth,
		PrintTree:    showTree,
		UseCache:     !cfg.NoCache,
		CacheDir:     cfg.CacheDir,
		CacheTTL:     cfg.CacheTTL.Std(),
		BaseURL:      cfg.BaseURL,
		Logger:       buildLogger(cfg.LogLevel),
	}
	if nodeIDs != "" {
		opts.NodeIDs = strings.Split(nodeIDs, ",")
	}

	result, err := canvasexport.Run(ctx, opts)
	if err != nil {
		red.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cyan.Println("\n📊 Export Summary:")
	fmt.Printf("  • File: %s (%s)\n", result.FileName, result.FileID)
	fmt.Printf("  • Nodes: %d\n", len(result.Nodes))
	if exportImages {
		fmt.Printf("  • Assets: %d\n", len(result.Assets))
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("  • Skipped: %d\n", len(result.Skipped))
	}

	if result.TreeText != "" {
		cyan.Println("\n🌳 Node Hierarchy:")
		fmt.Print(result.TreeText)
	}

	if outputFile != "" {
		green.Printf("\n💾 Writing report to %s... ", outputFile)
		if err := os.WriteFile(outputFile, []byte(result.Markdown), 0644); err != nil {
			red.Printf("✗\n")
			red.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		green.Println("✓")
	}

	green.Printf("\n✨ Export finished\n\n")
}

func serve(cmd *cobra.Command, args []string) {
	red := color.New(color.FgRed)

	cfg, err := loadConfig(cmd)
	if err != nil {
		red.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Token == "" {
		red.Println("Error: access token is required (--token or CANVAS_TOKEN)")
		os.Exit(1)
	}

	logger := buildLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := canvasexport.NewMCPServer(canvasexport.Options{
		Token:    cfg.Token,
		Format:   cfg.Format,
		Scale:    cfg.Scale,
		OutDir:   cfg.OutDir,
		UseCache: !cfg.NoCache,
		CacheDir: cfg.CacheDir,
		CacheTTL: cfg.CacheTTL.Std(),
		BaseURL:  cfg.BaseURL,
		Logger:   logger,
	})

	logger.Info().Str("version", version).Msg("MCP server listening on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		red.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers the YAML file, the environment, and any flags the user
// set explicitly, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if accessToken != "" {
		cfg.Token = accessToken
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = imageFormat
	}
	if cmd.Flags().Changed("scale") {
		cfg.Scale = imageScale
	}
	if cmd.Flags().Changed("out") {
		cfg.OutDir = outDir
	}
	if cmd.Flags().Changed("no-cache") {
		cfg.NoCache = noCache
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}

	return cfg, nil
}

func buildLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
}
