package main

import (
	"fmt"
	"os"

	"yoink/internal/config"
)

// parseArgs parses command-line arguments and loads configuration.
// Priority: CLI flags > config file > defaults
func parseArgs() (config.Config, string, string, error) {
	args := os.Args[1:]

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printUsage()
			os.Exit(0)
		}
		if arg == "--init-config" {
			return config.Config{}, "", "", initConfigFile()
		}
	}

	var configPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			if i+1 >= len(args) {
				return config.Config{}, "", "", fmt.Errorf("--config requires a path argument")
			}
			configPath = args[i+1]
			break
		}
	}

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return config.Config{}, "", "", fmt.Errorf("failed to load config: %w", err)
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	var link string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--verbose", "-v":
			cfg.Verbose = true

		case "--hi-res":
			cfg.PreferHiRes = true

		case "--format", "-f":
			if i+1 >= len(args) {
				return config.Config{}, "", "", fmt.Errorf("--format requires a format name")
			}
			i++
			cfg.AudioFormat = args[i]

		case "--output", "-o":
			if i+1 >= len(args) {
				return config.Config{}, "", "", fmt.Errorf("--output requires a directory path")
			}
			i++
			cfg.OutputDir = config.ExpandHome(args[i])

		case "--config", "-c":
			i++

		default:
			if len(arg) > 0 && arg[0] == '-' {
				return config.Config{}, "", "", fmt.Errorf("unknown flag: %s", arg)
			}
			link = arg
		}
	}

	if link == "" {
		return config.Config{}, "", "", fmt.Errorf("a track link is required")
	}

	return cfg, link, configPath, nil
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := config.GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		os.Exit(0)
	}

	cfg := config.DefaultConfig()

	if err := config.SaveConfigFile(cfg, path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nYou can now edit this file to customize your settings.")
	fmt.Println("Available options:")
	fmt.Println("  audio_format: mp3, flac, alac")
	fmt.Println("  prefer_hi_res: true/false (try hi-res tiers when available)")
	fmt.Println("  max_transcodes: 1-8 (concurrent conversions)")
	fmt.Println("  verbose: true/false (enable detailed logging)")

	os.Exit(0)
	return nil
}

// printUsage displays the help message
func printUsage() {
	fmt.Println("yoink - Grab a track from a streaming link as a tagged audio file")
	fmt.Println()
	fmt.Println("Usage: yoink [options] <track_link>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose              Show detailed output")
	fmt.Println("  -f, --format <format>      Output format: mp3, flac, alac (default: flac)")
	fmt.Println("  -o, --output <dir>         Output directory")
	fmt.Println("      --hi-res               Prefer hi-res quality tiers when available")
	fmt.Println("  -c, --config <path>        Path to config file")
	fmt.Println("  -h, --help                 Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  --init-config              Create a default config file")
	fmt.Println()
	fmt.Println("Config file locations (checked in order):")
	fmt.Println("  ./yoink.yaml")
	fmt.Println("  ~/.config/yoink/config.yaml")
	fmt.Println("  ~/.yoink.yaml")
	fmt.Println()
	fmt.Println("Logging:")
	fmt.Println("  Normal mode: detailed logs saved to ~/.local/share/yoink/logs/")
	fmt.Println("  Verbose mode: all output to stdout, no file logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Grab a track from a streaming link")
	fmt.Println("  yoink https://open.spotify.com/track/...")
	fmt.Println()
	fmt.Println("  # Deliver as 320kbps MP3")
	fmt.Println("  yoink -f mp3 https://open.spotify.com/track/...")
	fmt.Println()
	fmt.Println("  # Create a config file to persist credentials and settings")
	fmt.Println("  yoink --init-config")
}
