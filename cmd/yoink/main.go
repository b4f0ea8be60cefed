package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"yoink/internal/config"
	"yoink/internal/logger"
	"yoink/internal/pipeline"
	"yoink/internal/shutdown"
)

func main() {
	cfg, link, configPath, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}

	sh := shutdown.New()
	sh.Listen()
	defer sh.Wait()

	log := logger.New(cfg.Verbose)
	defer log.Close()

	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("yoink_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if cfg.Verbose && configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	p := pipeline.New(cfg, log)
	hooks := pipeline.Hooks{
		OnStatus: func(status, provider string) {
			if provider != "" {
				log.Info("[%s] %s", provider, status)
			}
		},
	}

	result, err := p.Run(sh.Context(), link, hooks)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	log.Info("=== Saved %s - %s ===", result.Track.Artist, result.Track.Name)
	fmt.Println(result.Path)
}
