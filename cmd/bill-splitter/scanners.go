package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/zombor/bill-splitter/internal/scanning"
)

// providerConfig holds the credentials and endpoints shared by every
// strategy of one provider
type providerConfig struct {
	GeminiKey     string
	OpenAIKey     string
	OpenAIBaseURL string
	OllamaURL     string
}

// buildScanners turns "provider:model,provider:model" into scanners in
// priority order. Entries for providers without credentials are skipped so
// a missing key only shortens the chain.
func buildScanners(ctx context.Context, list string, cfg providerConfig) ([]scanning.Scanner, []string, error) {
	var (
		scanners []scanning.Scanner
		skipped  []string
	)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		provider, model, ok := strings.Cut(entry, ":")
		if !ok || model == "" {
			closeAll(scanners)
			return nil, nil, fmt.Errorf("extractor %q: want provider:model", entry)
		}

		var (
			scanner scanning.Scanner
			err     error
		)
		switch strings.ToLower(provider) {
		case "gemini":
			if cfg.GeminiKey == "" {
				skipped = append(skipped, entry)
				continue
			}
			scanner, err = scanning.NewGemini(ctx, cfg.GeminiKey, model)
		case "openai":
			if cfg.OpenAIKey == "" {
				skipped = append(skipped, entry)
				continue
			}
			scanner, err = scanning.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIKey, model)
		case "ollama":
			if cfg.OllamaURL == "" {
				skipped = append(skipped, entry)
				continue
			}
			scanner, err = scanning.NewOllama(cfg.OllamaURL, model)
		default:
			closeAll(scanners)
			return nil, nil, fmt.Errorf("extractor %q: unknown provider %q", entry, provider)
		}
		if err != nil {
			closeAll(scanners)
			return nil, nil, fmt.Errorf("initializing %s: %w", entry, err)
		}
		scanners = append(scanners, scanner)
	}
	return scanners, skipped, nil
}

func closeAll(scanners []scanning.Scanner) {
	for _, s := range scanners {
		s.Close()
	}
}
