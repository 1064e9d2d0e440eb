package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/daryaKuto/glowrange/internal/auth"
	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newLoginCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store cloud API credentials",
		Long: `Prompts for the target cloud client credentials, verifies them against
the token endpoint, and writes them to the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Glow Range config file")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	// Start from the existing config so login only replaces credentials.
	var cfg config.Config
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	baseURL, err := promptLine(out, reader, "Cloud base URL", cfg.Cloud.BaseURL)
	if err != nil {
		return err
	}
	clientID, err := promptLine(out, reader, "Client ID", cfg.Cloud.ClientID)
	if err != nil {
		return err
	}
	clientSecret, err := promptSecret(cmd, reader, "Client secret")
	if err != nil {
		return err
	}

	cfg.Cloud.BaseURL = baseURL
	cfg.Cloud.ClientID = clientID
	cfg.Cloud.ClientSecret = clientSecret

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	// Validate and derive the token endpoint before writing anything.
	full, err := config.Parse(data)
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Verifying credentials... ")
	provider := auth.New(full.Cloud.TokenURL, full.Cloud.ClientID, full.Cloud.ClientSecret)
	verifyCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	if _, err := provider.EnsureToken(verifyCtx, true); err != nil {
		fmt.Fprintln(out, "failed")
		return fmt.Errorf("credential check: %w", err)
	}
	fmt.Fprintln(out, "ok")

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", configPath, err)
	}
	fmt.Fprintf(out, "Credentials saved to %s\n", configPath)
	return nil
}

func promptLine(out io.Writer, reader *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		if current == "" {
			return "", fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return current, nil
	}
	return line, nil
}

// promptSecret reads the secret without echo when stdin is a terminal, and
// falls back to a plain line read otherwise (tests, piped input).
func promptSecret(cmd *cobra.Command, reader *bufio.Reader, label string) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ", label)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		if len(secret) == 0 {
			return "", fmt.Errorf("client secret is required")
		}
		return string(secret), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("client secret is required")
	}
	return line, nil
}
