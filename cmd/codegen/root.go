package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"codegen/pkg/config"
	"codegen/pkg/logx"
	"codegen/pkg/version"
)

// EnvPassword unlocks the secrets file without a prompt.
const EnvPassword = "CODEGEN_PASSWORD"

const defaultConfigFile = "codegen.yaml"

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "codegen",
		Short: "Generate a project from a natural-language request",
		Long: `codegen plans an application from a request, decomposes the plan into
per-file implementation steps, and has a tool-using coding agent write each file
into the project root.

Runs are checkpointed after every stage so a failed run can be resumed.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.debug {
				logx.SetDebugConfig(true, false, "")
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigFile, "path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newResumeCmd(opts),
		newSecretsCmd(opts),
		newStatsCmd(opts),
	)
	return cmd
}

// loadConfig loads the config and, when an encrypted secrets file exists, unlocks it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if !config.SecretsFileExists(cfg.Secrets.File) {
		return cfg, nil
	}

	password, err := readPassword("Secrets password: ")
	if err != nil {
		return nil, err
	}
	secrets, err := config.DecryptSecretsFile(cfg.Secrets.File, password)
	if err != nil {
		return nil, err
	}
	config.SetDecryptedSecrets(secrets)
	logx.NewLogger("cli").Info("Loaded %d secrets from %s", len(secrets), cfg.Secrets.File)
	return cfg, nil
}

// readPassword returns $CODEGEN_PASSWORD or prompts on the terminal.
func readPassword(prompt string) (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	return promptHidden(prompt)
}

// promptHidden reads one line from the terminal without echoing it.
func promptHidden(prompt string) (string, error) {
	fd := int(syscall.Stdin) //nolint:unconvert // Stdin is an int only on unix
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s needs a terminal (or set %s)", strings.TrimSuffix(prompt, ": "), EnvPassword)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	defer zero(b)
	return strings.TrimSpace(string(b)), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
