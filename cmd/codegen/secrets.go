package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codegen/pkg/config"
)

func newSecretsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted API key file",
	}
	cmd.AddCommand(newSecretsSetCmd(root), newSecretsListCmd(root))
	return cmd
}

func newSecretsSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <NAME>",
		Short: "Store a secret such as ANTHROPIC_API_KEY",
		Long: `Set prompts for the secret value and stores it in the encrypted secrets file,
creating the file on first use. The file password comes from CODEGEN_PASSWORD or
a terminal prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("secret name cannot be empty")
			}
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			password, err := readPassword("Secrets password: ")
			if err != nil {
				return err
			}
			secrets := map[string]string{}
			if config.SecretsFileExists(cfg.Secrets.File) {
				if secrets, err = config.DecryptSecretsFile(cfg.Secrets.File, password); err != nil {
					return err
				}
			}

			value, err := promptHidden(fmt.Sprintf("Value for %s: ", name))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("secret %s: empty value", name)
			}
			secrets[name] = value

			if err := config.EncryptSecretsFile(cfg.Secrets.File, password, secrets); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", name, cfg.Secrets.File)
			return nil
		},
	}
}

func newSecretsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.loadConfig(); err != nil {
				return err
			}
			for _, name := range config.SecretNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
