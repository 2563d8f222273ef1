package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/healthlink/internal/cipher"
)

// cryptCmd groups the offline cipher commands
var cryptCmd = &cobra.Command{
	Use:   "crypt",
	Short: "Encrypt or decrypt FORA payloads offline",
	Long: `Runs the FORA payload cipher locally. The key is chosen from --path exactly
as the gateway does: ForaO2API paths use the ring key, all others the web key.

Input is taken from the arguments, or from stdin when none are given.

Examples:
  healthlink crypt encrypt --path ForaO2API/ClientRingDataAES '{"mode":0}'
  echo 'q1w2...' | healthlink crypt decrypt --path TaidocWeb/GroupLoginAES`,
}

var cryptPath string

var cryptEncryptCmd = &cobra.Command{
	Use:   "encrypt [plaintext]",
	Short: "Zero-pad and encrypt, print base64",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := cryptInput(cmd, args)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		domain := cipher.DomainForPath(cryptPath)
		env, err := cipher.NewGateway(discardLogger()).Encrypt(domain, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.Ciphertext)
		return nil
	},
}

var cryptDecryptCmd = &cobra.Command{
	Use:   "decrypt [base64]",
	Short: "Decrypt base64 ciphertext, print plaintext",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := cryptInput(cmd, args)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		logger, err := configureLogger(cmd, logrus.PanicLevel)
		if err != nil {
			return err
		}
		domain := cipher.DomainForPath(cryptPath)
		plain := cipher.NewGateway(logger).Decrypt(domain, input)
		if plain == "" {
			return fmt.Errorf("ciphertext could not be decrypted with the %s key", domain)
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

func init() {
	cryptCmd.PersistentFlags().StringVar(&cryptPath, "path", "", "API path that selects the key (e.g. ForaO2API/ClientRingDataAES)")
	cryptCmd.AddCommand(cryptEncryptCmd)
	cryptCmd.AddCommand(cryptDecryptCmd)
}

func cryptInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	input := strings.TrimRight(string(data), "\r\n")
	if input == "" {
		return "", fmt.Errorf("no input: pass it as an argument or on stdin")
	}
	return input, nil
}
