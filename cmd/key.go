package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/ui"
	"github.com/PolarWolf314/passgit/internal/utils"
	"github.com/PolarWolf314/passgit/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	keyType      string
	keyComment   string
	keyPIN       bool
	keyForce     bool
	keyPublic    string
	keyDeleteYes bool

	// KeyCmd is the top-level key command.
	KeyCmd = &cobra.Command{
		Use:   "key",
		Short: "Manage the SSH key used to reach the remote",
		Long: `Provides commands for the SSH key passgit authenticates with in ssh-key mode.

A key generated with --pin is encrypted; passgit asks for the PIN before it
is used and keeps it unlocked for a while.

Examples:
  # Generate an ed25519 key protected by a PIN
  passgit key generate --pin

  # Use an existing key
  passgit key import ~/.ssh/id_ed25519

  # Print the public key to register with the git host
  passgit key show`,
	}
)

func init() {
	addLoggingFlags(KeyCmd)

	keyGenerateCmd.Flags().StringVarP(&keyType, "type", "t", string(credentials.KeyTypeEd25519), "key type: ed25519, ecdsa or rsa")
	keyGenerateCmd.Flags().StringVarP(&keyComment, "comment", "C", "", "comment appended to the public key")
	keyGenerateCmd.Flags().BoolVar(&keyPIN, "pin", false, "protect the key with a PIN")
	keyGenerateCmd.Flags().BoolVarP(&keyForce, "force", "f", false, "replace an existing key")
	keyImportCmd.Flags().StringVar(&keyPublic, "public", "", "public key file (defaults to <path>.pub)")
	keyImportCmd.Flags().BoolVarP(&keyForce, "force", "f", false, "replace an existing key")
	keyDeleteCmd.Flags().BoolVarP(&keyDeleteYes, "yes", "y", false, "do not ask for confirmation")

	KeyCmd.AddCommand(keyGenerateCmd)
	KeyCmd.AddCommand(keyImportCmd)
	KeyCmd.AddCommand(keyShowCmd)
	KeyCmd.AddCommand(keyDeleteCmd)
}

// resetKeyCommandState resets the key command's global state for testing.
func resetKeyCommandState() {
	keyType = string(credentials.KeyTypeEd25519)
	keyComment = ""
	keyPIN = false
	keyForce = false
	keyPublic = ""
	keyDeleteYes = false
}

func keyStore() *credentials.KeyStore {
	return credentials.NewKeyStore(configs.UserPassgitSettings.KeysPath)
}

// readNewPIN asks for a PIN twice.
func readNewPIN() ([]byte, error) {
	pin, err := utils.ReadPassphrase("New PIN: ")
	if err != nil {
		return nil, err
	}
	if len(pin) == 0 {
		return nil, fmt.Errorf("the PIN cannot be empty")
	}
	again, err := utils.ReadPassphrase("Repeat PIN: ")
	if err != nil {
		return nil, err
	}
	defer utils.Zero(again)
	if !bytes.Equal(pin, again) {
		utils.Zero(pin)
		return nil, fmt.Errorf("the PINs do not match")
	}
	return pin, nil
}

func keySummary(res *workflows.KeyResult) string {
	msg := "Public key, add it to your git host:\n" + res.PublicKey
	if res.Protected {
		msg += "\n" + ui.Muted.Sprint("protected by a PIN")
	}
	return msg
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new SSH key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key generate command")

		var pin []byte
		if keyPIN {
			var err error
			if pin, err = readNewPIN(); err != nil {
				return Logger.ErrorfAndReturn("Failed to read PIN: %v", err)
			}
			defer utils.Zero(pin)
		}

		comment := keyComment
		if comment == "" {
			if host, err := utils.GetHostname(); err == nil {
				comment = "passgit@" + host
			}
		}

		s, cleanup := startSpinner("Generating SSH key...")
		defer cleanup()

		res, err := workflows.GenerateKey(cmd.Context(), keyStore(), sharedCredentialCache(), workflows.GenerateKeyOptions{
			Type:    credentials.KeyType(keyType),
			PIN:     pin,
			Comment: comment,
			Force:   keyForce,
		})
		if errors.Is(err, kerrors.ErrSSHKeyExists) {
			s.FinalMSG = ui.Failure("An SSH key already exists", "Use "+ui.Flag.Sprint("--force")+" to replace it")
			return nil
		}
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to generate key: %v", err)
		}

		s.FinalMSG = ui.Succeeded("SSH key generated") + "\n" + keySummary(res)
		return nil
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import an existing SSH private key",
	Long: `Copies an OpenSSH private key into passgit's key directory. Use - as the
path to read the private key from stdin.

The public key is read from <path>.pub when present. Passphrase protected
keys need it, pass --public when it lives elsewhere.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key import command")

		opts := workflows.ImportKeyOptions{
			PrivateKeyPath: args[0],
			PublicKeyPath:  keyPublic,
			Force:          keyForce,
		}
		if args[0] == "-" {
			Logger.Debugf("Reading private key from stdin")
			data, err := utils.ReadStdin()
			if err != nil {
				fmt.Println(ui.Failure(err.Error(), ""))
				return nil
			}
			defer utils.Zero(data)
			opts.PrivateKeyPath = ""
			opts.PrivateKey = data
		}

		s, cleanup := startSpinner("Importing SSH key...")
		defer cleanup()

		res, err := workflows.ImportKey(cmd.Context(), keyStore(), sharedCredentialCache(), opts)
		switch {
		case errors.Is(err, kerrors.ErrSSHKeyExists):
			s.FinalMSG = ui.Failure("An SSH key already exists", "Use "+ui.Flag.Sprint("--force")+" to replace it")
			return nil
		case errors.Is(err, kerrors.ErrInvalidPrivateKey):
			s.FinalMSG = ui.Failure(err.Error(), "Protected keys need "+ui.Flag.Sprint("--public"))
			return nil
		case err != nil:
			return Logger.ErrorfAndReturn("Failed to import key: %v", err)
		}

		s.FinalMSG = ui.Succeeded("SSH key imported") + "\n" + keySummary(res)
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the public key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key show command")

		res, err := workflows.ShowKey(cmd.Context(), keyStore())
		if errors.Is(err, kerrors.ErrSSHKeyMissing) {
			fmt.Println(ui.Failure("No SSH key found", "Run "+ui.Code.Sprint("passgit key generate")+" or "+ui.Code.Sprint("passgit key import <path>")))
			return nil
		}
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read key: %v", err)
		}

		fmt.Println(res.PublicKey)
		if res.Protected {
			fmt.Println(ui.Muted.Sprint("protected by a PIN"))
		}
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the SSH key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key delete command")

		if !keyDeleteYes {
			confirmed, err := confirm("This deletes the SSH key passgit uses. Continue? [y/N] ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to read confirmation: %v", err)
			}
			if !confirmed {
				return nil
			}
		}

		if err := workflows.DeleteKey(cmd.Context(), keyStore(), sharedCredentialCache()); err != nil {
			return Logger.ErrorfAndReturn("Failed to delete key: %v", err)
		}
		fmt.Println(ui.Succeeded("SSH key deleted"))
		return nil
	},
}
