package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aorta/internal/authn"
)

var (
	authnIn  string
	authnOut string
	authnSSO string
)

var authnRequestCmd = &cobra.Command{
	Use:   "authn-request",
	Short: "Encode a SAML authentication request for the redirect binding",
	Long: `Authn-request deflates, Base64-encodes and URL-encodes a SAML
AuthnRequest document so it can be sent as the SAMLRequest query
parameter. With --sso it prints the full redirect URL.`,
	Args: cobra.NoArgs,
	RunE: runAuthnRequest,
}

func init() {
	authnRequestCmd.Flags().StringVar(&authnIn, "in", "data/saml/authnRequest.xml", "request document")
	authnRequestCmd.Flags().StringVar(&authnOut, "out", "", "write the encoded request to this file")
	authnRequestCmd.Flags().StringVar(&authnSSO, "sso", "", "identity provider single sign-on URL")
}

func runAuthnRequest(cmd *cobra.Command, args []string) error {
	xml, err := os.ReadFile(authnIn)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("read %s: %v", authnIn, err)}
	}

	encoded, err := authn.EncodeRequest(xml)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if authnOut != "" {
		if err := os.WriteFile(authnOut, []byte(encoded), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", authnOut, err)
		}
		logVerbose("wrote %s", authnOut)
	}

	if authnSSO != "" {
		redirect, err := authn.RedirectURL(authnSSO, encoded)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}
		fmt.Println(redirect)
		return nil
	}
	if authnOut == "" {
		fmt.Println(encoded)
	}
	return nil
}
