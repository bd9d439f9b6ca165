package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hkinc45/dev-kitchen-onboarding/models"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
)

var wizardSteps = []models.WizardState{
	models.WizardSignIn,
	models.WizardCreateAccount,
	models.WizardCreateAccountWithMembership,
	models.WizardPreferences,
}

func newCheckConfigCmd(root *rootOptions) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and show the fields of each wizard step",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schema.Build(root.cfg.Product)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, step := range wizardSteps {
				fmt.Fprintf(out, "%-32s %s\n", step, strings.Join(s.FieldNames(step), ", "))
			}
			fmt.Fprintf(out, "%-32s %s\n", "eligibility field", s.EligibilityField())

			if dump {
				effective := *root.cfg
				if effective.Gateway.TokenExchange.ClientSecret != "" {
					effective.Gateway.TokenExchange.ClientSecret = "REDACTED"
				}
				if effective.Store.DatabaseURL != "" {
					effective.Store.DatabaseURL = "REDACTED"
				}
				raw, err := yaml.Marshal(&effective)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "---\n%s", raw)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "Print the effective configuration as YAML")
	return cmd
}
