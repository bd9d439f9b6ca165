package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
)

const (
	actionLogin     = "Run login (page load)"
	actionLoginUser = "Run login (explicit click)"
	actionSignIn    = "Open sign-in"
	actionSignUp    = "Open sign-up"
	actionClose     = "Close modal"
	actionReconcile = "Reconcile email"
	actionSetField  = "Edit a field"
	actionUpdate    = "Update account"
	actionQuit      = "Quit"
)

var walkActions = []string{
	actionLogin, actionLoginUser, actionSignIn, actionSignUp, actionClose,
	actionReconcile, actionSetField, actionUpdate, actionQuit,
}

func newWalkCmd(root *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Drive one visitor through onboarding interactively against the configured gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(root.cfg, root.logger)
			if err != nil {
				return err
			}
			visitor := eng.newVisitor(uuid.NewString())
			defer visitor.Orchestrator.Close()
			visitor.SetBearer(token)

			return walk(cmd.Context(), cmd.OutOrStdout(), visitor.Orchestrator)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Visitor bearer token forwarded to the gateway")
	return cmd
}

func walk(ctx context.Context, out io.Writer, o *onboarding.Orchestrator) error {
	printDirective(out, o.Directive())
	for {
		var action string
		if err := survey.AskOne(&survey.Select{Message: "Intent:", Options: walkActions}, &action); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		var d onboarding.Directive
		var err error
		switch action {
		case actionLogin:
			d = o.Login(ctx, onboarding.TriggerMount)
		case actionLoginUser:
			d = o.Login(ctx, onboarding.TriggerUser)
		case actionSignIn:
			d = o.OpenSignIn()
		case actionSignUp:
			d = o.OpenSignUp()
		case actionClose:
			d = o.CloseModal()
		case actionReconcile:
			var found bool
			d, found = o.ReconcileEmail(ctx)
			fmt.Fprintf(out, "existing email found: %t\n", found)
		case actionSetField:
			d, err = promptField(ctx, o)
		case actionUpdate:
			d, err = promptUpdate(ctx, o)
		case actionQuit:
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printDirective(out, d)
	}
}

func promptField(ctx context.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	d := o.Directive()
	if len(d.Columns) == 0 {
		return d, errors.New("the form has no fields")
	}
	var name, value string
	if err := survey.AskOne(&survey.Select{Message: "Field:", Options: d.Columns}, &name); err != nil {
		return d, err
	}
	if err := survey.AskOne(&survey.Input{Message: name + ":"}, &value); err != nil {
		return d, err
	}
	return o.SetField(ctx, name, value)
}

func promptUpdate(ctx context.Context, o *onboarding.Orchestrator) (onboarding.Directive, error) {
	d := o.Directive()
	var fields []string
	if err := survey.AskOne(&survey.MultiSelect{Message: "Fields to send:", Options: d.Columns}, &fields); err != nil {
		return d, err
	}
	return o.UpdateAccount(ctx, fields)
}

// printDirective renders the snapshot as YAML for the terminal.
func printDirective(out io.Writer, d onboarding.Directive) {
	view := map[string]any{
		"wizard":     d.Wizard.String(),
		"modal":      string(d.Modal),
		"session":    d.Session,
		"emailOptIn": d.EmailOptIn,
	}
	if d.Error != nil {
		view["error"] = fmt.Sprintf("%d %s", d.Error.StatusCode, d.Error.Message)
	}
	if d.RedirectURL != "" {
		view["redirect"] = d.RedirectURL
	}
	fields := make([]map[string]any, 0, len(d.Form.Fields))
	for _, f := range d.Form.Fields {
		entry := map[string]any{"name": f.FieldName, "value": f.Value}
		if f.ReadOnly {
			entry["readOnly"] = true
		}
		if f.Error {
			entry["error"] = f.HelperText
		}
		fields = append(fields, entry)
	}
	view["fields"] = fields

	raw, err := yaml.Marshal(view)
	if err != nil {
		fmt.Fprintf(out, "%+v\n", d)
		return
	}
	fmt.Fprintf(out, "---\n%s", raw)
}
