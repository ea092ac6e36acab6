package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/npmauth/pkg/npmauth/auth"
	"github.com/telekom/npmauth/pkg/npmauth/output"
)

func NewRegistriesCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "registries",
		Short: "List the registries a run would authenticate against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			opts, err := rt.Options()
			if err != nil {
				return err
			}
			plan, err := auth.Prepare(opts)
			if err != nil {
				return err
			}

			store := string(plan.StoreScope)
			if opts.TokenStorage == auth.TokenStorageKeychain {
				store += "+keychain"
			}
			rows := make([]output.RegistryStatus, 0, len(plan.Registries))
			for _, reg := range plan.Registries {
				_, found, err := plan.Store.RegistryRefreshToken(reg)
				if err != nil {
					return fmt.Errorf("failed to inspect %s: %w", reg, err)
				}
				rows = append(rows, output.RegistryStatus{
					Registry:        reg,
					Kind:            string(plan.Kind),
					Source:          string(plan.Source),
					Store:           store,
					HasRefreshToken: found,
				})
			}

			if format == output.FormatTable {
				output.WriteRegistryTable(rt.Writer(), rows)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, rows)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "Output format: table, json, yaml")

	return cmd
}
