package output

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// RegistryStatus is one row of the registries listing.
type RegistryStatus struct {
	Registry        string `json:"registry" yaml:"registry"`
	Kind            string `json:"kind" yaml:"kind"`
	Source          string `json:"source" yaml:"source"`
	Store           string `json:"store" yaml:"store"`
	HasRefreshToken bool   `json:"hasRefreshToken" yaml:"hasRefreshToken"`
}

func WriteRegistryTable(w io.Writer, rows []RegistryStatus) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REGISTRY\tKIND\tSOURCE\tSTORE\tREFRESH_TOKEN")
	for _, r := range rows {
		refresh := "no"
		if r.HasRefreshToken {
			refresh = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Registry, r.Kind, r.Source, r.Store, refresh)
	}
	_ = tw.Flush()
}
