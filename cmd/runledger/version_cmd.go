package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkoosis/runledger/internal/version"
)

func newVersionCmd(s *streams) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(s.out, version.String())
		},
	}
}
