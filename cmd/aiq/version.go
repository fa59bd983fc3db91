package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiq-dev/aiq/pkg/presenter"
	"github.com/aiq-dev/aiq/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		info := version.Get()
		if jsonOutput {
			out, err := info.JSON()
			if err != nil {
				presenter.Error(err, "Failed to render version info")
				return
			}
			fmt.Println(out)
			return
		}
		fmt.Println(info.String())
	},
}
