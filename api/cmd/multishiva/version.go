package multishiva

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// GetVersion reports the VCS revision this binary was built from, the
// way go build embeds it via -buildvcs (default on since Go 1.18).
func GetVersion() string {
	version := "<unknown>"
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, kv := range info.Settings {
			if kv.Value == "" {
				continue
			}
			if kv.Key == "vcs.revision" {
				version = kv.Value
			}
		}
	}
	return version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(GetVersion())
		},
	}
}
