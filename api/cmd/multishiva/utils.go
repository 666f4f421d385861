package multishiva

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
)

func getCommandLineExecutable() string {
	return os.Args[0]
}

// FatalErrorHandler prints msg to cmd's output and exits with code,
// rather than letting cobra's default error path dump a usage banner
// after every runtime failure.
func FatalErrorHandler(cmd *cobra.Command, msg string, code int) {
	if len(msg) > 0 {
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		cmd.Print(msg)
	}
	os.Exit(code)
}

// generateEnvHelpText walks cfg's exported fields and renders the
// envconfig tag of each leaf field, recursing into nested structs, so
// "run --help" can show every MULTISHIVA_* variable it accepts without
// hand-duplicating the list in the command's Long text.
func generateEnvHelpText(cfg interface{}, prefix string) string {
	var b strings.Builder

	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			b.WriteString(fmt.Sprintf("\n%s%s:\n", prefix, field.Name))
			b.WriteString(generateEnvHelpText(reflect.New(field.Type).Interface(), prefix+"  "))
			continue
		}

		envVar := field.Tag.Get("envconfig")
		if envVar == "" {
			continue
		}
		defaultValue := field.Tag.Get("default")
		b.WriteString(fmt.Sprintf("%s%s (default: %q)\n", prefix, envVar, defaultValue))
	}

	return b.String()
}
