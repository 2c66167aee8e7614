package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/allyourbase/ayb-import/internal/cli/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	groupImport = "import"
	groupConfig = "config"
)

// envHelp lists the environment variables shown on the root help page.
var envHelp = [][2]string{
	{"AYB_IMPORT_URL", "apply endpoint URL"},
	{"AYB_IMPORT_SERVICE_KEY", "service key (or AYB_IMPORT_JWT_SECRET)"},
	{"AYB_IMPORT_S3_ACCESS_KEY", "credentials for s3:// dumps, with AYB_IMPORT_S3_SECRET_KEY"},
}

func initHelp() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupImport, Title: "IMPORT"},
		&cobra.Group{ID: groupConfig, Title: "CONFIGURATION"},
	)
	rootCmd.SetCompletionCommandGroupID(groupConfig)
	rootCmd.SetHelpCommandGroupID(groupConfig)
	for _, cmd := range rootCmd.Commands() {
		switch cmd.Name() {
		case "run", "analyze":
			cmd.GroupID = groupImport
		case "config", "version":
			cmd.GroupID = groupConfig
		}
	}

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		newHelpPage(cmd.OutOrStdout(), colorEnabled()).render(cmd)
	})
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		newHelpPage(cmd.ErrOrStderr(), colorEnabled()).render(cmd)
		return nil
	})
}

// helpPage renders command help as titled sections.
type helpPage struct {
	w     io.Writer
	color bool
}

func newHelpPage(w io.Writer, color bool) helpPage {
	return helpPage{w: w, color: color}
}

func (h helpPage) section(title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(h.w, heading(title, h.color))
	for _, l := range lines {
		fmt.Fprintf(h.w, "  %s\n", l)
	}
	fmt.Fprintln(h.w)
}

func (h helpPage) render(cmd *cobra.Command) {
	fmt.Fprintln(h.w)
	h.description(cmd)
	fmt.Fprintln(h.w)

	use := cmd.UseLine()
	if cmd.HasAvailableSubCommands() {
		use = cmd.CommandPath() + " [command]"
	}
	h.section("USAGE", []string{use})
	h.section("EXAMPLES", h.examples(cmd.Example))

	if groups := cmd.Groups(); len(groups) > 0 {
		for _, g := range groups {
			h.section(g.Title, h.commandList(cmd, func(sub *cobra.Command) bool { return sub.GroupID == g.ID }))
		}
		h.section("OTHER", h.commandList(cmd, func(sub *cobra.Command) bool { return sub.GroupID == "" }))
	} else {
		h.section("COMMANDS", h.commandList(cmd, func(*cobra.Command) bool { return true }))
	}

	if cmd == rootCmd {
		h.section("FLAGS", h.flagList(cmd.Flags()))
		var env []string
		for _, e := range envHelp {
			env = append(env, fmt.Sprintf("%s  %s", green(fmt.Sprintf("%-24s", e[0]), h.color), dim("# "+e[1], h.color)))
		}
		h.section("ENVIRONMENT", env)
	} else {
		h.section("FLAGS", h.flagList(cmd.LocalNonPersistentFlags()))
		h.section("GLOBAL FLAGS", h.flagList(cmd.InheritedFlags()))
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(h.w, dim(fmt.Sprintf("Use %q for more information about a command.", cmd.CommandPath()+" [command] --help"), h.color))
		fmt.Fprintln(h.w)
	}
}

func (h helpPage) description(cmd *cobra.Command) {
	text := cmd.Long
	if text == "" {
		text = cmd.Short
	}
	if cmd == rootCmd {
		fmt.Fprintf(h.w, "  %s %s\n\n", ui.BrandEmoji, boldCyan(cmd.Name(), h.color))
	}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			fmt.Fprintln(h.w)
		case cmd == rootCmd && strings.HasPrefix(line, "  "):
			fmt.Fprintf(h.w, "    %s\n", green(strings.TrimSpace(line), h.color))
		case cmd == rootCmd:
			fmt.Fprintf(h.w, "  %s\n", dim(line, h.color))
		default:
			fmt.Fprintf(h.w, "  %s\n", line)
		}
	}
}

func (h helpPage) examples(example string) []string {
	var out []string
	for _, line := range strings.Split(example, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, green(line, h.color))
		}
	}
	return out
}

func (h helpPage) commandList(cmd *cobra.Command, keep func(*cobra.Command) bool) []string {
	var subs []*cobra.Command
	width := 0
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() && keep(sub) {
			subs = append(subs, sub)
			width = max(width, len(sub.Name()))
		}
	}
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, bold(fmt.Sprintf("%-*s", width+4, sub.Name()), h.color)+dim(sub.Short, h.color))
	}
	return out
}

// flagList renders visible flags as aligned "name type   usage" rows.
func (h helpPage) flagList(fs *pflag.FlagSet) []string {
	type row struct{ name, usage string }
	var rows []row
	width := 0
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := flagName(f)
		_, usage := pflag.UnquoteUsage(f)
		width = max(width, len(name))
		rows = append(rows, row{name, usage})
	})
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, cyan(fmt.Sprintf("%-*s", width, r.name), h.color)+"   "+dim(r.usage, h.color))
	}
	return out
}

// flagName renders a flag as "-s, --name type", omitting the type for bools.
func flagName(f *pflag.Flag) string {
	name := "    --" + f.Name
	if f.Shorthand != "" {
		name = "-" + f.Shorthand + ", --" + f.Name
	}
	if typ, _ := pflag.UnquoteUsage(f); typ != "" {
		name += " " + typ
	}
	return name
}

func heading(title string, c bool) string {
	return boldCyan(title, c)
}
