package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fatih/color"
)

// Build metadata, overridable with -ldflags "-X shadekit/internal/version.Version=...".
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildDate = ""
)

// Info is the machine-readable form printed by "version --format json".
type Info struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Backends  []string `json:"backends"`
}

func Current() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Backends:  []string{"svm", "osl"},
	}
}

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
	labelColor = color.New(color.Faint)
)

// Pretty renders the banner; colour follows color.NoColor.
func (i Info) Pretty() string {
	var sb strings.Builder
	sb.WriteString("shadekit ")
	sb.WriteString(colorVersion(i.Version))
	sb.WriteByte('\n')
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&sb, "  %s %s\n", labelColor.Sprintf("%-9s", label+":"), value)
	}
	line("commit", i.GitCommit)
	line("built", i.BuildDate)
	line("go", i.GoVersion)
	line("platform", i.Platform)
	line("backends", strings.Join(i.Backends, ", "))
	return sb.String()
}

// colorVersion colours the major, minor and patch numbers; any suffix is
// left plain.
func colorVersion(v string) string {
	core, suffix, _ := strings.Cut(v, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return v
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}
