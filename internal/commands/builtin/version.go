package builtin

import (
	"bytes"

	"ev/internal/output"
	"ev/internal/version"
	"ev/pkg/evtypes"
)

// VersionCommand implements /version for displaying build information.
type VersionCommand struct{}

// Name returns the command name "version".
func (c *VersionCommand) Name() string {
	return "version"
}

// Summary returns a brief description of the version command.
func (c *VersionCommand) Summary() string {
	return "Show version information"
}

// Options returns no options.
func (c *VersionCommand) Options() []evtypes.Option {
	return nil
}

// Invoke lists the version details aligned at the colon.
func (c *VersionCommand) Invoke(_ []string) (*bytes.Buffer, error) {
	info, err := version.GetInfo()
	if err != nil {
		return nil, err
	}

	builder := output.NewBuilder().SetIndent(InfoIndent)
	builder.Add("Version", info.Version)
	builder.AddNonEmpty("Commit", version.ShortCommit())
	builder.AddNonEmpty("Built", version.KnownBuildDate())
	builder.Add("Go", info.GoVersion)
	builder.Add("Platform", info.Platform)
	return builder.End(), nil
}
