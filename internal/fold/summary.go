package fold

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/temirov/foldmerge/internal/orchestrator"
)

const (
	summaryProjectHeaderConstant     = "PROJECT"
	summaryStateHeaderConstant       = "STATE"
	summaryKindHeaderConstant        = "KIND"
	summaryDestinationHeaderConstant = "DESTINATION"
	summaryReasonHeaderConstant      = "REASON"
)

// RenderSummary writes one row per run result.
func RenderSummary(writer io.Writer, results []orchestrator.RunResult) {
	summaryTable := table.NewWriter()
	summaryTable.SetOutputMirror(writer)
	summaryTable.SetStyle(table.StyleLight)
	summaryTable.AppendHeader(table.Row{
		summaryProjectHeaderConstant,
		summaryStateHeaderConstant,
		summaryKindHeaderConstant,
		summaryDestinationHeaderConstant,
		summaryReasonHeaderConstant,
	})
	for _, result := range results {
		summaryTable.AppendRow(table.Row{
			result.Repository,
			string(result.State),
			string(result.Kind()),
			result.Destination,
			result.Reason,
		})
	}
	summaryTable.Render()
}

const (
	areaNameHeaderConstant = "AREA"
	areaPathHeaderConstant = "PATH"
	unsetAreaPathConstant  = "(unset)"
)

// RenderAreas writes the directories a run reads from and writes to.
func RenderAreas(writer io.Writer, configuration Configuration) {
	areaTable := table.NewWriter()
	areaTable.SetOutputMirror(writer)
	areaTable.SetStyle(table.StyleLight)
	areaTable.AppendHeader(table.Row{areaNameHeaderConstant, areaPathHeaderConstant})
	for _, area := range []struct {
		key  string
		path string
	}{
		{key: incomingDirectoryKeyConstant, path: configuration.IncomingDirectory},
		{key: workingDirectoryKeyConstant, path: configuration.WorkingDirectory},
		{key: archiveDirectoryKeyConstant, path: configuration.ArchiveDirectory},
		{key: errorDirectoryKeyConstant, path: configuration.ErrorDirectory},
		{key: quarantineDirectoryKeyConstant, path: configuration.QuarantineDirectory},
		{key: logPathKeyConstant, path: configuration.LogPath},
	} {
		path := area.path
		if len(path) == 0 {
			path = unsetAreaPathConstant
		}
		areaTable.AppendRow(table.Row{area.key, path})
	}
	areaTable.Render()
}
