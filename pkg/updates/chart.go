package updates

import (
	"fmt"

	"github.com/oleksiyp/kubecd/pkg/model"
)

// ChartUpdate is a proposed change of the chart version of a release.
type ChartUpdate struct {
	Release     string `json:"release"`
	Environment string `json:"environment"`
	File        string `json:"file"`
	OldVersion  string `json:"oldVersion"`
	NewVersion  string `json:"newVersion"`
	Reason      string `json:"reason"`
}

// ReleaseWantsChartUpdate reports whether rel's chart triggers accept
// newVersion of its chart. Only releases using a chart reference have a
// version to update.
func ReleaseWantsChartUpdate(rel *model.Release, newVersion string) []ChartUpdate {
	if rel.Chart == nil || rel.Chart.Reference == "" {
		return nil
	}
	var updates []ChartUpdate
	for _, trigger := range rel.ChartTriggers() {
		wanted, why := IsWantedTag(rel.Chart.Version, newVersion, trigger.Track)
		if !wanted {
			continue
		}
		updates = append(updates, ChartUpdate{
			Release:     rel.Name,
			Environment: rel.Environment,
			File:        rel.FromFile,
			OldVersion:  rel.Chart.Version,
			NewVersion:  newVersion,
			Reason:      fmt.Sprintf("chart %s: %s", rel.Chart.Reference, why),
		})
	}
	return updates
}
