package engine

import (
	"time"

	"github.com/Guliveer/spectrometer/internal/models"
	"github.com/Guliveer/spectrometer/internal/summary"
)

// Snapshot is one published view of every sensor. It is never modified after
// it has been published; consumers may hold on to it for as long as they like.
type Snapshot struct {
	Seq           uint64                                `json:"seq"`
	Time          time.Time                             `json:"time"`
	Degraded      bool                                  `json:"degraded"`
	Categories    map[models.Category]models.Collection `json:"categories"`
	AllSensors    models.Collection                     `json:"all_sensors"`
	PinnedSensors models.Collection                     `json:"pinned_sensors"`
	Summary       summary.Summary                       `json:"summary"`
}

// Collection returns the records of one category.
func (s *Snapshot) Collection(c models.Category) models.Collection {
	return s.Categories[c]
}

// newSnapshot builds a snapshot from the working collections. The category
// slices are cloned so later copy-on-write edits never reach a reader.
func newSnapshot(seq uint64, at time.Time, degraded bool, categories map[models.Category]models.Collection) *Snapshot {
	published := make(map[models.Category]models.Collection, len(models.Categories))
	parts := make([]models.Collection, 0, len(models.Categories))
	for _, c := range models.Categories {
		col := categories[c].Clone()
		if col == nil {
			col = models.Collection{}
		}
		published[c] = col
		parts = append(parts, col)
	}
	all := models.Concat(parts...)

	return &Snapshot{
		Seq:           seq,
		Time:          at,
		Degraded:      degraded,
		Categories:    published,
		AllSensors:    all,
		PinnedSensors: all.Pinned(),
		Summary:       summary.Derive(all),
	}
}
