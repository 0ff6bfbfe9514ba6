package ops

import (
	"github.com/hpungsan/stickerjar/internal/archive"
	"github.com/hpungsan/stickerjar/internal/jar"
)

// StatusOutput describes the live jar and its archive triggers.
type StatusOutput struct {
	Size          int        `json:"size"`
	Bodies        int        `json:"bodies"`
	Capacity      int        `json:"capacity"`
	ArchiveDay    string     `json:"archive_day"`
	Timezone      string     `json:"timezone"`
	LastArchiveAt *int64     `json:"last_archive_at,omitempty"`
	Due           string     `json:"due,omitempty"`
	Archiving     bool       `json:"archiving"`
	Gravity       [2]float64 `json:"gravity"`
}

// Status reports the jar's current size and which archive trigger, if any,
// would fire now.
func Status(j *jar.Jar) StatusOutput {
	e := j.Engine()
	p := e.Policy()
	g := j.World().Gravity()

	out := StatusOutput{
		Size:       len(j.Stickers()),
		Bodies:     j.World().Count(),
		Capacity:   p.EffectiveCapacity(),
		ArchiveDay: p.Weekday.String(),
		Timezone:   p.Zone().String(),
		Archiving:  e.Running(),
		Gravity:    [2]float64{g.X, g.Y},
	}
	if last, ok := e.LastArchive(); ok {
		ts := last.Unix()
		out.LastArchiveAt = &ts
	}
	if due := e.Due(); due != archive.TriggerNone {
		out.Due = string(due)
	}
	return out
}
