package ops

import (
	"strings"

	"github.com/hpungsan/tablesnap/internal/capture"
)

// CapturesInput contains parameters for the Captures operation.
type CapturesInput struct {
	Label string // optional, empty lists every label
}

// LabelCaptures lists the capture files of one label.
type LabelCaptures struct {
	Label  string         `json:"label"`
	Tables []capture.Info `json:"tables"`
	Bytes  int64          `json:"bytes"`
}

// CapturesOutput contains the result of the Captures operation.
type CapturesOutput struct {
	Dir    string          `json:"dir"`
	Labels []LabelCaptures `json:"labels"`
}

// Captures lists what is on disk in the capture directory.
func Captures(env *Env, input CapturesInput) (*CapturesOutput, error) {
	labels := []string{strings.TrimSpace(input.Label)}
	if labels[0] == "" {
		var err error
		if labels, err = env.Store.Labels(); err != nil {
			return nil, err
		}
	}

	out := &CapturesOutput{Dir: env.Store.Dir(), Labels: []LabelCaptures{}}
	for _, label := range labels {
		infos, err := env.Store.Stat(label)
		if err != nil {
			return nil, err
		}
		lc := LabelCaptures{Label: label, Tables: infos}
		if lc.Tables == nil {
			lc.Tables = []capture.Info{}
		}
		for _, info := range infos {
			lc.Bytes += info.Bytes
		}
		out.Labels = append(out.Labels, lc)
	}
	return out, nil
}
