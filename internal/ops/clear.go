package ops

import (
	"strings"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	Label string // one label
	All   bool   // every label; exclusive with Label
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	Label   string `json:"label,omitempty"`
	All     bool   `json:"all,omitempty"`
	Records int    `json:"records"`
}

// Clear removes captures from disk together with their snapshot records.
// .gitignore files in the capture directory survive.
func Clear(env *Env, input ClearInput) (*ClearOutput, error) {
	label := strings.TrimSpace(input.Label)
	switch {
	case input.All && label != "":
		return nil, errors.NewInvalidRequest("label and all are mutually exclusive")
	case !input.All && label == "":
		return nil, errors.NewInvalidRequest("label is required unless all is set")
	}

	out := &ClearOutput{Label: label, All: input.All}
	if input.All {
		if err := env.Store.ClearAll(); err != nil {
			return nil, err
		}
	} else {
		if err := capture.ValidateName("label", label); err != nil {
			return nil, err
		}
		if err := env.Store.Clear(label); err != nil {
			return nil, err
		}
	}

	if env.DB != nil {
		n, err := db.DeleteSnapshots(env.DB, label)
		if err != nil {
			return nil, err
		}
		out.Records = n
	}
	env.logger().Info("captures cleared", "label", label, "all", input.All, "records", out.Records)
	return out, nil
}
