package structures

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DisplayTuning structure is a MongoDB object in the schema "display_tuning"
type DisplayTuning struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" yaml:"-"`             // ObjectID		primary-key
	Name              string             `bson:"name" yaml:"name"`                   // string			index(name)
	VsyncLookahead    int                `bson:"num_vsync" yaml:"num_vsync"`         // int
	LeadTimeMs        int                `bson:"ms_to_vsync" yaml:"ms_to_vsync"`     // int
	WiggleFilterMaxMs int                `bson:"filter_max" yaml:"filter_max"`       // int
	WiggleFilterMinMs int                `bson:"filter_min" yaml:"filter_min"`       // int
	FPS               int                `bson:"fps" yaml:"fps"`                     // int
	HistoryDepth      int                `bson:"history_depth" yaml:"history_depth"` // int
	UpdatedAt         time.Time          `bson:"updated_at" yaml:"-"`                // time
}
