package mongo

import (
	"context"
	"time"

	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LoadTuning fetches the tuning stored for the named display. It returns
// ErrNoDocuments when none is stored.
func LoadTuning(ctx context.Context, inst instance.Mongo, name string) (structures.DisplayTuning, error) {
	tuning := structures.DisplayTuning{}
	err := inst.Collection(CollectionNameDisplayTuning).FindOne(ctx, tuningFilter(name)).Decode(&tuning)
	return tuning, err
}

// SaveTuning upserts the tuning of tuning.Name.
func SaveTuning(ctx context.Context, inst instance.Mongo, tuning structures.DisplayTuning) error {
	_, err := inst.Collection(CollectionNameDisplayTuning).UpdateOne(
		ctx,
		tuningFilter(tuning.Name),
		tuningUpdate(tuning, time.Now()),
		options.Update().SetUpsert(true),
	)
	return err
}

func tuningFilter(name string) bson.M {
	return bson.M{"name": name}
}

func tuningUpdate(tuning structures.DisplayTuning, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"num_vsync":     tuning.VsyncLookahead,
			"ms_to_vsync":   tuning.LeadTimeMs,
			"filter_max":    tuning.WiggleFilterMaxMs,
			"filter_min":    tuning.WiggleFilterMinMs,
			"fps":           tuning.FPS,
			"history_depth": tuning.HistoryDepth,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"name": tuning.Name,
		},
	}
}
