package mongo

import "github.com/viderstv/displaysync/instance"

const (
	CollectionNameDisplayTuning instance.CollectionName = "display_tuning"
)
