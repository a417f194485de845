package dataset

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Models lists every table the store migrates.
var Models = []interface{}{
	&Experiment{},
	&Observation{},
}

// Experiment is a named dataset shown on the map, e.g. one prediction run.
type Experiment struct {
	gorm.Model
	Slug         string         `json:"slug" gorm:"size:127;uniqueIndex"`
	Title        string         `json:"title" gorm:"size:255"`
	Description  string         `json:"description" gorm:"size:2000"`
	Props        datatypes.JSON `json:"props"`
	Observations []Observation
}

func (*Experiment) TableName() string {
	return "experiments"
}

// Observation is one geolocated measurement of an experiment.
type Observation struct {
	gorm.Model
	ExperimentID uint       `json:"experimentId" gorm:"index:idx_observation_experiment_year,priority:1"`
	Experiment   Experiment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:ExperimentID;"`
	Lng          float64    `json:"lng"`
	Lat          float64    `json:"lat"`
	Value        float64    `json:"value"`
	Year         int        `json:"year" gorm:"index:idx_observation_experiment_year,priority:2"`
	Label        string     `json:"label" gorm:"size:127"`
}

func (*Observation) TableName() string {
	return "observations"
}
