package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
	"gopkg.in/yaml.v3"
)

//decodeConfig reads a yaml config when the file has a .yaml or .yml extension and a json config otherwise.
func decodeConfig(srcConfig string, out interface{}) error {
	data, err := os.ReadFile(srcConfig)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(srcConfig)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("decode config %s: %w", srcConfig, err)
	}
	return nil
}

type TrainConfig struct {
	FileNameFeatures string `json:"filename_features" yaml:"filename_features"`
	FileNameLabels   string `json:"filename_labels" yaml:"filename_labels"`
	FileNameModel    string `json:"filename_model" yaml:"filename_model"`
	// optional outputs
	FileNameOOB     string `json:"filename_oob" yaml:"filename_oob"`
	FileNameReports string `json:"filename_reports" yaml:"filename_reports"`
	RunID           string `json:"run_id" yaml:"run_id"`

	Task         string             `json:"task" yaml:"task"`
	NTrees       int                `json:"n_trees" yaml:"n_trees"`
	MaxDepth     int                `json:"max_depth" yaml:"max_depth"`
	MinLeaf      int                `json:"min_leaf" yaml:"min_leaf"`
	MaxFeatures  int                `json:"max_features" yaml:"max_features"`
	Seed         int64              `json:"seed" yaml:"seed"`
	ThreadsNum   int                `json:"threads_num" yaml:"threads_num"`
	NoBootstrap  bool               `json:"no_bootstrap" yaml:"no_bootstrap"`
	ClassWeights map[string]float64 `json:"class_weights" yaml:"class_weights"`
}

func (trainConfig TrainConfig) kind() (rfv.Kind, error) {
	switch strings.ToLower(trainConfig.Task) {
	case "", "classification":
		return rfv.Classification, nil
	case "regression":
		return rfv.Regression, nil
	}
	return 0, fmt.Errorf("unknown task %q", trainConfig.Task)
}

//classWeights converts the label keys of the config into numeric labels.
func (trainConfig TrainConfig) classWeights() (map[float64]float64, error) {
	if len(trainConfig.ClassWeights) == 0 {
		return nil, nil
	}
	weights := make(map[float64]float64, len(trainConfig.ClassWeights))
	for label, w := range trainConfig.ClassWeights {
		class, err := strconv.ParseFloat(label, 64)
		if err != nil {
			return nil, fmt.Errorf("class weight key %q: %w", label, err)
		}
		weights[class] = w
	}
	return weights, nil
}

type PredictConfig struct {
	FileNameFeatures   string `json:"filename_features" yaml:"filename_features"`
	FileNameModel      string `json:"filename_model" yaml:"filename_model"`
	FileNamePrediction string `json:"filename_target" yaml:"filename_target"`
	FileNameProba      string `json:"filename_proba" yaml:"filename_proba"`
	TreesNumber        int    `json:"trees_number" yaml:"trees_number"`
}

type GraphConfig struct {
	FileNameModel     string `json:"filename_model" yaml:"filename_model"`
	DumpPrefix        string `json:"dump_prefix" yaml:"dump_prefix"`
	FigureType        string `json:"figure_type" yaml:"figure_type"`
	PicturesDirectory string `json:"pictures_directory" yaml:"pictures_directory"`
}
