package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfl"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfstore"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
	"gonum.org/v1/gonum/mat"
)

func init() {
	log = zerolog.Nop()
}

func TestDecodeConfigJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "train.json")
	yamlPath := filepath.Join(dir, "train.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"n_trees": 7, "task": "regression", "class_weights": {"1": 2.5}}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("n_trees: 7\ntask: regression\nclass_weights:\n  \"1\": 2.5\n"), 0o644))

	for _, src := range []string{jsonPath, yamlPath} {
		var trainConfig TrainConfig
		require.NoError(t, decodeConfig(src, &trainConfig), src)
		assert.Equal(t, 7, trainConfig.NTrees)

		kind, err := trainConfig.kind()
		require.NoError(t, err)
		assert.Equal(t, rfv.Regression, kind)

		weights, err := trainConfig.classWeights()
		require.NoError(t, err)
		assert.Equal(t, map[float64]float64{1: 2.5}, weights)
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))

	var trainConfig TrainConfig
	assert.Error(t, decodeConfig(broken, &trainConfig))
	assert.Error(t, decodeConfig(filepath.Join(dir, "missing.json"), &trainConfig))

	_, err := TrainConfig{Task: "ranking"}.kind()
	assert.Error(t, err)
	_, err = TrainConfig{ClassWeights: map[string]float64{"one": 1}}.classWeights()
	assert.Error(t, err)
}

func TestTrainPredictReport(t *testing.T) {
	dir := t.TempDir()
	features := mat.NewDense(8, 2, []float64{
		0, 1,
		1, 1,
		2, 0,
		3, 0,
		10, 1,
		11, 0,
		12, 1,
		13, 0,
	})
	labels := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	featuresFile := filepath.Join(dir, "features.npy")
	require.NoError(t, rfl.WriteNpy(featuresFile, features))
	labelsFile := filepath.Join(dir, "labels.npy")
	require.NoError(t, rfl.WriteNpy(labelsFile, labels))

	trainConfig := TrainConfig{
		FileNameFeatures: featuresFile,
		FileNameLabels:   labelsFile,
		FileNameModel:    filepath.Join(dir, "model.json"),
		FileNameOOB:      filepath.Join(dir, "oob.npy"),
		FileNameReports:  filepath.Join(dir, "reports.db"),
		RunID:            "first",
		NTrees:           5,
		Seed:             3,
		ThreadsNum:       2,
	}
	require.NoError(t, train(context.Background(), trainConfig))
	assert.FileExists(t, trainConfig.FileNameOOB)

	store, err := rfstore.Open(trainConfig.FileNameReports)
	require.NoError(t, err)
	stored, err := store.Report("first")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Equal(t, 5, stored.Trees)
	assert.Len(t, stored.TreeStats, 5)
	assert.Len(t, stored.Importances, 2)
	assert.Equal(t, 8, stored.Samples)

	predictConfig := PredictConfig{
		FileNameFeatures:   featuresFile,
		FileNameModel:      trainConfig.FileNameModel,
		FileNamePrediction: filepath.Join(dir, "prediction.npy"),
		FileNameProba:      filepath.Join(dir, "proba.npy"),
	}
	require.NoError(t, predict(predictConfig))
	proba, err := rfl.ReadNpy(predictConfig.FileNameProba)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 2, c)

	var out bytes.Buffer
	require.NoError(t, report(&out, trainConfig.FileNameReports, ""))
	assert.Contains(t, out.String(), "first\tclassification\t5 trees")

	out.Reset()
	require.NoError(t, report(&out, trainConfig.FileNameReports, "first"))
	assert.Contains(t, out.String(), `"run_id": "first"`)
}
