package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfl"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfstore"
	"github.com/tarstars/bagged_forest/golang/random_forest/rfv"
)

func train(ctx context.Context, trainConfig TrainConfig) error {
	kind, err := trainConfig.kind()
	if err != nil {
		return err
	}
	classWeights, err := trainConfig.classWeights()
	if err != nil {
		return err
	}

	ds, err := rfl.ReadDataset(log, trainConfig.FileNameFeatures, trainConfig.FileNameLabels)
	if err != nil {
		return err
	}
	_, w := ds.Features.Dims()

	oob := rfv.NewOOBError(log)
	importance := rfv.NewSplitImportance(w)
	treeStats := rfv.NewTreeStats(log)
	registry := prometheus.NewRegistry()
	metrics := rfv.NewMetrics(registry)

	clf, err := rfl.Train(ctx, rfl.ForestParams{
		Dataset:      ds,
		Kind:         kind,
		NTrees:       trainConfig.NTrees,
		MaxDepth:     trainConfig.MaxDepth,
		MinLeaf:      trainConfig.MinLeaf,
		MaxFeatures:  trainConfig.MaxFeatures,
		Seed:         trainConfig.Seed,
		ThreadsNum:   trainConfig.ThreadsNum,
		NoBootstrap:  trainConfig.NoBootstrap,
		ClassWeights: classWeights,
		Visitors:     []rfv.Visitor{rfv.NewProgress(log), oob, importance, treeStats, metrics},
		Logger:       log,
	})
	if clf == nil {
		return err
	}
	// the forest is complete even when a visitor failed to summarize it
	visitorsErr := err
	if visitorsErr != nil {
		log.Warn().Err(visitorsErr).Msg("training finished with visitor errors")
	}
	metrics.ObserveOOB(oob.Result)
	logMetrics(registry)

	if err := clf.Save(trainConfig.FileNameModel); err != nil {
		return err
	}
	log.Info().Str("file", trainConfig.FileNameModel).Msg("model saved")

	if trainConfig.FileNameOOB != "" && oob.Result.PerSample != nil {
		if err := rfl.WriteNpy(trainConfig.FileNameOOB, oob.Result.PerSample); err != nil {
			return err
		}
	}

	if trainConfig.FileNameReports != "" {
		runID := trainConfig.RunID
		if runID == "" {
			runID = time.Now().UTC().Format("20060102T150405Z")
		}
		report := rfstore.Report{
			RunID:       runID,
			Created:     time.Now().UTC(),
			Task:        kind.String(),
			Trees:       clf.NumTrees(),
			ModelFile:   trainConfig.FileNameModel,
			Importances: importance.Importances,
			TreeStats:   treeStats.Trees,
		}
		report.SetOOB(oob.Result)
		if err := storeReport(trainConfig.FileNameReports, report); err != nil {
			return err
		}
		log.Info().Str("run", runID).Str("file", trainConfig.FileNameReports).Msg("report stored")
	}
	return visitorsErr
}

func storeReport(dbPath string, report rfstore.Report) error {
	store, err := rfstore.Open(dbPath)
	if err != nil {
		return err
	}
	if err := store.PutReport(report); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

// logMetrics writes the final values of the training metrics to the debug log.
func logMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("gather metrics")
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			event := log.Debug().Str("metric", family.GetName())
			switch {
			case metric.GetCounter() != nil:
				event = event.Float64("value", metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				event = event.Float64("value", metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				event = event.Uint64("count", metric.GetHistogram().GetSampleCount()).
					Float64("sum", metric.GetHistogram().GetSampleSum())
			}
			event.Msg("training metric")
		}
	}
}

func predict(predictConfig PredictConfig) error {
	features, err := rfl.ReadNpy(predictConfig.FileNameFeatures)
	if err != nil {
		return err
	}
	clf, err := rfl.LoadModel(predictConfig.FileNameModel)
	if err != nil {
		return err
	}

	var optionalTreeNumber *int
	if predictConfig.TreesNumber != 0 {
		optionalTreeNumber = &predictConfig.TreesNumber
	}

	prediction, err := clf.PredictValue(features, optionalTreeNumber)
	if err != nil {
		return err
	}
	if err := rfl.WriteNpy(predictConfig.FileNamePrediction, prediction.RawVector().Data); err != nil {
		return err
	}

	if predictConfig.FileNameProba != "" {
		proba, err := clf.PredictProba(features, optionalTreeNumber)
		if err != nil {
			return err
		}
		if err := rfl.WriteNpy(predictConfig.FileNameProba, proba); err != nil {
			return err
		}
	}
	log.Info().Int("samples", rfl.Height(features)).Str("file", predictConfig.FileNamePrediction).Msg("prediction written")
	return nil
}

func graph(graphConfig GraphConfig) error {
	clf, err := rfl.LoadModel(graphConfig.FileNameModel)
	if err != nil {
		return err
	}
	figureType := graphConfig.FigureType
	if figureType == "" {
		figureType = "svg"
	}
	dumpPrefix := graphConfig.DumpPrefix
	if dumpPrefix == "" {
		dumpPrefix = "tree"
	}
	return clf.RenderTrees(dumpPrefix, figureType, graphConfig.PicturesDirectory)
}

func report(out io.Writer, dbPath, runID string) error {
	store, err := rfstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID != "" {
		stored, err := store.Report(runID)
		if err != nil {
			return err
		}
		repr, err := json.MarshalIndent(stored, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(repr))
		return err
	}

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		stored, err := store.Report(run)
		if err != nil {
			return err
		}
		oobError := "undefined"
		if stored.OOBError != nil {
			oobError = fmt.Sprintf("%.5f", *stored.OOBError)
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%d trees\toob %s\n", run, stored.Task, stored.Trees, oobError); err != nil {
			return err
		}
	}
	return nil
}
