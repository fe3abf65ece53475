package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/regionmap/internal/classify"
	"github.com/sells-group/regionmap/internal/config"
	"github.com/sells-group/regionmap/internal/pipeline"
	"github.com/sells-group/regionmap/internal/render"
	"github.com/sells-group/regionmap/internal/table"
)

// pipelineEnv holds the loaded reference data and the pipeline built on it.
type pipelineEnv struct {
	Reference *pipeline.Reference
	Pipeline  *pipeline.Pipeline
}

// initPipeline validates the config for mode, loads reference data and
// builds the Pipeline.
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	ref, err := pipeline.LoadReference(ctx, cfg.Reference)
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline initialized",
		zap.String("mode", mode),
		zap.Float64("simplify_tolerance", cfg.Render.SimplifyTolerance),
	)
	return &pipelineEnv{
		Reference: ref,
		Pipeline:  pipeline.New(ref, cfg.Render.SimplifyTolerance),
	}, nil
}

// defaultSettings converts the configured render defaults.
func defaultSettings(rc config.RenderConfig) (pipeline.Settings, error) {
	mode, err := classify.ParseMode(rc.Mode)
	if err != nil {
		return pipeline.Settings{}, err
	}
	return pipeline.Settings{
		Mode:       mode,
		NumColours: rc.NumColours,
		Palette:    rc.Palette,
		Steps:      rc.Steps,
		Options: render.Options{
			ShowMissingValues: rc.ShowMissingValues,
			Units:             rc.Units,
			DecimalPlaces:     rc.DecimalPlaces,
			MapHeight:         rc.MapHeight,
			Width:             rc.Width,
			TitleWidth:        rc.TitleWidth,
		},
	}, nil
}

// readTable reads an upload from disk.
func readTable(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return table.Read(path, data)
}
