package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/regionmap/internal/boundary"
	"github.com/sells-group/regionmap/internal/config"
	"github.com/sells-group/regionmap/internal/geography"
)

// Reference is the static, read-only input every render works from. Either
// taxonomy may be absent; its levels then fail to render.
type Reference struct {
	ITL        *boundary.Source
	LA         *boundary.Source
	ITLMapping *geography.MappingTable
	MCAMapping *geography.MappingTable
}

// Levels lists the levels the loaded reference data can render.
func (r *Reference) Levels() []geography.Level {
	var out []geography.Level
	if r.ITL != nil {
		if r.ITLMapping != nil {
			out = append(out, geography.LevelITL1, geography.LevelITL2)
		}
		out = append(out, geography.LevelITL3)
	}
	if r.LA != nil {
		out = append(out, geography.LevelLA)
		if r.MCAMapping != nil {
			out = append(out, geography.LevelMCA)
		}
	}
	return out
}

// LoadReference reads the configured boundary files and mapping tables in
// parallel. Unset paths are skipped; at least one boundary file is required.
func LoadReference(ctx context.Context, cfg config.ReferenceConfig) (*Reference, error) {
	if cfg.ITLBoundaries == "" && cfg.LABoundaries == "" {
		return nil, eris.Wrap(boundary.ErrNoBoundaries, "pipeline: no reference boundary files configured")
	}

	log := zap.L().With(zap.String("component", "pipeline.reference"))
	start := time.Now()
	props := boundary.Properties{Code: cfg.CodeProperty, Name: cfg.NameProperty}
	ref := &Reference{}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.ITLBoundaries != "" {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			src, err := boundary.Load(cfg.ITLBoundaries, geography.LevelITL3, props)
			if err != nil {
				return eris.Wrap(err, "pipeline: load ITL boundaries")
			}
			ref.ITL = src
			return nil
		})
	}
	if cfg.LABoundaries != "" {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			src, err := boundary.Load(cfg.LABoundaries, geography.LevelLA, props)
			if err != nil {
				return eris.Wrap(err, "pipeline: load Local Authority boundaries")
			}
			ref.LA = src
			return nil
		})
	}
	if cfg.ITLMapping != "" {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			m, err := loadMapping(cfg.ITLMapping, geography.LoadITLMapping)
			if err != nil {
				return err
			}
			ref.ITLMapping = m
			return nil
		})
	}
	if cfg.MCAMapping != "" {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			m, err := loadMapping(cfg.MCAMapping, geography.LoadMCAMapping)
			if err != nil {
				return err
			}
			ref.MCAMapping = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("levels", ref.Levels()),
	}
	if ref.ITL != nil {
		fields = append(fields, zap.Int("itl3_features", len(ref.ITL.Features)))
	}
	if ref.LA != nil {
		fields = append(fields, zap.Int("la_features", len(ref.LA.Features)))
	}
	log.Info("pipeline: reference data loaded", fields...)
	return ref, nil
}

func loadMapping(path string, decode func(io.Reader) (*geography.MappingTable, error)) (*geography.MappingTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open mapping %s", path)
	}
	defer func() { _ = f.Close() }()

	m, err := decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load mapping %s", path)
	}
	return m, nil
}
