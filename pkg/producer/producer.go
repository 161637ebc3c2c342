// Package producer grows the benchmark directory one file at a time until told to stop.
package producer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/config"
)

// Producer creates file1.txt, file2.txt, ... in a directory.
type Producer struct {
	dir     string
	cfg     *config.Config
	content []byte
	logger  *zap.Logger

	created atomic.Int64
}

// New returns a producer writing into dir.
func New(dir string, cfg *config.Config, logger *zap.Logger) *Producer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		dir:     dir,
		cfg:     cfg,
		content: []byte(cfg.FileContent),
		logger:  logger.Named("producer"),
	}
}

// Created reports how many files have been written so far.
func (p *Producer) Created() int64 {
	return p.created.Load()
}

// Path returns the path of the n-th file.
func (p *Producer) Path(n int64) string {
	return filepath.Join(p.dir, p.cfg.FileName(n))
}

// Run creates files until stop is received. The signal is checked before
// every creation, so at most one file is written after Send.
// Any create or write failure ends the loop with an error.
func (p *Producer) Run(stop *Signal) error {
	for n := p.created.Load() + 1; ; n++ {
		if stop.Received() {
			p.logger.Info("terminating",
				zap.Int64("created", p.created.Load()),
				zap.String("created_human", humanize.Comma(p.created.Load())))
			return nil
		}

		path := p.Path(n)
		if err := os.WriteFile(path, p.content, 0o644); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		p.created.Store(n)
	}
}
