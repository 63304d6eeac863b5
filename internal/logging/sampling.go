package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore fans core out into one sampler per configured level below
// Error. Error and above, and levels without a setting, pass unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, accept: func(l zapcore.Level) bool {
			_, sampled := cfg.Levels[l]
			return l >= zapcore.ErrorLevel || !sampled
		}},
	}

	for level, lc := range cfg.Levels {
		if level >= zapcore.ErrorLevel {
			continue
		}
		level := level
		exact := &levelFilterCore{Core: core, accept: func(l zapcore.Level) bool { return l == level }}
		cores = append(cores, zapcore.NewSamplerWithOptions(exact, cfg.Tick.Duration(), lc.Initial, lc.Thereafter))
	}

	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only the levels accept allows.
type levelFilterCore struct {
	zapcore.Core
	accept func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.accept(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), accept: c.accept}
}
