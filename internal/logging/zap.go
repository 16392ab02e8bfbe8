package logging

import "go.uber.org/zap"

// New builds the process logger. The returned cleanup flushes buffered entries.
func New(production bool) (*zap.SugaredLogger, func() error, error) {
	var (
		base *zap.Logger
		err  error
	)
	if production {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, err
	}

	base = base.With(zap.String("service", "bakery-edge"))
	cleanup := func() error { return base.Sync() }
	return base.Sugar(), cleanup, nil
}
