//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "remindbot/pkg/logx"
)

func newSQLiteStore(Config, logx.Logger) (Store, error) {
	return nil, errors.New("sqlite driver not compiled in, rebuild with -tags sqlite")
}
