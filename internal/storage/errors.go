package storage

import "errors"

// ErrTradeNotFound is returned when a trade ID has no row.
var ErrTradeNotFound = errors.New("trade not found")

// ErrDuplicateTrade is returned when a trade ID already exists.
var ErrDuplicateTrade = errors.New("trade already exists")
